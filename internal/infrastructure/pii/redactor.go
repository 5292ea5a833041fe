package pii

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

var tokenPattern = regexp.MustCompile(`<[A-Z_]+_[a-f0-9]{8}>`)

type entityPattern struct {
	entity  string
	pattern *regexp.Regexp
}

// Default patterns cover the identifier shapes that must never reach an
// index: SSNs, phone numbers, email addresses and medical record numbers.
var defaultPatterns = []entityPattern{
	{"US_SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE_NUMBER", regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)},
	{"EMAIL_ADDRESS", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"MRN", regexp.MustCompile(`\bMRN[-: ]?\d{6,10}\b`)},
}

// Redactor replaces sensitive values with opaque tokens before text enters a
// collection and restores them when an answer leaves the pipeline. The
// token-to-value mapping lives in an in-process vault.
type Redactor struct {
	mu    sync.RWMutex
	vault map[string]string
}

func NewRedactor() *Redactor {
	return &Redactor{vault: make(map[string]string)}
}

func (r *Redactor) Anonymize(text string) string {
	for _, ep := range defaultPatterns {
		text = ep.pattern.ReplaceAllStringFunc(text, func(match string) string {
			token := fmt.Sprintf("<%s_%s>", ep.entity, uuid.NewString()[:8])
			r.mu.Lock()
			r.vault[token] = match
			r.mu.Unlock()
			return token
		})
	}
	return text
}

func (r *Redactor) Deanonymize(text string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		r.mu.RLock()
		original, ok := r.vault[token]
		r.mu.RUnlock()
		if !ok {
			return token
		}
		return original
	})
}
