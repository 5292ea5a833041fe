package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Catalog keeps one term-frequency index per group. Writers rebuild a full
// snapshot under a per-group lock and publish it with an atomic pointer
// swap; readers always see either the pre-rebuild or post-rebuild snapshot.
type Catalog struct {
	mu     sync.Mutex
	groups map[string]*groupIndex
}

type groupIndex struct {
	rebuildMu sync.Mutex
	snap      atomic.Pointer[snapshot]
}

type snapshot struct {
	chunks   []domain.DocumentChunk
	postings map[string]map[int]int
	docLen   []int
	avgLen   float64
}

func NewCatalog() *Catalog {
	return &Catalog{groups: make(map[string]*groupIndex)}
}

func (c *Catalog) group(name string, create bool) *groupIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[name]
	if !ok && create {
		g = &groupIndex{}
		c.groups[name] = g
	}
	return g
}

// Add appends chunks to the group's chunk set and synchronously rebuilds the
// index from the full set. The rebuild is O(total chunks in the group).
func (c *Catalog) Add(group string, chunks []domain.DocumentChunk) {
	if len(chunks) == 0 {
		return
	}
	g := c.group(group, true)

	g.rebuildMu.Lock()
	defer g.rebuildMu.Unlock()

	var existing []domain.DocumentChunk
	if old := g.snap.Load(); old != nil {
		existing = old.chunks
	}
	all := make([]domain.DocumentChunk, 0, len(existing)+len(chunks))
	all = append(all, existing...)
	all = append(all, chunks...)

	g.snap.Store(buildSnapshot(all))
}

func buildSnapshot(chunks []domain.DocumentChunk) *snapshot {
	snap := &snapshot{
		chunks:   chunks,
		postings: make(map[string]map[int]int),
		docLen:   make([]int, len(chunks)),
	}

	totalLen := 0
	for pos, chunk := range chunks {
		tokens := tokenizeAlphaNum(chunk.Content)
		snap.docLen[pos] = len(tokens)
		totalLen += len(tokens)
		for _, token := range tokens {
			docs, ok := snap.postings[token]
			if !ok {
				docs = make(map[int]int)
				snap.postings[token] = docs
			}
			docs[pos]++
		}
	}
	if len(chunks) > 0 {
		snap.avgLen = float64(totalLen) / float64(len(chunks))
	}
	return snap
}

func (c *Catalog) Populated(group string) bool {
	g := c.group(group, false)
	if g == nil {
		return false
	}
	snap := g.snap.Load()
	return snap != nil && len(snap.chunks) > 0
}

func (c *Catalog) Count(group string) int {
	g := c.group(group, false)
	if g == nil {
		return 0
	}
	snap := g.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.chunks)
}

func (c *Catalog) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.groups))
	for name := range c.groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Search scores the group's chunks against the query with BM25 and returns
// the top limit hits, best first, with a deterministic tie-break.
func (c *Catalog) Search(group, query string, limit int) []domain.RetrievalResult {
	g := c.group(group, false)
	if g == nil {
		return nil
	}
	snap := g.snap.Load()
	if snap == nil || len(snap.chunks) == 0 || limit <= 0 {
		return nil
	}

	scores := make(map[int]float64)
	totalDocs := float64(len(snap.chunks))
	for _, term := range tokenizeAlphaNum(query) {
		docs, ok := snap.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1.0 + (totalDocs-float64(len(docs))+0.5)/(float64(len(docs))+0.5))
		for pos, freq := range docs {
			tf := float64(freq)
			norm := 1.0 - bm25B + bm25B*(float64(snap.docLen[pos])/snap.avgLen)
			scores[pos] += idf * (tf * (bm25K1 + 1.0)) / (tf + bm25K1*norm)
		}
	}

	ranked := make([]int, 0, len(scores))
	for pos := range scores {
		ranked = append(ranked, pos)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return snap.chunks[ranked[i]].ID < snap.chunks[ranked[j]].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]domain.RetrievalResult, 0, len(ranked))
	for _, pos := range ranked {
		chunk := snap.chunks[pos]
		out = append(out, domain.RetrievalResult{
			ChunkID: chunk.ID,
			Content: chunk.Content,
			Source:  chunk.Source,
			Group:   chunk.Group,
			Score:   scores[pos],
			Page:    chunk.Page,
			Sheet:   chunk.Sheet,
			Attrs:   chunk.Attrs,
		})
	}
	return out
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
