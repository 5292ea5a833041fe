package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// maxQuestionAttrLen caps logged query text. Questions can carry patient
// identifiers, so only a short prefix ever reaches log storage.
const maxQuestionAttrLen = 48

func NewJSONLogger(service, level string) *slog.Logger {
	return newJSONLogger(os.Stdout, service, level)
}

func newJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: limitSensitiveAttrs,
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func limitSensitiveAttrs(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != "question" {
		return attr
	}
	value := attr.Value.String()
	if len(value) <= maxQuestionAttrLen {
		return attr
	}
	return slog.String(attr.Key, value[:maxQuestionAttrLen]+"...")
}
