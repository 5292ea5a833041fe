package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
	pdfextractor "github.com/Anudeepsrib/ClinIQ/internal/infrastructure/extractor/pdf"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/extractor/plaintext"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/extractor/spreadsheet"
)

// Registry dispatches extraction by filename extension, falling back to
// plaintext for anything unrecognized.
type Registry struct {
	byExt    map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func NewRegistry(storage ports.ObjectStorage) *Registry {
	pdfEx := pdfextractor.NewExtractor(storage)
	sheetEx := spreadsheet.NewExtractor(storage)
	return &Registry{
		byExt: map[string]ports.TextExtractor{
			".pdf":  pdfEx,
			".xlsx": sheetEx,
			".xlsm": sheetEx,
		},
		fallback: plaintext.NewExtractor(storage),
	}
}

func (r *Registry) Extract(ctx context.Context, doc *domain.Document) ([]domain.Segment, error) {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	if extractor, ok := r.byExt[ext]; ok {
		return extractor.Extract(ctx, doc)
	}
	return r.fallback.Extract(ctx, doc)
}
