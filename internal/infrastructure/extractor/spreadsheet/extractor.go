package spreadsheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
)

// Extractor produces one segment per non-empty worksheet. Rows are rendered
// as "Header: value | ..." lines so every chunk keeps its column context.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.Segment, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	workbook, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse spreadsheet %s: %w", doc.Filename, err)
	}
	defer workbook.Close()

	var segments []domain.Segment
	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s of %s: %w", sheet, doc.Filename, err)
		}
		text := renderRows(rows)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{Text: text, Sheet: sheet})
	}
	return segments, nil
}

func renderRows(rows [][]string) string {
	if len(rows) < 2 {
		return ""
	}
	headers := rows[0]

	var b strings.Builder
	for _, row := range rows[1:] {
		cells := make([]string, 0, len(row))
		for i, value := range row {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			header := fmt.Sprintf("col%d", i+1)
			if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
				header = strings.TrimSpace(headers[i])
			}
			cells = append(cells, fmt.Sprintf("%s: %s", header, value))
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
