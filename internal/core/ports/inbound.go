package ports

import (
	"context"
	"io"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

// QueryService is the inbound contract for the query pipeline.
type QueryService interface {
	RunQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// ChunkIngestor is the inbound contract for adding pre-chunked content to a
// group collection.
type ChunkIngestor interface {
	Ingest(ctx context.Context, chunks []domain.DocumentChunk, group string) (int, error)
}

// DocumentUploader is the inbound contract for raw document upload
// orchestration.
type DocumentUploader interface {
	Upload(ctx context.Context, filename, mimeType, group string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document
// extraction and indexing. The report is nil when processing fails.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) (*domain.IndexReport, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// CollectionReader exposes per-group collection statistics.
type CollectionReader interface {
	GroupStats() map[string]int
}
