package ports

import (
	"context"
	"io"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TextInferencer performs a single synchronous completion. Graders call it
// with temperature 0; the query rewriter uses a low non-zero temperature.
type TextInferencer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
	CompleteJSON(ctx context.Context, prompt string, temperature float64) (string, error)
}

// HybridSearcher is the retrieval contract the pipeline depends on: an
// ordered best-first list of at most k results drawn only from the named
// groups' collections.
type HybridSearcher interface {
	Search(ctx context.Context, question string, groups []string, k int) ([]domain.RetrievalResult, error)
}

// CollectionStore owns one isolated semantic index per group.
type CollectionStore interface {
	IndexChunks(ctx context.Context, group string, chunks []domain.DocumentChunk, vectors [][]float32) error
	Search(ctx context.Context, group string, queryVector []float32, limit int) ([]domain.RetrievalResult, error)
}

// LexicalCatalog maintains one term-frequency index per group. Add rebuilds
// the group's index to a consistent snapshot from the full current chunk
// set before returning; readers never observe a partial index.
type LexicalCatalog interface {
	Add(group string, chunks []domain.DocumentChunk)
	Search(group, query string, limit int) []domain.RetrievalResult
	Populated(group string) bool
	Count(group string) int
	Groups() []string
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIndexed(ctx context.Context, id string, modality domain.Modality, chunkCount int) error
}

// QueryAuditRepository persists the durable audit record of pipeline runs.
type QueryAuditRepository interface {
	Record(ctx context.Context, audit domain.QueryAudit) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor produces locator-tagged segments from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.Segment, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// Redactor tokenizes sensitive values before chunks enter a collection and
// restores them after an answer leaves the pipeline.
type Redactor interface {
	Anonymize(text string) string
	Deanonymize(text string) string
}
