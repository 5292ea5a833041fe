package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
)

// ProcessDocumentUseCase turns one uploaded file into indexed chunks:
// extract locator-tagged segments, redact sensitive values, split into
// chunks and ingest them into the owning group's collection.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	redactor  ports.Redactor
	chunker   ports.Chunker
	ingestor  ports.ChunkIngestor
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	redactor ports.Redactor,
	chunker ports.Chunker,
	ingestor ports.ChunkIngestor,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		redactor:  redactor,
		chunker:   chunker,
		ingestor:  ingestor,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) (*domain.IndexReport, error) {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	doc, modality, count, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.repo.SaveIndexed(ctx, doc.ID, modality, count); err != nil {
		return nil, fmt.Errorf("save indexed counts: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}
	return &domain.IndexReport{
		DocumentID: doc.ID,
		Group:      doc.Group,
		Chunks:     count,
		UploadedAt: doc.CreatedAt,
	}, nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, domain.Modality, int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch document by id: %w", err)
	}

	segments, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, "", 0, fmt.Errorf("extract segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, "", 0, domain.WrapError(domain.ErrInvalidInput, "extract segments", errors.New("no extractable text"))
	}

	chunks := uc.buildChunks(doc, segments)
	if len(chunks) == 0 {
		return nil, "", 0, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	count, err := uc.ingestor.Ingest(ctx, chunks, doc.Group)
	if err != nil {
		return nil, "", 0, fmt.Errorf("ingest chunks: %w", err)
	}

	return doc, documentModality(segments), count, nil
}

func (uc *ProcessDocumentUseCase) buildChunks(doc *domain.Document, segments []domain.Segment) []domain.DocumentChunk {
	chunks := make([]domain.DocumentChunk, 0, len(segments))
	ordinal := 0
	for _, segment := range segments {
		text := segment.Text
		if uc.redactor != nil {
			text = uc.redactor.Anonymize(text)
		}
		for _, content := range uc.chunker.Split(text) {
			modality := domain.ModalityText
			if segment.Sheet != "" {
				modality = domain.ModalityTable
			}
			chunks = append(chunks, domain.DocumentChunk{
				ID:       domain.ChunkID(doc.Group, doc.Filename, ordinal),
				Content:  content,
				Source:   doc.Filename,
				Group:    doc.Group,
				Ordinal:  ordinal,
				Page:     segment.Page,
				Sheet:    segment.Sheet,
				Modality: modality,
			})
			ordinal++
		}
	}
	return chunks
}

func documentModality(segments []domain.Segment) domain.Modality {
	for _, segment := range segments {
		if segment.Sheet != "" {
			return domain.ModalityTable
		}
	}
	return domain.ModalityText
}
