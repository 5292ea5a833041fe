package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

type fakeDocRepo struct {
	docs     map[string]*domain.Document
	statuses []domain.DocumentStatus
	lastErr  string
	indexed  struct {
		modality domain.Modality
		count    int
	}
}

func newFakeDocRepo(docs ...*domain.Document) *fakeDocRepo {
	repo := &fakeDocRepo{docs: make(map[string]*domain.Document)}
	for _, doc := range docs {
		repo.docs[doc.ID] = doc
	}
	return repo
}

func (f *fakeDocRepo) Create(_ context.Context, doc *domain.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return doc, nil
}

func (f *fakeDocRepo) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statuses = append(f.statuses, status)
	f.lastErr = errMessage
	return nil
}

func (f *fakeDocRepo) SaveIndexed(_ context.Context, _ string, modality domain.Modality, count int) error {
	f.indexed.modality = modality
	f.indexed.count = count
	return nil
}

type fakeExtractor struct {
	segments []domain.Segment
	err      error
}

func (f *fakeExtractor) Extract(context.Context, *domain.Document) ([]domain.Segment, error) {
	return f.segments, f.err
}

type fakeChunker struct{}

func (fakeChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []string{text}
}

type passthroughRedactor struct {
	anonymized int
}

func (r *passthroughRedactor) Anonymize(text string) string {
	r.anonymized++
	return text
}

func (r *passthroughRedactor) Deanonymize(text string) string { return text }

type captureIngestor struct {
	chunks []domain.DocumentChunk
	group  string
	err    error
}

func (c *captureIngestor) Ingest(_ context.Context, chunks []domain.DocumentChunk, group string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.chunks = chunks
	c.group = group
	return len(chunks), nil
}

func uploadedDoc() *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:        "doc-1",
		Filename:  "triage policy.pdf",
		Group:     "emergency",
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestProcessByIDHappyPath(t *testing.T) {
	repo := newFakeDocRepo(uploadedDoc())
	extractor := &fakeExtractor{segments: []domain.Segment{
		{Text: "Triage severity levels.", Page: 1},
		{Text: "Escalation protocol.", Page: 2},
	}}
	redactor := &passthroughRedactor{}
	ingestor := &captureIngestor{}
	uc := NewProcessDocumentUseCase(repo, extractor, redactor, fakeChunker{}, ingestor)

	report, err := uc.ProcessByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil || report.Group != "emergency" || report.Chunks != 2 {
		t.Fatalf("unexpected index report: %+v", report)
	}
	if report.UploadedAt.IsZero() {
		t.Fatalf("report must carry the upload time for lag accounting")
	}

	if len(repo.statuses) != 2 || repo.statuses[0] != domain.StatusProcessing || repo.statuses[1] != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %v", repo.statuses)
	}
	if repo.indexed.count != 2 || repo.indexed.modality != domain.ModalityText {
		t.Fatalf("unexpected indexed record: %+v", repo.indexed)
	}
	if ingestor.group != "emergency" {
		t.Fatalf("chunks ingested into wrong group: %q", ingestor.group)
	}
	if redactor.anonymized != 2 {
		t.Fatalf("every segment must be redacted before chunking, got %d calls", redactor.anonymized)
	}
	if ingestor.chunks[0].Page != 1 || ingestor.chunks[1].Page != 2 {
		t.Fatalf("page locators lost: %+v", ingestor.chunks)
	}
	if ingestor.chunks[1].Ordinal != 1 {
		t.Fatalf("ordinals must be sequential, got %d", ingestor.chunks[1].Ordinal)
	}
}

func TestProcessByIDSpreadsheetModality(t *testing.T) {
	repo := newFakeDocRepo(uploadedDoc())
	extractor := &fakeExtractor{segments: []domain.Segment{
		{Text: "Medication: dose | Heparin: 5mg", Sheet: "Dosing"},
	}}
	ingestor := &captureIngestor{}
	uc := NewProcessDocumentUseCase(repo, extractor, &passthroughRedactor{}, fakeChunker{}, ingestor)

	if _, err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.indexed.modality != domain.ModalityTable {
		t.Fatalf("expected table modality, got %q", repo.indexed.modality)
	}
	if ingestor.chunks[0].Sheet != "Dosing" || ingestor.chunks[0].Modality != domain.ModalityTable {
		t.Fatalf("sheet locator lost: %+v", ingestor.chunks[0])
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := newFakeDocRepo(uploadedDoc())
	extractor := &fakeExtractor{err: errors.New("corrupt file")}
	uc := NewProcessDocumentUseCase(repo, extractor, &passthroughRedactor{}, fakeChunker{}, &captureIngestor{})

	report, err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if report != nil {
		t.Fatalf("failed run must not produce a report, got %+v", report)
	}
	if len(repo.statuses) != 2 || repo.statuses[1] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %v", repo.statuses)
	}
	if repo.lastErr == "" {
		t.Fatalf("failure reason must be persisted")
	}
}

func TestProcessByIDFailsOnEmptyExtraction(t *testing.T) {
	repo := newFakeDocRepo(uploadedDoc())
	uc := NewProcessDocumentUseCase(repo, &fakeExtractor{}, &passthroughRedactor{}, fakeChunker{}, &captureIngestor{})

	_, err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty extraction, got %v", err)
	}
	if repo.statuses[len(repo.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %v", repo.statuses)
	}
}

func TestProcessByIDUnknownDocument(t *testing.T) {
	repo := newFakeDocRepo()
	uc := NewProcessDocumentUseCase(repo, &fakeExtractor{}, &passthroughRedactor{}, fakeChunker{}, &captureIngestor{})

	_, err := uc.ProcessByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
