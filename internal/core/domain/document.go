package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document tracks the lifecycle of one uploaded source file from upload
// through extraction and indexing into its group collection.
type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Group       string         `json:"group"`
	Modality    Modality       `json:"modality,omitempty"`
	ChunkCount  int            `json:"chunk_count,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Segment is a locator-tagged span of extracted text, the unit extractors
// hand to the chunker. Page and Sheet are mutually exclusive.
type Segment struct {
	Text  string
	Page  int
	Sheet string
}

// IndexReport summarizes one completed document processing run for the
// worker's instrumentation.
type IndexReport struct {
	DocumentID string
	Group      string
	Chunks     int
	UploadedAt time.Time
}
