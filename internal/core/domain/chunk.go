package domain

import "fmt"

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityTable Modality = "table"
	ModalityScan  Modality = "scan-metadata"
)

// DocumentChunk is an immutable unit of indexed text. Chunks are owned by
// exactly one group collection after ingest and are never mutated in place;
// updates are modeled as new chunks plus an index rebuild.
type DocumentChunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Group    string            `json:"group"`
	Ordinal  int               `json:"ordinal"`
	Page     int               `json:"page,omitempty"`
	Sheet    string            `json:"sheet,omitempty"`
	Modality Modality          `json:"modality"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// ChunkID derives the stable chunk identifier from its source name, owning
// group and ordinal position.
func ChunkID(group, source string, ordinal int) string {
	return fmt.Sprintf("%s_%s_%d", group, source, ordinal)
}
