package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
)

// UploadDocumentUseCase stores a raw source file scoped to one group and
// hands it off to the asynchronous processing worker.
type UploadDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue

	validGroups map[string]struct{}
}

func NewUploadDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	validGroups []string,
) *UploadDocumentUseCase {
	groups := make(map[string]struct{}, len(validGroups))
	for _, group := range validGroups {
		groups[strings.ToLower(strings.TrimSpace(group))] = struct{}{}
	}
	return &UploadDocumentUseCase{
		repo:        repo,
		storage:     storage,
		queue:       queue,
		validGroups: groups,
	}
}

func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType, group string,
	body io.Reader,
) (*domain.Document, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	if _, ok := uc.validGroups[group]; !ok {
		return nil, domain.WrapError(domain.ErrInvalidGroup, "upload document", fmt.Errorf("unknown group %q", group))
	}

	id := uuid.NewString()
	// Blob layout mirrors collection isolation: one directory per group.
	storageKey := fmt.Sprintf("%s/%s_%s", group, id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Group:       group,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	// filepath.Base maps "" to "." and keeps "..", neither of which is a
	// usable object name.
	switch base {
	case "", ".", "..", "/":
		return "document.bin"
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
