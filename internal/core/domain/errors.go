package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGroup     = errors.New("invalid group")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInference        = errors.New("inference upstream failure")
	ErrEmbedding        = errors.New("embedding upstream failure")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
