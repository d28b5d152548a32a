package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery         = errors.New("invalid query")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrUpstreamTimeout      = errors.New("upstream timeout")
	ErrUpstreamError        = errors.New("upstream error")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrSessionNotFound      = errors.New("session not found")
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
