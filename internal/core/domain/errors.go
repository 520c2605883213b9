package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailed: empty text, disallowed language or low detection
	// confidence. Non-retryable; surfaced to the caller of ingestion.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrStorageFailure is retryable up to the configured bound, then the
	// storage job fails through the normal failure path.
	ErrStorageFailure = errors.New("storage failure")
	// ErrAlreadyCompleted: the scan already transitioned to done. An
	// idempotent no-op for the caller, not a failure.
	ErrAlreadyCompleted = errors.New("scan already completed")
	// ErrUnknownStream aborts an aggregation run; it can only come from a
	// programming or configuration error.
	ErrUnknownStream = errors.New("unknown result stream kind")

	ErrDocumentNotFound = errors.New("document not found")
	ErrScanNotFound     = errors.New("scan not found")
	ErrModelNotFound    = errors.New("classifier model not found")
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
