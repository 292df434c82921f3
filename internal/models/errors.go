package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBlobNotFound = errors.New("blob not found")
)

// ValidationError rejects a submission before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type InvalidStateTransitionError struct {
	ChangeID uuid.UUID
	From     string
	To       string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("change %s: invalid transition from %s to %s", e.ChangeID, e.From, e.To)
}

type BlobResolutionError struct {
	SignedID string
	Err      error
}

func (e *BlobResolutionError) Error() string {
	return fmt.Sprintf("resolve blob %q: %v", e.SignedID, e.Err)
}

func (e *BlobResolutionError) Unwrap() error { return e.Err }

// ApplyError leaves the record approved but unapplied until an operator retries.
type ApplyError struct {
	ChangeID   uuid.UUID
	ChangeType ChangeType
	Err        error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s change %s: %v", e.ChangeType, e.ChangeID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
