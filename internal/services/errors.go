package services

import (
	"errors"
	"fmt"
)

// Sentinel errors that handlers translate into distinct HTTP responses.
// Permission and validation failures are decided locally, before any write;
// capacity and not-found come back from the data layer.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("event is full")
	ErrEventCancelled   = errors.New("event is cancelled")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
