package service

import (
	"errors"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrNotFound           = errors.New("post not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyInProgress  = errors.New("publish already in progress")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ValidationError is bad local input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return models.ErrValidation
}
