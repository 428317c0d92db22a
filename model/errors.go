package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for structured outcomes. Handlers map these to HTTP
// statuses; services return them instead of ad-hoc strings.
var (
	ErrNotFound  = errors.New("not found")
	ErrQueueFull = errors.New("queue is full, please retry later")
	ErrBusy      = errors.New("render capacity exhausted, please retry later")
)

// ValidationError rejects bad input synchronously, before any queueing.
type ValidationError struct {
	Msg   string
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s)", e.Msg, e.Field)
	}
	return e.Msg
}

// Validation builds a ValidationError.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError surfaces an ambiguous or occupied target together with the
// colliding candidates so an operator can disambiguate.
type ConflictError struct {
	Msg        string
	Candidates []string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflict builds a ConflictError.
func Conflict(msg string, candidates ...string) error {
	return &ConflictError{Msg: msg, Candidates: candidates}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
