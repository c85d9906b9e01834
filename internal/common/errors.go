// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// File access errors.
	ErrUnreadable = errors.New("file unreadable")

	// Database errors.
	ErrNoMatch           = errors.New("no matching record")
	ErrTableMissing      = errors.New("expected table missing")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Classification errors.
	ErrInvalidPattern = errors.New("invalid pattern")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// StageError records which pipeline stage failed for which path.
type StageError struct {
	Err   error
	Path  string
	Stage string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the pipeline stage and path it occurred at.
func NewStageError(stage, path string, err error) error {
	return &StageError{Stage: stage, Path: path, Err: err}
}

// IsNoMatch reports whether err means a lookup simply found nothing usable.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatch) || errors.Is(err, ErrTableMissing)
}
