package domain

import (
	"errors"
	"fmt"
)

// Error classes shared by the application services. Package-level errors
// wrap one of these so handlers can map them to HTTP status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrRemoteUnavailable = errors.New("store unavailable")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
)

// Error is a user-facing message tagged with one of the error classes.
type Error struct {
	Class error
	Msg   string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Class }

// NewError returns an error whose message is msg and which matches class with errors.Is.
func NewError(class error, msg string) error {
	return &Error{Class: class, Msg: msg}
}

// StoreError marks a failed store round trip as ErrRemoteUnavailable.
func StoreError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}

// Classified reports whether err already belongs to one of the error classes.
func Classified(err error) bool {
	for _, class := range []error{ErrNotFound, ErrInvalidState, ErrConflict, ErrRemoteUnavailable, ErrValidation, ErrForbidden} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}

// Classify returns err unchanged if it is classified, otherwise as a store error.
func Classify(err error) error {
	if err == nil || Classified(err) {
		return err
	}
	return StoreError(err)
}
