// Package store persists deploy history.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no deploy record has the requested ID.
	ErrNotFound = errors.New("deploy record not found")

	// ErrDuplicateID is returned when a deploy record ID is reused.
	ErrDuplicateID = errors.New("deploy record ID already exists")

	// ErrAlreadyFinished is returned when finishing a record twice.
	ErrAlreadyFinished = errors.New("deploy record is already finished")

	ErrConnectionFailed = errors.New("history database unavailable")
	ErrMigrationFailed  = errors.New("history schema migration failed")

	// ErrInvalidData is returned when a stored row cannot be decoded.
	ErrInvalidData = errors.New("corrupt deploy record")

	ErrTxFailed = errors.New("transaction failed")
)

// StoreError describes a failed store operation on one record.
type StoreError struct {
	Op      string
	Entity  string
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	switch {
	case e.ID != "":
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}
