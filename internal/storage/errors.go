package storage

import (
	"errors"
	"fmt"
)

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInputSchema is returned when a ledger relation or column is missing
	// or has the wrong type. It aborts the run before any stage executes.
	ErrInputSchema = errors.New("input schema error")
)

// SchemaError names the offending relation and column of a schema failure.
type SchemaError struct {
	Relation string
	Column   string // empty when the whole relation is missing
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("input schema: relation %s: %s", e.Relation, e.Reason)
	}
	return fmt.Sprintf("input schema: %s.%s: %s", e.Relation, e.Column, e.Reason)
}

// Is makes errors.Is(err, ErrInputSchema) match any SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrInputSchema
}
