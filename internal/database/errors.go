package database

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// CardinalityError is returned when a query expected exactly Expected rows
// and got a different count.
type CardinalityError struct {
	Expected int
	Got      int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("unexpected number of rows: expected %d, got %d", e.Expected, e.Got)
}

// Is makes an empty result match ErrNotFound.
func (e *CardinalityError) Is(target error) bool {
	return target == ErrNotFound && e.Got == 0
}

// StoreError is a backing store failure carrying the status code the
// boundary layer should report for it.
type StoreError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Postgres error codes the store maps to client-facing statuses.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqNotNullViolation    = "23502"
)

// wrapStoreError converts a driver error into a StoreError. Errors that
// already carry store semantics pass through unchanged.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	var cardErr *CardinalityError
	if errors.As(err, &storeErr) || errors.As(err, &cardErr) || errors.Is(err, ErrNotFound) {
		return err
	}

	wrapped := &StoreError{
		Op:         op,
		Message:    err.Error(),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}

	if errors.Is(err, ErrTooManyParameters) {
		wrapped.StatusCode = http.StatusRequestEntityTooLarge
		return wrapped
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		wrapped.Message = pqErr.Message
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			wrapped.StatusCode = http.StatusConflict
		case pqForeignKeyViolation, pqCheckViolation, pqNotNullViolation:
			wrapped.StatusCode = http.StatusUnprocessableEntity
		}
	}
	return wrapped
}
