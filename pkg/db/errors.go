package db

import (
	"errors"
	"fmt"
)

var (
	// requested row is not found.
	ErrMissing = errors.New("missing")

	// more rows are found than the identity allows.
	ErrTooMuch = errors.New("too much")

	// the row is referenced by other rows and cannot be removed.
	ErrProtected = errors.New("the row is protected")

	// a name-identified entity is declared without a usable name.
	ErrNameless = errors.New("name should not be empty")

	// job status may only move forward along the lifecycle.
	ErrInvalidStatusChange = errors.New("cannot change job status")
)

func NewErrInvalidStatusChange(from, to JobStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, from, to)
}
