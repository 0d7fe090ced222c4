package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMunicipalityNotFound = errors.New("municipality not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTemporary            = errors.New("temporary failure")
	ErrGeneration           = errors.New("answer generation failed")
	ErrTimeout              = errors.New("operation timed out")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
