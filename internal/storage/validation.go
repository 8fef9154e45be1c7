package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common validation errors.
var (
	ErrNilContext  = errors.New("context cannot be nil")
	ErrEmptyString = errors.New("value cannot be empty")
	ErrInvalidID   = errors.New("id must be positive")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string is not empty or whitespace-only.
func validateString(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s: %w", name, ErrEmptyString)
	}
	return nil
}

// validateID ensures an identifier is positive.
func validateID(id int64, name string) error {
	if id <= 0 {
		return fmt.Errorf("%s: %w", name, ErrInvalidID)
	}
	return nil
}
