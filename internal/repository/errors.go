// Package repository holds the interchangeable persistence backends behind domain.Store.
package repository

import (
	"errors"
	"fmt"

	"github.com/onoacademic/campusid/internal/domain"
)

// ErrMissingID is returned when a record without an id is written
var ErrMissingID = errors.New("record has no id")

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrBackendUnavailable, op, err)
}
