package queue

import (
	"errors"
	"fmt"

	"quill/internal/services"
)

var (
	// ErrItemNotFound is returned when an item id does not exist.
	ErrItemNotFound = errors.New("queue item not found")
	// ErrVersionConflict is returned when an item changed since it was read.
	ErrVersionConflict = errors.New("queue item version conflict")
	// ErrInvalidTransition is returned for status changes outside the
	// allowed lifecycle edges.
	ErrInvalidTransition = errors.New("invalid status transition")
)

func notFound(id string) error {
	return fmt.Errorf("%w: %w: %s", ErrItemNotFound, services.ErrNotFound, id)
}

// versionConflict reports a failed compare-and-swap. A negative actual means
// the row changed between read and write.
func versionConflict(id string, expected, actual int64) error {
	if actual < 0 {
		return fmt.Errorf("%w: %w: item %s changed after version %d was read",
			ErrVersionConflict, services.ErrInvariant, id, expected)
	}
	return fmt.Errorf("%w: %w: item %s expected version %d, found %d",
		ErrVersionConflict, services.ErrInvariant, id, expected, actual)
}

func invalidTransition(id string, from, to Status, reason string) error {
	msg := fmt.Sprintf("item %s: %s -> %s", id, from, to)
	if reason != "" {
		msg += ": " + reason
	}
	return fmt.Errorf("%w: %w: %s", ErrInvalidTransition, services.ErrValidation, msg)
}
