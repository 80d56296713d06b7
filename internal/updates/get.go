package updates

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/hivelab/comb/pkg/mailbox"
)

// GetUpdate retrieves a single update by ID and writes it as pretty-printed JSON to the writer.
// Returns an error if the update ID is invalid or the update is no longer in the mailbox.
func GetUpdate(ctx context.Context, box *mailbox.Client, updateID string, w io.Writer) error {
	if _, err := uuid.Parse(updateID); err != nil {
		return fmt.Errorf("invalid update ID format: must be a valid UUID")
	}

	all, err := box.Updates(ctx)
	if err != nil {
		return fmt.Errorf("failed to read mailbox: %w", err)
	}

	for _, u := range all {
		if u.ID == updateID {
			if err := FormatSingleJSON(w, u); err != nil {
				return fmt.Errorf("failed to format update: %w", err)
			}
			return nil
		}
	}

	// Mailboxes are capped, so old updates age out rather than persist
	return &UpdateNotFoundError{UpdateID: updateID}
}

// UpdateNotFoundError represents a specific "update not found" error.
// This allows callers to distinguish not-found errors from other failures.
type UpdateNotFoundError struct {
	UpdateID string
}

func (e *UpdateNotFoundError) Error() string {
	return fmt.Sprintf("update with ID '%s' not found", e.UpdateID)
}

// IsNotFound returns true if the error is an UpdateNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*UpdateNotFoundError)
	return ok
}
