package api

import (
	"context"

	"github.com/etow/task-tracker/board"
	"github.com/etow/task-tracker/domain"
)

// Boards yields a user's board store, loading it on first access.
type Boards interface {
	Board(ctx context.Context, userID string) (*board.Store, error)
}

// EventSink receives committed change events for asynchronous delivery.
type EventSink interface {
	EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
