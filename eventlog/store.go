package eventlog

import (
	"context"
	"time"
)

// Store defines persistence operations for lifecycle events.
type Store interface {
	// CreateEvent persists a new event entry.
	CreateEvent(ctx context.Context, e *Entry) error

	// ListEvents returns entries matching the filter, newest first.
	ListEvents(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountEvents returns the number of entries matching the filter.
	CountEvents(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeEvents removes entries created before the given time.
	PurgeEvents(ctx context.Context, before time.Time) (int64, error)
}
