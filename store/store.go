// Package store defines the aggregate persistence interface. The extension,
// storage and eventlog packages each define their own store interface; a
// single backend (memory, postgres, sqlite, mongo) implements all of them.
package store

import (
	"context"
	"errors"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/storage"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConditionFailed is returned when a conditional write found the
	// record but its guard did not hold (a system extension on delete, a
	// non-configurable extension on settings update, a stale version on
	// manifest replacement).
	ErrConditionFailed = errors.New("store: condition failed")
)

// Store is the aggregate persistence interface.
type Store interface {
	extension.Store
	storage.Store
	eventlog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
