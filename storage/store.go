package storage

import (
	"context"

	"github.com/xraph/annex/id"
)

// Store defines persistence operations for scoped extension storage.
type Store interface {
	// GetStorageItem retrieves one item. A missing key yields
	// store.ErrNotFound.
	GetStorageItem(ctx context.Context, extID id.ExtensionID, key string) (*Item, error)

	// UpsertStorageItem inserts the item or overwrites the value of an
	// existing key, keeping its CreatedAt. It fails with store.ErrNotFound
	// when the owning extension does not exist.
	UpsertStorageItem(ctx context.Context, item *Item) error

	// DeleteStorageItem removes one item. Deleting a missing key succeeds.
	DeleteStorageItem(ctx context.Context, extID id.ExtensionID, key string) error

	// ListStorageItems returns every item of an extension ordered by key.
	ListStorageItems(ctx context.Context, extID id.ExtensionID) ([]*Item, error)
}
