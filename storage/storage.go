// Package storage defines the per-extension key-value Item entity.
package storage

import (
	"encoding/json"
	"time"

	"github.com/xraph/annex/id"
)

// MaxKeyLength bounds storage keys.
const MaxKeyLength = 255

// Item is one value in an extension's scoped key-value namespace. The pair
// (ExtensionID, Key) is unique.
type Item struct {
	ExtensionID id.ExtensionID  `json:"extension_id" db:"extension_id"`
	Key         string          `json:"key" db:"key"`
	Value       json.RawMessage `json:"value" db:"value"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy of i that shares no memory with it.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	cp := *i
	cp.Value = append(json.RawMessage(nil), i.Value...)
	return &cp
}
