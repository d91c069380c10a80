package annex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/storage"
	"github.com/xraph/annex/store"
)

// GetStorageValue returns the JSON value stored under key. A missing key
// reports found == false with a nil error.
func (e *Engine) GetStorageValue(ctx context.Context, extID id.ExtensionID, key string) (json.RawMessage, bool, error) {
	const op = "storage_get"

	if err := checkKey(op, extID, key); err != nil {
		return nil, false, err
	}

	sctx, cancel := e.opContext(ctx)
	defer cancel()

	item, err := e.store.GetStorageItem(sctx, extID, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, storageError(op, extID, err)
	}
	return item.Value, true, nil
}

// SetStorageValue stores value under key, overwriting any previous value.
// json.RawMessage and []byte are stored as-is and must hold valid JSON;
// anything else is marshalled. The extension must exist.
func (e *Engine) SetStorageValue(ctx context.Context, extID id.ExtensionID, key string, value any) error {
	const op = "storage_set"

	if err := checkKey(op, extID, key); err != nil {
		return err
	}
	raw, err := encodeValue(value)
	if err != nil {
		return validationError(op, extID, "invalid storage value",
			[]manifest.Issue{{Path: "value", Message: err.Error()}}, err)
	}

	sctx, cancel := e.opContext(ctx)
	defer cancel()

	item := &storage.Item{ExtensionID: extID, Key: key, Value: raw}
	if err := e.store.UpsertStorageItem(sctx, item); err != nil {
		return e.storeErr(op, extID, err)
	}

	e.logger.Debug("storage value written",
		slog.String("extension_id", extID.String()),
		slog.String("key", key),
	)
	e.observers.EmitStorageWritten(ctx, extID, key)
	return nil
}

// DeleteStorageValue removes key. Deleting a missing key succeeds.
func (e *Engine) DeleteStorageValue(ctx context.Context, extID id.ExtensionID, key string) error {
	const op = "storage_delete"

	if err := checkKey(op, extID, key); err != nil {
		return err
	}

	sctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.store.DeleteStorageItem(sctx, extID, key); err != nil {
		return storageError(op, extID, err)
	}
	e.observers.EmitStorageDeleted(ctx, extID, key)
	return nil
}

// ListStorageKeys returns the keys stored for an extension in ascending
// order.
func (e *Engine) ListStorageKeys(ctx context.Context, extID id.ExtensionID) ([]string, error) {
	items, err := e.ListStorageItems(ctx, extID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key
	}
	return keys, nil
}

// ListStorageItems returns every stored item of an extension ordered by
// key.
func (e *Engine) ListStorageItems(ctx context.Context, extID id.ExtensionID) ([]*storage.Item, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	items, err := e.store.ListStorageItems(sctx, extID)
	if err != nil {
		return nil, storageError("storage_list", extID, err)
	}
	return items, nil
}

func checkKey(op string, extID id.ExtensionID, key string) error {
	var msg string
	switch {
	case key == "":
		msg = "is required"
	case len(key) > storage.MaxKeyLength:
		msg = fmt.Sprintf("must be at most %d bytes", storage.MaxKeyLength)
	case !utf8.ValidString(key):
		msg = "must be valid UTF-8"
	default:
		return nil
	}
	return validationError(op, extID, "invalid storage key", []manifest.Issue{{Path: "key", Message: msg}}, nil)
}

func encodeValue(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("is not valid JSON")
		}
		return append(json.RawMessage(nil), v...), nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("is not valid JSON")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
