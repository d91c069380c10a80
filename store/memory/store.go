// Package memory provides an in-memory implementation of the annex
// composite store. It is intended for testing and development.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/storage"
	"github.com/xraph/annex/store"
)

// Compile-time interface checks.
var (
	_ extension.Store = (*Store)(nil)
	_ storage.Store   = (*Store)(nil)
	_ eventlog.Store  = (*Store)(nil)
	_ store.Store     = (*Store)(nil)
)

// Store is a thread-safe in-memory store. A single mutex serializes every
// write, so each mutating call is atomic with respect to all others.
type Store struct {
	mu sync.RWMutex

	extensions map[string]*extension.Extension
	items      map[string]map[string]*storage.Item // extensionID -> key -> item
	events     map[string]*eventlog.Entry

	now func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		extensions: make(map[string]*extension.Extension),
		items:      make(map[string]map[string]*storage.Item),
		events:     make(map[string]*eventlog.Entry),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Extension Store
// ──────────────────────────────────────────────────

func (s *Store) CreateExtension(_ context.Context, e *extension.Extension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.ID.String()
	if _, ok := s.extensions[key]; ok {
		return fmt.Errorf("memory: extension %s already exists", e.ID)
	}

	now := s.now()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.extensions[key] = e.Clone()
	return nil
}

func (s *Store) GetExtension(_ context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.extensions[extID.String()]
	if !ok {
		return nil, fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *Store) ListExtensions(_ context.Context, filter *extension.ListFilter) ([]*extension.Extension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*extension.Extension, 0, len(s.extensions))
	for _, e := range s.extensions {
		if filter.Match(e) {
			result = append(result, e.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *extension.Extension) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	var limit, offset int
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	return applyPagination(result, limit, offset), nil
}

func (s *Store) CountExtensions(_ context.Context, filter *extension.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.extensions {
		if filter.Match(e) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetExtensionActive(_ context.Context, extID id.ExtensionID, active bool) (*extension.Extension, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.extensions[extID.String()]
	if !ok {
		return nil, false, fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
	}
	if e.IsActive == active {
		return e.Clone(), false, nil
	}

	e.IsActive = active
	e.UpdatedAt = s.now()
	return e.Clone(), true, nil
}

func (s *Store) SetExtensionSettingsValues(_ context.Context, extID id.ExtensionID, values manifest.Values) (*extension.Extension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.extensions[extID.String()]
	if !ok {
		return nil, fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
	}
	if !e.Settings.Configurable {
		return nil, fmt.Errorf("extension %s is not configurable: %w", extID, store.ErrConditionFailed)
	}

	e.Settings.Values = values.Clone()
	if e.Settings.Values == nil {
		e.Settings.Values = manifest.Values{}
	}
	e.UpdatedAt = s.now()
	return e.Clone(), nil
}

func (s *Store) ReplaceExtensionManifest(_ context.Context, next *extension.Extension, fromVersion string) (*extension.Extension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.extensions[next.ID.String()]
	if !ok {
		return nil, fmt.Errorf("extension %s: %w", next.ID, store.ErrNotFound)
	}
	if e.Version != fromVersion {
		return nil, fmt.Errorf("extension %s is at version %s, not %s: %w", next.ID, e.Version, fromVersion, store.ErrConditionFailed)
	}

	e.ApplyManifest(next.Manifest())
	e.Settings.Values = next.Settings.Values.Clone()
	e.UpdatedAt = s.now()
	return e.Clone(), nil
}

func (s *Store) DeleteExtension(_ context.Context, extID id.ExtensionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := extID.String()
	e, ok := s.extensions[key]
	if !ok {
		return fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
	}
	if e.IsSystem {
		return fmt.Errorf("extension %s is a system extension: %w", extID, store.ErrConditionFailed)
	}

	delete(s.extensions, key)
	delete(s.items, key)
	return nil
}

// ──────────────────────────────────────────────────
// Storage Store
// ──────────────────────────────────────────────────

func (s *Store) GetStorageItem(_ context.Context, extID id.ExtensionID, key string) (*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[extID.String()][key]
	if !ok {
		return nil, fmt.Errorf("storage item %s/%s: %w", extID, key, store.ErrNotFound)
	}
	return item.Clone(), nil
}

func (s *Store) UpsertStorageItem(_ context.Context, item *storage.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	extKey := item.ExtensionID.String()
	if _, ok := s.extensions[extKey]; !ok {
		return fmt.Errorf("extension %s: %w", item.ExtensionID, store.ErrNotFound)
	}

	now := s.now()
	bucket := s.items[extKey]
	if bucket == nil {
		bucket = make(map[string]*storage.Item)
		s.items[extKey] = bucket
	}

	if existing, ok := bucket[item.Key]; ok {
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	bucket[item.Key] = item.Clone()
	return nil
}

func (s *Store) DeleteStorageItem(_ context.Context, extID id.ExtensionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bucket, ok := s.items[extID.String()]; ok {
		delete(bucket, key)
	}
	return nil
}

func (s *Store) ListStorageItems(_ context.Context, extID id.ExtensionID) ([]*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.items[extID.String()]
	result := make([]*storage.Item, 0, len(bucket))
	for _, item := range bucket {
		result = append(result, item.Clone())
	}
	slices.SortFunc(result, func(a, b *storage.Item) int { return cmp.Compare(a.Key, b.Key) })
	return result, nil
}

// ──────────────────────────────────────────────────
// Event Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateEvent(_ context.Context, e *eventlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.events[e.ID.String()] = copyEntry(e)
	return nil
}

func (s *Store) ListEvents(_ context.Context, filter *eventlog.QueryFilter) ([]*eventlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*eventlog.Entry, 0)
	for _, e := range s.events {
		if filter.Match(e) {
			result = append(result, copyEntry(e))
		}
	}
	slices.SortFunc(result, func(a, b *eventlog.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})

	var limit, offset int
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	return applyPagination(result, limit, offset), nil
}

func (s *Store) CountEvents(_ context.Context, filter *eventlog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if filter.Match(e) {
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeEvents(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, e := range s.events {
		if e.CreatedAt.Before(before) {
			delete(s.events, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyEntry(e *eventlog.Entry) *eventlog.Entry {
	cp := *e
	if e.Metadata != nil {
		// Metadata is JSON-shaped; a round trip gives a deep copy.
		if data, err := json.Marshal(e.Metadata); err == nil {
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				cp.Metadata = m
			}
		}
	}
	return &cp
}

func applyPagination[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
