// Package sqlite provides a SQLite implementation of the annex composite
// store using grove ORM with Go-based migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/storage"
	"github.com/xraph/annex/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite annex store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("annex/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("annex/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// pageLimit returns the LIMIT to emit. SQLite rejects OFFSET without
// LIMIT, so an offset-only page gets an unbounded limit.
func pageLimit(limit, offset int) int {
	if limit <= 0 && offset > 0 {
		return math.MaxInt
	}
	return limit
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Extension operations
// ──────────────────────────────────────────────────

func (s *Store) CreateExtension(ctx context.Context, e *extension.Extension) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	m, err := extensionToModel(e)
	if err != nil {
		return fmt.Errorf("annex: create extension: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("annex: create extension: %w", err)
	}
	return nil
}

func (s *Store) GetExtension(ctx context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	m := new(extensionModel)
	err := s.sdb.NewSelect(m).Where("id = ?", extID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("annex: get extension: %w", err)
	}
	e, err := extensionFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("annex: get extension: %w", err)
	}
	return e, nil
}

func (s *Store) ListExtensions(ctx context.Context, filter *extension.ListFilter) ([]*extension.Extension, error) {
	var models []extensionModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.OrganizationID != "" {
			q = q.Where("organization_id = ?", filter.OrganizationID)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.Type != "" {
			q = q.Where("type = ?", string(filter.Type))
		}
		if filter.Source != "" {
			q = q.Where("installation_source = ?", string(filter.Source))
		}
		if limit := pageLimit(filter.Limit, filter.Offset); limit > 0 {
			q = q.Limit(limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("annex: list extensions: %w", err)
	}
	result := make([]*extension.Extension, len(models))
	for i := range models {
		e, err := extensionFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("annex: list extensions: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CountExtensions(ctx context.Context, filter *extension.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*extensionModel)(nil))
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.OrganizationID != "" {
			q = q.Where("organization_id = ?", filter.OrganizationID)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.Type != "" {
			q = q.Where("type = ?", string(filter.Type))
		}
		if filter.Source != "" {
			q = q.Where("installation_source = ?", string(filter.Source))
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("annex: count extensions: %w", err)
	}
	return count, nil
}

func (s *Store) SetExtensionActive(ctx context.Context, extID id.ExtensionID, active bool) (*extension.Extension, bool, error) {
	res, err := s.sdb.NewUpdate((*extensionModel)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", extID.String()).
		Where("is_active <> ?", active).
		Exec(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("annex: set extension active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("annex: set extension active rows: %w", err)
	}
	e, err := s.GetExtension(ctx, extID)
	if err != nil {
		return nil, false, err
	}
	return e, n > 0, nil
}

func (s *Store) SetExtensionSettingsValues(ctx context.Context, extID id.ExtensionID, values manifest.Values) (*extension.Extension, error) {
	encoded, err := marshalValues(values)
	if err != nil {
		return nil, fmt.Errorf("annex: set settings values: %w", err)
	}
	res, err := s.sdb.NewUpdate((*extensionModel)(nil)).
		Set("settings_values = ?", encoded).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", extID.String()).
		Where("settings_configurable = ?", true).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("annex: set settings values: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("annex: set settings values rows: %w", err)
	}
	e, err := s.GetExtension(ctx, extID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("extension %s is not configurable: %w", extID, store.ErrConditionFailed)
	}
	return e, nil
}

func (s *Store) ReplaceExtensionManifest(ctx context.Context, next *extension.Extension, fromVersion string) (*extension.Extension, error) {
	m, err := extensionToModel(next)
	if err != nil {
		return nil, fmt.Errorf("annex: replace extension manifest: %w", err)
	}
	res, err := s.sdb.NewUpdate((*extensionModel)(nil)).
		Set("name = ?", m.Name).
		Set("description = ?", m.Description).
		Set("version = ?", m.Version).
		Set("type = ?", m.Type).
		Set("settings_configurable = ?", m.SettingsConfigurable).
		Set("manifest = ?", m.Manifest).
		Set("settings_values = ?", m.SettingsValues).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", m.ID).
		Where("version = ?", fromVersion).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("annex: replace extension manifest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("annex: replace extension manifest rows: %w", err)
	}
	e, err := s.GetExtension(ctx, next.ID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("extension %s is at version %s, not %s: %w", next.ID, e.Version, fromVersion, store.ErrConditionFailed)
	}
	return e, nil
}

// DeleteExtension removes the record and its storage in one transaction.
// Foreign keys are off by default in SQLite, so the cascade is explicit.
func (s *Store) DeleteExtension(ctx context.Context, extID id.ExtensionID) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("annex: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	res, err := tx.NewDelete((*extensionModel)(nil)).
		Where("id = ?", extID.String()).
		Where("is_system = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: delete extension: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("annex: delete extension rows: %w", err)
	}
	if n == 0 {
		exists, err := tx.NewSelect((*extensionModel)(nil)).
			Where("id = ?", extID.String()).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("annex: delete extension: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
		}
		return fmt.Errorf("extension %s is a system extension: %w", extID, store.ErrConditionFailed)
	}

	_, err = tx.NewDelete((*storageItemModel)(nil)).
		Where("extension_id = ?", extID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: delete extension storage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("annex: commit tx: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Storage operations
// ──────────────────────────────────────────────────

func (s *Store) GetStorageItem(ctx context.Context, extID id.ExtensionID, key string) (*storage.Item, error) {
	m := new(storageItemModel)
	err := s.sdb.NewSelect(m).
		Where("extension_id = ?", extID.String()).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("storage item %s/%s: %w", extID, key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("annex: get storage item: %w", err)
	}
	return storageItemFromModel(m), nil
}

// UpsertStorageItem checks the owning extension and writes the item in one
// transaction, so a concurrent uninstall cannot leave an orphaned key.
func (s *Store) UpsertStorageItem(ctx context.Context, item *storage.Item) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("annex: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	exists, err := tx.NewSelect((*extensionModel)(nil)).
		Where("id = ?", item.ExtensionID.String()).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("annex: upsert storage item: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("extension %s: %w", item.ExtensionID, store.ErrNotFound)
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	prev := new(storageItemModel)
	err = tx.NewSelect(prev).
		Where("extension_id = ?", item.ExtensionID.String()).
		Where("key = ?", item.Key).
		Scan(ctx)
	switch {
	case err == nil:
		item.CreatedAt = prev.CreatedAt
	case !isNoRows(err):
		return fmt.Errorf("annex: upsert storage item: %w", err)
	}

	_, err = tx.NewInsert(storageItemToModel(item)).
		OnConflict("(extension_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: upsert storage item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("annex: commit tx: %w", err)
	}
	return nil
}

func (s *Store) DeleteStorageItem(ctx context.Context, extID id.ExtensionID, key string) error {
	_, err := s.sdb.NewDelete((*storageItemModel)(nil)).
		Where("extension_id = ?", extID.String()).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: delete storage item: %w", err)
	}
	return nil
}

func (s *Store) ListStorageItems(ctx context.Context, extID id.ExtensionID) ([]*storage.Item, error) {
	var models []storageItemModel
	err := s.sdb.NewSelect(&models).
		Where("extension_id = ?", extID.String()).
		OrderExpr("key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("annex: list storage items: %w", err)
	}
	result := make([]*storage.Item, len(models))
	for i := range models {
		result[i] = storageItemFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Event log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateEvent(ctx context.Context, e *eventlog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m, err := eventToModel(e)
	if err != nil {
		return fmt.Errorf("annex: create event: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("annex: create event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, filter *eventlog.QueryFilter) ([]*eventlog.Entry, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if filter != nil {
		if !filter.ExtensionID.IsNil() {
			q = q.Where("extension_id = ?", filter.ExtensionID.String())
		}
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.OrganizationID != "" {
			q = q.Where("organization_id = ?", filter.OrganizationID)
		}
		if filter.Event != "" {
			q = q.Where("event = ?", string(filter.Event))
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if limit := pageLimit(filter.Limit, filter.Offset); limit > 0 {
			q = q.Limit(limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("annex: list events: %w", err)
	}
	result := make([]*eventlog.Entry, len(models))
	for i := range models {
		e, err := eventFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("annex: list events: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CountEvents(ctx context.Context, filter *eventlog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*eventModel)(nil))
	if filter != nil {
		if !filter.ExtensionID.IsNil() {
			q = q.Where("extension_id = ?", filter.ExtensionID.String())
		}
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.OrganizationID != "" {
			q = q.Where("organization_id = ?", filter.OrganizationID)
		}
		if filter.Event != "" {
			q = q.Where("event = ?", string(filter.Event))
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("annex: count events: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*eventModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("annex: purge events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("annex: purge events rows: %w", err)
	}
	return n, nil
}
