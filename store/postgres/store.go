// Package postgres provides a PostgreSQL implementation of the annex
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store is a PostgreSQL implementation of the composite annex store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("annex: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("annex: migration failed: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isForeignKeyViolation reports a write that referenced a missing parent row.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
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
	if _, err := s.pgdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("annex: create extension: %w", err)
	}
	return nil
}

func (s *Store) GetExtension(ctx context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	m := new(extensionModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", extID.String()).Scan(ctx)
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
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
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
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
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
	q := s.pgdb.NewSelect((*extensionModel)(nil))
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
	res, err := s.pgdb.NewUpdate((*extensionModel)(nil)).
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
	encoded, err := toDocument(values)
	if err != nil {
		return nil, fmt.Errorf("annex: set settings values: %w", err)
	}
	res, err := s.pgdb.NewUpdate((*extensionModel)(nil)).
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
	res, err := s.pgdb.NewUpdate((*extensionModel)(nil)).
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

// DeleteExtension removes a non-system record. Storage rows follow through
// the ON DELETE CASCADE foreign key.
func (s *Store) DeleteExtension(ctx context.Context, extID id.ExtensionID) error {
	res, err := s.pgdb.NewDelete((*extensionModel)(nil)).
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
	if n > 0 {
		return nil
	}
	if _, err := s.GetExtension(ctx, extID); err != nil {
		return err
	}
	return fmt.Errorf("extension %s is a system extension: %w", extID, store.ErrConditionFailed)
}

// ──────────────────────────────────────────────────
// Storage operations
// ──────────────────────────────────────────────────

func (s *Store) GetStorageItem(ctx context.Context, extID id.ExtensionID, key string) (*storage.Item, error) {
	m := new(storageItemModel)
	err := s.pgdb.NewSelect(m).
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

// UpsertStorageItem relies on the foreign key to reject keys for missing
// extensions, so the check and the write are one statement.
func (s *Store) UpsertStorageItem(ctx context.Context, item *storage.Item) error {
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	_, err := s.pgdb.NewInsert(storageItemToModel(item)).
		OnConflict("(extension_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("extension %s: %w", item.ExtensionID, store.ErrNotFound)
		}
		return fmt.Errorf("annex: upsert storage item: %w", err)
	}

	// An overwrite keeps the first write's creation time. The row may
	// already be gone if the extension was uninstalled since.
	stored, err := s.GetStorageItem(ctx, item.ExtensionID, item.Key)
	switch {
	case err == nil:
		item.CreatedAt = stored.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	return nil
}

func (s *Store) DeleteStorageItem(ctx context.Context, extID id.ExtensionID, key string) error {
	_, err := s.pgdb.NewDelete((*storageItemModel)(nil)).
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
	err := s.pgdb.NewSelect(&models).
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
	if _, err := s.pgdb.NewInsert(eventToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("annex: create event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, filter *eventlog.QueryFilter) ([]*eventlog.Entry, error) {
	var models []eventModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
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
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
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
		result[i] = eventFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountEvents(ctx context.Context, filter *eventlog.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*eventModel)(nil))
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
	res, err := s.pgdb.NewDelete((*eventModel)(nil)).
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
