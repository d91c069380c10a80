// Package mongo provides a MongoDB implementation of the annex composite
// store using grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/manifest"
	"github.com/xraph/annex/storage"
	"github.com/xraph/annex/store"
)

// Collection name constants.
const (
	colExtensions = "annex_extensions"
	colStorage    = "annex_storage"
	colEvents     = "annex_events"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite annex store.
//
// MongoDB gives no cross-collection atomicity without replica-set
// transactions, so storage writes re-check the owning extension after the
// upsert and remove the key if it was uninstalled in between.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all annex collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("annex/mongo: migrate %s indexes: %w", col, err)
		}
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all annex collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colExtensions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colStorage: {
			{
				Keys:    bson.D{{Key: "extension_id", Value: 1}, {Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colEvents: {
			{Keys: bson.D{{Key: "extension_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Extension operations
// ──────────────────────────────────────────────────

func (s *Store) CreateExtension(ctx context.Context, e *extension.Extension) error {
	t := now()
	e.CreatedAt = t
	e.UpdatedAt = t
	m, err := extensionToModel(e)
	if err != nil {
		return fmt.Errorf("annex: create extension: %w", err)
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("annex: create extension: %w", err)
	}
	return nil
}

func (s *Store) GetExtension(ctx context.Context, extID id.ExtensionID) (*extension.Extension, error) {
	var m extensionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": extID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("annex: get extension: %w", err)
	}
	e, err := extensionFromModel(&m)
	if err != nil {
		return nil, fmt.Errorf("annex: get extension: %w", err)
	}
	return e, nil
}

func extensionFilter(filter *extension.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.OrganizationID != "" {
		f["organization_id"] = filter.OrganizationID
	}
	if filter.IsActive != nil {
		f["is_active"] = *filter.IsActive
	}
	if filter.Type != "" {
		f["type"] = string(filter.Type)
	}
	if filter.Source != "" {
		f["installation_source"] = string(filter.Source)
	}
	return f
}

func (s *Store) ListExtensions(ctx context.Context, filter *extension.ListFilter) ([]*extension.Extension, error) {
	var models []extensionModel
	q := s.mdb.NewFind(&models).
		Filter(extensionFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*extensionModel)(nil)).
		Filter(extensionFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("annex: count extensions: %w", err)
	}
	return count, nil
}

func (s *Store) SetExtensionActive(ctx context.Context, extID id.ExtensionID, active bool) (*extension.Extension, bool, error) {
	res, err := s.mdb.NewUpdate((*extensionModel)(nil)).
		Filter(bson.M{"_id": extID.String(), "is_active": bson.M{"$ne": active}}).
		Set("is_active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("annex: set extension active: %w", err)
	}
	e, err := s.GetExtension(ctx, extID)
	if err != nil {
		return nil, false, err
	}
	return e, res.MatchedCount() > 0, nil
}

func (s *Store) SetExtensionSettingsValues(ctx context.Context, extID id.ExtensionID, values manifest.Values) (*extension.Extension, error) {
	encoded, err := marshalValues(values)
	if err != nil {
		return nil, fmt.Errorf("annex: set settings values: %w", err)
	}
	res, err := s.mdb.NewUpdate((*extensionModel)(nil)).
		Filter(bson.M{"_id": extID.String(), "settings_configurable": true}).
		Set("settings_values", encoded).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("annex: set settings values: %w", err)
	}
	e, err := s.GetExtension(ctx, extID)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount() == 0 {
		return nil, fmt.Errorf("extension %s is not configurable: %w", extID, store.ErrConditionFailed)
	}
	return e, nil
}

func (s *Store) ReplaceExtensionManifest(ctx context.Context, next *extension.Extension, fromVersion string) (*extension.Extension, error) {
	m, err := extensionToModel(next)
	if err != nil {
		return nil, fmt.Errorf("annex: replace extension manifest: %w", err)
	}
	res, err := s.mdb.NewUpdate((*extensionModel)(nil)).
		Filter(bson.M{"_id": m.ID, "version": fromVersion}).
		Set("name", m.Name).
		Set("description", m.Description).
		Set("version", m.Version).
		Set("type", m.Type).
		Set("settings_configurable", m.SettingsConfigurable).
		Set("manifest", m.Manifest).
		Set("settings_values", m.SettingsValues).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("annex: replace extension manifest: %w", err)
	}
	e, err := s.GetExtension(ctx, next.ID)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount() == 0 {
		return nil, fmt.Errorf("extension %s is at version %s, not %s: %w", next.ID, e.Version, fromVersion, store.ErrConditionFailed)
	}
	return e, nil
}

func (s *Store) DeleteExtension(ctx context.Context, extID id.ExtensionID) error {
	res, err := s.mdb.NewDelete((*extensionModel)(nil)).
		Filter(bson.M{"_id": extID.String(), "is_system": false}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: delete extension: %w", err)
	}
	if res.DeletedCount() == 0 {
		if _, err := s.GetExtension(ctx, extID); err != nil {
			return err
		}
		return fmt.Errorf("extension %s is a system extension: %w", extID, store.ErrConditionFailed)
	}

	_, err = s.mdb.NewDelete((*storageItemModel)(nil)).
		Many().
		Filter(bson.M{"extension_id": extID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: delete extension storage: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Storage operations
// ──────────────────────────────────────────────────

func (s *Store) GetStorageItem(ctx context.Context, extID id.ExtensionID, key string) (*storage.Item, error) {
	var m storageItemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": storageItemID(extID, key)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("storage item %s/%s: %w", extID, key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("annex: get storage item: %w", err)
	}
	return storageItemFromModel(&m), nil
}

func (s *Store) UpsertStorageItem(ctx context.Context, item *storage.Item) error {
	if err := s.requireExtension(ctx, item.ExtensionID); err != nil {
		return err
	}

	t := now()
	docID := storageItemID(item.ExtensionID, item.Key)
	var stored struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	err := s.mdb.Collection(colStorage).FindOneAndUpdate(ctx,
		bson.M{"_id": docID},
		bson.M{
			"$set": bson.M{
				"value":      string(item.Value),
				"updated_at": t,
			},
			"$setOnInsert": bson.M{
				"extension_id": item.ExtensionID.String(),
				"key":          item.Key,
				"created_at":   t,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&stored)
	if err != nil {
		return fmt.Errorf("annex: upsert storage item: %w", err)
	}
	// An overwrite keeps the first write's creation time.
	item.CreatedAt = stored.CreatedAt.UTC()
	item.UpdatedAt = t

	// An uninstall may have removed the extension and its keys between
	// the check and the write.
	if err := s.requireExtension(ctx, item.ExtensionID); err != nil {
		if _, derr := s.mdb.NewDelete((*storageItemModel)(nil)).
			Filter(bson.M{"_id": docID}).
			Exec(ctx); derr != nil {
			return fmt.Errorf("annex: remove orphaned storage item: %w", derr)
		}
		return err
	}
	return nil
}

func (s *Store) requireExtension(ctx context.Context, extID id.ExtensionID) error {
	n, err := s.mdb.NewFind((*extensionModel)(nil)).
		Filter(bson.M{"_id": extID.String()}).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("annex: check extension: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("extension %s: %w", extID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteStorageItem(ctx context.Context, extID id.ExtensionID, key string) error {
	_, err := s.mdb.NewDelete((*storageItemModel)(nil)).
		Filter(bson.M{"_id": storageItemID(extID, key)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("annex: delete storage item: %w", err)
	}
	return nil
}

func (s *Store) ListStorageItems(ctx context.Context, extID id.ExtensionID) ([]*storage.Item, error) {
	var models []storageItemModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"extension_id": extID.String()}).
		Sort(bson.D{{Key: "key", Value: 1}}).
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
		e.CreatedAt = now()
	}
	if _, err := s.mdb.NewInsert(eventToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("annex: create event: %w", err)
	}
	return nil
}

func eventFilter(filter *eventlog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if !filter.ExtensionID.IsNil() {
		f["extension_id"] = filter.ExtensionID.String()
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.OrganizationID != "" {
		f["organization_id"] = filter.OrganizationID
	}
	if filter.Event != "" {
		f["event"] = string(filter.Event)
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gt"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lt"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

func (s *Store) ListEvents(ctx context.Context, filter *eventlog.QueryFilter) ([]*eventlog.Entry, error) {
	var models []eventModel
	q := s.mdb.NewFind(&models).
		Filter(eventFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*eventModel)(nil)).
		Filter(eventFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("annex: count events: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*eventModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("annex: purge events: %w", err)
	}
	return res.DeletedCount(), nil
}
