package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the annex store (SQLite).
var Migrations = migrate.NewGroup("annex")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_extensions",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS annex_extensions (
    id                    TEXT PRIMARY KEY,
    user_id               TEXT NOT NULL,
    organization_id       TEXT NOT NULL DEFAULT '',
    name                  TEXT NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    version               TEXT NOT NULL,
    type                  TEXT NOT NULL,
    installation_source   TEXT NOT NULL,
    is_active             INTEGER NOT NULL DEFAULT 1,
    is_system             INTEGER NOT NULL DEFAULT 0,
    settings_configurable INTEGER NOT NULL DEFAULT 0,
    manifest              TEXT NOT NULL,
    settings_values       TEXT NOT NULL DEFAULT '{}',
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_annex_extensions_user ON annex_extensions (user_id);
CREATE INDEX IF NOT EXISTS idx_annex_extensions_org ON annex_extensions (organization_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS annex_extensions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_storage",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS annex_storage (
    extension_id    TEXT NOT NULL REFERENCES annex_extensions(id) ON DELETE CASCADE,
    key             TEXT NOT NULL,
    value           TEXT NOT NULL,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (extension_id, key)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS annex_storage`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_events",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS annex_events (
    id              TEXT PRIMARY KEY,
    extension_id    TEXT NOT NULL,
    user_id         TEXT NOT NULL DEFAULT '',
    organization_id TEXT NOT NULL DEFAULT '',
    event           TEXT NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    version         TEXT NOT NULL DEFAULT '',
    actor           TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_annex_events_extension ON annex_events (extension_id, created_at);
CREATE INDEX IF NOT EXISTS idx_annex_events_created ON annex_events (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS annex_events`)
				return err
			},
		},
	)
}
