package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Schema DDL, one statement group per migration.
const (
	createExtensionsSQL = `
CREATE TABLE IF NOT EXISTS annex_extensions (
    id                    TEXT PRIMARY KEY,
    user_id               TEXT NOT NULL,
    organization_id       TEXT NOT NULL DEFAULT '',
    name                  TEXT NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    version               TEXT NOT NULL,
    type                  TEXT NOT NULL,
    installation_source   TEXT NOT NULL,
    is_active             BOOLEAN NOT NULL DEFAULT TRUE,
    is_system             BOOLEAN NOT NULL DEFAULT FALSE,
    settings_configurable BOOLEAN NOT NULL DEFAULT FALSE,
    manifest              JSONB NOT NULL,
    settings_values       JSONB NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT annex_extensions_type_check
        CHECK (type IN ('slack', 'chrome', 'salesforce', 'api')),
    CONSTRAINT annex_extensions_source_check
        CHECK (installation_source IN ('marketplace', 'custom', 'system'))
);

CREATE INDEX IF NOT EXISTS idx_annex_extensions_user ON annex_extensions (user_id);
CREATE INDEX IF NOT EXISTS idx_annex_extensions_org ON annex_extensions (organization_id);
`

	createStorageSQL = `
CREATE TABLE IF NOT EXISTS annex_storage (
    extension_id    TEXT NOT NULL REFERENCES annex_extensions(id) ON DELETE CASCADE,
    key             VARCHAR(255) NOT NULL,
    value           TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (extension_id, key)
);
`

	createEventsSQL = `
CREATE TABLE IF NOT EXISTS annex_events (
    id              TEXT PRIMARY KEY,
    extension_id    TEXT NOT NULL,
    user_id         TEXT NOT NULL DEFAULT '',
    organization_id TEXT NOT NULL DEFAULT '',
    event           TEXT NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    version         TEXT NOT NULL DEFAULT '',
    actor           TEXT NOT NULL DEFAULT '',
    metadata        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_annex_events_extension ON annex_events (extension_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_annex_events_created ON annex_events (created_at);
`
)

// Migrations is the grove migration group for the annex store (PostgreSQL).
var Migrations = migrate.NewGroup("annex")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_extensions",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, createExtensionsSQL)
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
				_, err := exec.Exec(ctx, createStorageSQL)
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
				_, err := exec.Exec(ctx, createEventsSQL)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS annex_events`)
				return err
			},
		},
	)
}
