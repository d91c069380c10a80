//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres runs a throwaway Postgres with the annex schema applied and
// returns a connection plus its DSN.
func startPostgres(t *testing.T) (*pgx.Conn, string) {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("annex"),
		tcpostgres.WithUsername("annex"),
		tcpostgres.WithPassword("annex"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close(context.Background()) })

	for _, ddl := range []string{createExtensionsSQL, createStorageSQL, createEventsSQL} {
		if _, err := conn.Exec(ctx, ddl); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn, dsn
}

func insertExtension(t *testing.T, conn *pgx.Conn, id, typ string, system bool) {
	t.Helper()
	_, err := conn.Exec(context.Background(), `
INSERT INTO annex_extensions (id, user_id, name, version, type, installation_source, is_system, manifest)
VALUES ($1, 'u1', 'Weather', '1.0.0', $2, 'custom', $3, '{}')`, id, typ, system)
	if err != nil {
		t.Fatalf("insert extension: %v", err)
	}
}

func TestSchema_StorageCascade(t *testing.T) {
	ctx := context.Background()
	conn, _ := startPostgres(t)

	insertExtension(t, conn, "ext_a", "slack", false)
	if _, err := conn.Exec(ctx, `INSERT INTO annex_storage (extension_id, key, value) VALUES ('ext_a', 'k', '1')`); err != nil {
		t.Fatal(err)
	}

	// Upserting keeps a single row per key.
	_, err := conn.Exec(ctx, `
INSERT INTO annex_storage (extension_id, key, value) VALUES ('ext_a', 'k', '2')
ON CONFLICT (extension_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`)
	if err != nil {
		t.Fatal(err)
	}
	var value string
	if err := conn.QueryRow(ctx, `SELECT value FROM annex_storage WHERE extension_id = 'ext_a' AND key = 'k'`).Scan(&value); err != nil {
		t.Fatal(err)
	}
	if value != "2" {
		t.Errorf("value = %q", value)
	}

	if _, err := conn.Exec(ctx, `DELETE FROM annex_extensions WHERE id = 'ext_a'`); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM annex_storage WHERE extension_id = 'ext_a'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("storage rows survived delete: %d", n)
	}
}

func TestSchema_StorageRequiresExtension(t *testing.T) {
	conn, _ := startPostgres(t)

	_, err := conn.Exec(context.Background(), `INSERT INTO annex_storage (extension_id, key, value) VALUES ('ext_missing', 'k', '1')`)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		t.Fatalf("expected foreign key violation, got %v", err)
	}
	if !isForeignKeyViolation(err) {
		t.Error("isForeignKeyViolation did not recognise the error")
	}
}

func TestSchema_ClosedEnums(t *testing.T) {
	ctx := context.Background()
	conn, _ := startPostgres(t)

	_, err := conn.Exec(ctx, `
INSERT INTO annex_extensions (id, user_id, name, version, type, installation_source, manifest)
VALUES ('ext_b', 'u1', 'X', '1.0.0', 'teams', 'custom', '{}')`)
	if err == nil {
		t.Fatal("expected type check violation")
	}

	insertExtension(t, conn, "ext_c", "api", true)
	var active, system bool
	if err := conn.QueryRow(ctx, `SELECT is_active, is_system FROM annex_extensions WHERE id = 'ext_c'`).Scan(&active, &system); err != nil {
		t.Fatal(err)
	}
	if !active || !system {
		t.Errorf("defaults: active=%v system=%v", active, system)
	}
}
