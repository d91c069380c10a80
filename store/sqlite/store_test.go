package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/store"
	"github.com/xraph/annex/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, filepath.Join(t.TempDir(), "annex.db")); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		t.Fatalf("grove open: %v", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestListExtensions_OffsetWithoutLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	for range 3 {
		if err := s.CreateExtension(ctx, storetest.NewExtension("u1", "", extension.SourceCustom, false)); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListExtensions(ctx, &extension.ListFilter{Offset: 1})
	if err != nil {
		t.Fatalf("ListExtensions: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("got %d extensions, want 2", len(list))
	}
}

func TestPageLimit(t *testing.T) {
	tests := []struct {
		limit, offset int
		unbounded     bool
		want          int
	}{
		{0, 0, false, 0},
		{10, 0, false, 10},
		{10, 5, false, 10},
		{0, 5, true, 0},
	}
	for _, tt := range tests {
		got := pageLimit(tt.limit, tt.offset)
		if tt.unbounded {
			if got <= 0 {
				t.Errorf("pageLimit(%d, %d) = %d, want unbounded", tt.limit, tt.offset, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("pageLimit(%d, %d) = %d, want %d", tt.limit, tt.offset, got, tt.want)
		}
	}
}
