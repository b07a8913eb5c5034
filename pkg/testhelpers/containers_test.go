//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	for _, table := range []string{"data_sources", "file_assets"} {
		var exists bool
		err := engineDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to look up %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestEngineDB_RowLevelSecurityEnabled(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	var enabled bool
	err := engineDB.DB.Pool.QueryRow(ctx,
		"SELECT relrowsecurity FROM pg_class WHERE relname = 'data_sources'").Scan(&enabled)
	if err != nil {
		t.Fatalf("failed to read pg_class: %v", err)
	}
	if !enabled {
		t.Error("expected row level security on data_sources")
	}
}
