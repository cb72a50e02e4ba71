//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	for _, table := range Tables {
		var exists bool
		err := testDB.DB.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables
			 WHERE table_schema = 'public' AND table_name = $1)`, table).
			Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}

func TestTestDB_Truncate(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	_, err := testDB.DB.Exec(ctx,
		`INSERT INTO ingestion_log (message_id, status) VALUES ('truncate-me', 'success')`)
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	testDB.Truncate(t)

	var n int
	if err := testDB.DB.QueryRow(ctx, `SELECT count(*) FROM ingestion_log`).Scan(&n); err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty ingestion_log after truncate, got %d rows", n)
	}
}
