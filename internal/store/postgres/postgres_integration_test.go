package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/triagehub/triagehub/internal/store"
	"github.com/triagehub/triagehub/internal/store/storetest"
)

func makePGStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("TRIAGE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRIAGE_POSTGRES_DSN not set; skipping postgres store integration test")
	}
	ctx := context.Background()
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	// The suite asserts on whole-store counts; start from empty tables.
	if _, err := db.ExecContext(ctx, `TRUNCATE messages, issues`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewWithDB(db)
}

func TestPostgresStore_Compliance(t *testing.T) {
	storetest.Run(t, makePGStore)
}
