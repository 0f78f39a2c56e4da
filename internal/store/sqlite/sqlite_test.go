package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/triagehub/triagehub/internal/store"
	"github.com/triagehub/triagehub/internal/store/storetest"
)

func makeSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triage.db")
	s, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	return s
}

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, makeSQLiteStore)
}
