package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "splitledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestStore(t) })
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "splitledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Nested path exercises parent directory creation.
	dbPath := filepath.Join(tempDir, "nested", "ledger.db")
	ctx := context.Background()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	rec := &models.PairwiseBalance{Debtor: "bob", Creditor: "alice", Amount: money.MustParse("33.333333")}
	if err := store.UpsertPair(ctx, rec); err != nil {
		t.Fatalf("UpsertPair failed: %v", err)
	}
	store.Close()

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.FindPair(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("FindPair failed: %v", err)
	}
	if got.Amount.String() != "33.333333" {
		t.Errorf("Amount mismatch: got %s, want 33.333333", got.Amount)
	}
	if got.Version != 1 {
		t.Errorf("Version mismatch: got %d, want 1", got.Version)
	}
}

func TestSQLiteStoreRejectsSelfPair(t *testing.T) {
	store := newTestStore(t)

	err := store.UpsertPair(context.Background(), &models.PairwiseBalance{Debtor: "a", Creditor: "a", Amount: money.New(1)})
	if err == nil {
		t.Error("Expected error for self pair, got nil")
	}
}
