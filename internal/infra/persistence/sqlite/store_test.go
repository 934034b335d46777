package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cmrcore/pkg/domain"
)

func createTerm(ctx context.Context, store *Store, uid string) error {
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.UpsertLibrary(domain.LibraryPolicy{Name: "Sponsor", Editable: true}); err != nil {
			return err
		}
		_, err := tx.CreateRoot(domain.Root{UID: uid, Kind: "Term", Library: "Sponsor"}, domain.Entry{
			Name:  "Foo",
			Value: domain.NewChangePayload(json.RawMessage(`{"name":"Foo"}`)),
			Metadata: domain.VersionMetadata{
				Status:    domain.StatusDraft,
				Version:   domain.InitialDraftVersion,
				StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		})
		return err
	})
	return err
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	if err := createTerm(context.Background(), store, "Term_000001"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	_ = reloaded.View(context.Background(), func(v domain.TransactionView) error {
		root, ok := v.FindRoot("Term_000001")
		if !ok || root.Revision != 1 {
			t.Fatalf("expected reloaded root, got %+v", root)
		}
		if _, ok := v.FindLibrary("Sponsor"); !ok {
			t.Fatalf("expected reloaded library")
		}
		return nil
	})
}

func TestSQLiteStoreSkipsPersistOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted buckets, got %d", count)
	}
}

func TestSQLiteStoreKeepsStateWhenPersistFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	if err := createTerm(ctx, store, "Term_000001"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	if err := createTerm(ctx, store, "Term_000002"); err == nil {
		t.Fatalf("expected persist failure on closed database")
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindRoot("Term_000002"); ok {
			t.Fatalf("root visible after failed persist")
		}
		if _, ok := v.FindRoot("Term_000001"); !ok {
			t.Fatalf("previously committed root lost")
		}
		return nil
	})
}
