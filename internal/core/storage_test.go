package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cmrcore/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	store, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	_ = store.Close()

	if _, err := OpenPersistentStore(ctx, StorageConfig{Driver: "cassandra"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Storage: StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "cmr.db")},
		Cache:   CacheConfig{Size: 4, TTL: time.Minute},
	}
	engine := NewDefaultRulesEngine(itemKind)
	svc, err := OpenService(ctx, cfg, engine)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if svc.Cache() == nil {
		t.Fatalf("expected cache to be configured")
	}
	if err := svc.RegisterLibrary(ctx, domain.LibraryPolicy{Name: "Sponsor", Editable: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	repo := NewRepository[item](svc, itemKind)
	agg, err := repo.Create(ctx, CreateRequest[item]{Value: item{Name: "Sodium"}, Library: "Sponsor", AuthorID: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Approve(ctx, agg.UID(), "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := svc.Store().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenService(ctx, cfg, engine)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Store().Close()
	repo = NewRepository[item](reopened, itemKind)
	hist, err := repo.FullHistory(ctx, agg.UID())
	if err != nil || len(hist) != 2 {
		t.Fatalf("history after reopen: %v %d", err, len(hist))
	}
	if hist[0].Metadata.Status != domain.StatusFinal || hist[1].Metadata.EndDate == nil {
		t.Fatalf("unexpected reloaded history %+v", hist)
	}
	next, err := repo.Create(ctx, CreateRequest[item]{Value: item{Name: "Potassium"}, Library: "Sponsor"})
	if err != nil || next.UID() != "Item_000002" {
		t.Fatalf("counter must survive reopen: %v %v", err, next)
	}
}

func TestOpenServiceWithoutCache(t *testing.T) {
	svc, err := OpenService(context.Background(), Config{Storage: StorageConfig{Driver: StorageMemory}}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if svc.Cache() != nil {
		t.Fatalf("size 0 must disable the cache")
	}
}
