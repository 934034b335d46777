package core

import (
	"context"
	"sync"
	"testing"

	"cmrcore/pkg/domain"
)

func TestFormatUID(t *testing.T) {
	if got := FormatUID("CTTerm", 1); got != "CTTerm_000001" {
		t.Fatalf("unexpected uid %s", got)
	}
	if got := FormatUID("CTTerm", 999999); got != "CTTerm_999999" {
		t.Fatalf("unexpected widest padded uid %s", got)
	}
	if got := FormatUID("CTTerm", 1234567); got != "CTTerm_1234567" {
		t.Fatalf("unexpected wide uid %s", got)
	}
}

func TestSuppliedUIDDoesNotBlockAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplied, err := f.items.Create(ctx, CreateRequest[item]{UID: FormatUID(itemKind.Tag, 1), Value: item{Name: "Imported"}, Library: "Sponsor"})
	if err != nil {
		t.Fatalf("create with uid: %v", err)
	}
	if supplied.UID() != "Item_000001" {
		t.Fatalf("supplied uid not kept: %s", supplied.UID())
	}
	for i, name := range []string{"First", "Second", "Third"} {
		agg, err := f.items.Create(ctx, CreateRequest[item]{Value: item{Name: name}, Library: "Sponsor"})
		if err != nil {
			t.Fatalf("allocated create %d: %v", i, err)
		}
		if want := FormatUID(itemKind.Tag, int64(i+2)); agg.UID() != want {
			t.Fatalf("expected %s, got %s", want, agg.UID())
		}
	}

	_, err = f.items.Create(ctx, CreateRequest[item]{UID: FormatUID(itemKind.Tag, 3), Value: item{Name: "Clash"}, Library: "Sponsor"})
	requireCode(t, err, domain.CodeConflict)
	if agg, err := f.items.Create(ctx, CreateRequest[item]{Value: item{Name: "After clash"}, Library: "Sponsor"}); err != nil || agg.UID() != "Item_000005" {
		t.Fatalf("allocation after rejected uid: %v %v", agg, err)
	}
}

func TestUIDAllocatorSkipsOccupiedNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, n := range []int64{1, 2} {
		if _, err := f.items.Create(ctx, CreateRequest[item]{UID: FormatUID(itemKind.Tag, n), Value: item{Name: FormatUID("n", n)}, Library: "Sponsor"}); err != nil {
			t.Fatalf("create %d: %v", n, err)
		}
	}
	uid, err := f.svc.UIDs().Next(ctx, itemKind.Tag)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if uid != "Item_000003" {
		t.Fatalf("expected first free uid Item_000003, got %s", uid)
	}
}

func TestUIDAllocatorScopesAndSerialises(t *testing.T) {
	svc := NewInMemoryService(nil)
	alloc := svc.UIDs()
	ctx := context.Background()

	a, _ := alloc.Next(ctx, "A")
	b, _ := alloc.Next(ctx, "B")
	a2, _ := alloc.Next(ctx, "A")
	if a != "A_000001" || b != "B_000001" || a2 != "A_000002" {
		t.Fatalf("unexpected sequence %s %s %s", a, b, a2)
	}

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid, err := alloc.Next(ctx, "C")
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			seen[uid] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n || !seen[FormatUID("C", n)] {
		t.Fatalf("expected %d distinct uids, got %d", n, len(seen))
	}
	if _, err := alloc.Next(ctx, ""); err == nil {
		t.Fatalf("expected error for empty tag")
	}
}

func TestDeletedUIDsAreNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.createItem(t, "Temp").UID()
	if err := f.items.SoftDelete(ctx, uid, "alice"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	next := f.createItem(t, "Next").UID()
	if next == uid || next != "Item_000002" {
		t.Fatalf("expected fresh uid, got %s after %s", next, uid)
	}
}
