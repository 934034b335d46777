package terminology

import (
	"context"
	"sync"
	"testing"
	"time"

	"cmrcore/internal/core"
	"cmrcore/pkg/domain"
)

var epoch = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newCatalog(t testing.TB) *Catalog {
	t.Helper()
	svc := core.NewInMemoryService(NewRulesEngine(), core.WithClock(&tickClock{now: epoch}), core.WithCache(core.NewCache(64, time.Minute)))
	ctx := context.Background()
	for _, lib := range []domain.LibraryPolicy{
		{Name: "Sponsor", Editable: true},
		{Name: "Study", Editable: true},
		{Name: "CDISC", Editable: false},
	} {
		if err := svc.RegisterLibrary(ctx, lib); err != nil {
			t.Fatalf("register %s: %v", lib.Name, err)
		}
	}
	return NewCatalog(svc)
}

func term(submission string) Term {
	return Term{SubmissionValue: submission, PreferredTerm: submission + " preferred"}
}

func (c *Catalog) mustCreateTerm(t testing.TB, submission string) *domain.Aggregate[Term] {
	t.Helper()
	agg, err := c.Terms.Create(context.Background(), core.CreateRequest[Term]{Value: term(submission), Library: "Sponsor", AuthorID: "alice"})
	if err != nil {
		t.Fatalf("create term %s: %v", submission, err)
	}
	return agg
}

func requireCode(t testing.TB, err error, want domain.ErrorCode) {
	t.Helper()
	if got := domain.Code(err); err == nil || got != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func requireVersion(t testing.TB, agg *domain.Aggregate[Term], status domain.Status, version string) {
	t.Helper()
	if agg.Status() != status || agg.Version().String() != version {
		t.Fatalf("expected %s %s, got %s %s", status, version, agg.Status(), agg.Version())
	}
}
