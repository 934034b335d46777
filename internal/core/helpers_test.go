package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cmrcore/pkg/domain"
)

type item struct {
	Name string   `json:"name"`
	Refs []string `json:"refs,omitempty"`
}

func (v item) Validate() error {
	if v.Name == "" {
		return errors.New("name required")
	}
	return nil
}

func (v item) RelatedIDs() []string { return v.Refs }

func (v item) DisplayName() string { return v.Name }

var (
	itemKind  = domain.Kind{Tag: "Item"}
	groupKind = domain.Kind{Tag: "Group", Relation: "HAS_ITEM", RelatedKind: "Item"}
)

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// stepClock advances one minute on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type fixture struct {
	svc    *Service
	items  *Repository[item]
	groups *Repository[item]
	clock  *stepClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := &stepClock{now: epoch}
	opts = append([]Option{WithClock(clock)}, opts...)
	svc := NewInMemoryService(NewDefaultRulesEngine(itemKind, groupKind), opts...)
	ctx := context.Background()
	for _, lib := range []domain.LibraryPolicy{{Name: "Sponsor", Editable: true}, {Name: "CDISC", Editable: false}} {
		if err := svc.RegisterLibrary(ctx, lib); err != nil {
			t.Fatalf("register %s: %v", lib.Name, err)
		}
	}
	return &fixture{
		svc:    svc,
		items:  NewRepository[item](svc, itemKind),
		groups: NewRepository[item](svc, groupKind),
		clock:  clock,
	}
}

func (f *fixture) createItem(t *testing.T, name string) *domain.Aggregate[item] {
	t.Helper()
	agg, err := f.items.Create(context.Background(), CreateRequest[item]{Value: item{Name: name}, Library: "Sponsor", AuthorID: "alice"})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return agg
}

func (f *fixture) approve(t *testing.T, repo *Repository[item], uid string) *domain.Aggregate[item] {
	t.Helper()
	agg, err := repo.Approve(context.Background(), uid, "alice")
	if err != nil {
		t.Fatalf("approve %s: %v", uid, err)
	}
	return agg
}

func requireCode(t *testing.T, err error, want domain.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := domain.Code(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+" "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *recordingLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

type recordingMetrics struct {
	mu     sync.Mutex
	ops    map[string][2]int
	hits   int
	misses int
	kinds  []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: make(map[string][2]int)}
}

func (m *recordingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.ops[op]
	if success {
		c[0]++
	} else {
		c[1]++
	}
	m.ops[op] = c
}

func (m *recordingMetrics) ObserveCache(kind string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
