package core

import (
	"context"
	"fmt"
	"time"

	"cmrcore/internal/infra/persistence/memory"
	"cmrcore/pkg/domain"
)

// Clock supplies transition timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the transition clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCache enables the read-through cache in front of FindLatest.
func WithCache(cache *Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// Service bundles the store with the collaborators every repository shares:
// clock, uid allocator, relationship maintainer, cache and observability.
type Service struct {
	store         domain.PersistentStore
	clock         Clock
	logger        Logger
	audit         AuditRecorder
	metrics       MetricsRecorder
	tracer        Tracer
	cache         *Cache
	uids          *UIDAllocator
	relationships *RelationshipMaintainer
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uids = NewUIDAllocator(store)
	s.relationships = NewRelationshipMaintainer(store)
	if s.cache != nil {
		if obs, ok := s.metrics.(CacheObserver); ok {
			s.cache.observer = obs
		}
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// UIDs returns the store-backed uid allocator.
func (s *Service) UIDs() *UIDAllocator { return s.uids }

// Relationships returns the relationship maintainer.
func (s *Service) Relationships() *RelationshipMaintainer { return s.relationships }

// Cache returns the read-through cache, nil when disabled.
func (s *Service) Cache() *Cache { return s.cache }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// RegisterLibrary creates or updates a library policy.
func (s *Service) RegisterLibrary(ctx context.Context, library domain.LibraryPolicy) error {
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.UpsertLibrary(library)
	})
	if err != nil {
		return fmt.Errorf("register library %s: %w", library.Name, err)
	}
	// Cached aggregates carry their library policy.
	s.cache.Purge()
	s.logger.Info("library registered", "library", library.Name, "editable", library.Editable)
	return nil
}

// FindLibrary resolves a library policy by name.
func (s *Service) FindLibrary(ctx context.Context, name string) (domain.LibraryPolicy, error) {
	var (
		lib domain.LibraryPolicy
		ok  bool
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		lib, ok = v.FindLibrary(name)
		return nil
	})
	if err != nil {
		return domain.LibraryPolicy{}, err
	}
	if !ok {
		return domain.LibraryPolicy{}, domain.NotFoundError{Kind: "library", UID: name}
	}
	return lib, nil
}

// ListLibraries returns every registered library ordered by name.
func (s *Service) ListLibraries(ctx context.Context) ([]domain.LibraryPolicy, error) {
	var libs []domain.LibraryPolicy
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		libs = v.ListLibraries()
		return nil
	})
	return libs, err
}

// operation describes an instrumented lifecycle call. Callees fill in UID
// and Version once known.
type operation struct {
	Action  domain.Action
	Kind    string
	UID     string
	Actor   string
	Version domain.Version
}

func (s *Service) instrument(ctx context.Context, op *operation, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, string(op.Action))
	err := fn(ctx)
	span.End(err)
	duration := time.Since(started)
	s.metrics.Observe(ctx, string(op.Action), err == nil, duration)

	entry := AuditEntry{
		Operation: op.Action,
		Kind:      op.Kind,
		UID:       op.UID,
		Actor:     op.Actor,
		Version:   op.Version,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Code = domain.Code(err)
		entry.Error = err.Error()
		s.logger.Warn("transition rejected", "action", op.Action, "kind", op.Kind, "uid", op.UID,
			"code", entry.Code, "error", err)
	} else {
		s.logger.Info("transition committed", "action", op.Action, "kind", op.Kind, "uid", op.UID,
			"version", op.Version.String(), "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return err
}
