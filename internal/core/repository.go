package core

import (
	"context"
	"fmt"
	"time"

	"cmrcore/pkg/domain"
)

// HistoryEntry is one decoded version of an aggregate.
type HistoryEntry[V domain.Value] struct {
	ID       string                 `json:"id"`
	Value    V                      `json:"value"`
	Metadata domain.VersionMetadata `json:"metadata"`
}

// FindOption adjusts lookups of the latest version.
type FindOption func(*findOptions)

type findOptions struct {
	includeDeleted bool
}

// IncludeDeleted makes soft-deleted aggregates visible.
func IncludeDeleted() FindOption {
	return func(o *findOptions) { o.includeDeleted = true }
}

// ListOptions filters List results. Zero values match everything except
// soft-deleted aggregates.
type ListOptions struct {
	Status         domain.Status
	Library        string
	IncludeDeleted bool
}

// Repository is the version history store for one aggregate kind.
type Repository[V domain.Value] struct {
	svc  *Service
	kind domain.Kind
}

// NewRepository binds a kind to the service's store.
func NewRepository[V domain.Value](svc *Service, kind domain.Kind) *Repository[V] {
	return &Repository[V]{svc: svc, kind: kind}
}

// Kind returns the bound kind.
func (r *Repository[V]) Kind() domain.Kind { return r.kind }

func (r *Repository[V]) notFound(uid, detail string) error {
	return domain.NotFoundError{Kind: r.kind.Tag, UID: uid, Detail: detail}
}

func (r *Repository[V]) root(view domain.RuleView, uid string) (domain.Root, error) {
	root, ok := view.FindRoot(uid)
	if !ok || root.Kind != r.kind.Tag {
		return domain.Root{}, r.notFound(uid, "")
	}
	return root, nil
}

func (r *Repository[V]) restore(view domain.TransactionView, root domain.Root, entry domain.Entry) (*domain.Aggregate[V], error) {
	value, err := domain.DecodeChangePayload[V](entry.Value)
	if err != nil {
		return nil, fmt.Errorf("%s %s version %s: %w", r.kind.Tag, root.UID, entry.Metadata.Version, err)
	}
	lib, ok := view.FindLibrary(root.Library)
	if !ok {
		lib = domain.LibraryPolicy{Name: root.Library}
	}
	return domain.RestoreAggregate(domain.AggregateState[V]{
		UID:          root.UID,
		Kind:         root.Kind,
		Value:        value,
		Library:      lib,
		Metadata:     entry.Metadata,
		Deleted:      root.Deleted,
		HighestMajor: root.HighestMajor,
		Revision:     root.Revision,
	}), nil
}

func (r *Repository[V]) loadLatest(view domain.TransactionView, uid string, includeDeleted bool) (*domain.Aggregate[V], error) {
	root, err := r.root(view, uid)
	if err != nil {
		return nil, err
	}
	if root.Deleted && !includeDeleted {
		return nil, r.notFound(uid, "deleted")
	}
	cur, ok := view.Current(uid)
	if !ok {
		return nil, r.notFound(uid, "no versions")
	}
	return r.restore(view, root, cur)
}

// findEntry loads the newest history entry matching pick, deleted
// aggregates included.
func (r *Repository[V]) findEntry(ctx context.Context, uid, detail string, pick func(domain.Entry) bool) (*domain.Aggregate[V], error) {
	var agg *domain.Aggregate[V]
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		root, err := r.root(v, uid)
		if err != nil {
			return err
		}
		hist := v.History(uid)
		for i := len(hist) - 1; i >= 0; i-- {
			if pick(hist[i]) {
				agg, err = r.restore(v, root, hist[i])
				return err
			}
		}
		return r.notFound(uid, detail)
	})
	return agg, err
}

// FindLatest returns the current version regardless of status. Soft-deleted
// aggregates are not found unless IncludeDeleted is passed.
func (r *Repository[V]) FindLatest(ctx context.Context, uid string, opts ...FindOption) (*domain.Aggregate[V], error) {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.includeDeleted {
		if cached, ok := r.svc.cache.get(r.kind.Tag, uid); ok {
			if agg, ok := cached.(*domain.Aggregate[V]); ok {
				return agg.Clone(), nil
			}
		}
	}
	gen := r.svc.cache.generation()
	var agg *domain.Aggregate[V]
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		agg, err = r.loadLatest(v, uid, o.includeDeleted)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !agg.Deleted() {
		r.svc.cache.put(r.kind.Tag, uid, gen, agg.Clone())
	}
	return agg, nil
}

// FindLatestFinal returns the most recent Final version.
func (r *Repository[V]) FindLatestFinal(ctx context.Context, uid string) (*domain.Aggregate[V], error) {
	return r.findEntry(ctx, uid, "no final version", func(e domain.Entry) bool {
		return e.Metadata.Status == domain.StatusFinal
	})
}

// FindAtVersion returns the exact version; there is no nearest match.
func (r *Repository[V]) FindAtVersion(ctx context.Context, uid string, version domain.Version) (*domain.Aggregate[V], error) {
	return r.findEntry(ctx, uid, "version "+version.String(), func(e domain.Entry) bool {
		return e.Metadata.Version == version
	})
}

// FindAtPointInTime returns the version whose [start, end) interval holds at.
func (r *Repository[V]) FindAtPointInTime(ctx context.Context, uid string, at time.Time) (*domain.Aggregate[V], error) {
	return r.findEntry(ctx, uid, "no version at "+at.Format(time.RFC3339), func(e domain.Entry) bool {
		return e.Metadata.Contains(at)
	})
}

// FullHistory returns every version, newest first.
func (r *Repository[V]) FullHistory(ctx context.Context, uid string) ([]HistoryEntry[V], error) {
	_, hist, err := r.history(ctx, uid)
	return hist, err
}

// history reads the root and its decoded versions from one snapshot.
func (r *Repository[V]) history(ctx context.Context, uid string) (domain.Root, []HistoryEntry[V], error) {
	var (
		root domain.Root
		out  []HistoryEntry[V]
	)
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		root, err = r.root(v, uid)
		if err != nil {
			return err
		}
		hist := v.History(uid)
		out = make([]HistoryEntry[V], 0, len(hist))
		for i := len(hist) - 1; i >= 0; i-- {
			value, err := domain.DecodeChangePayload[V](hist[i].Value)
			if err != nil {
				return fmt.Errorf("%s %s version %s: %w", r.kind.Tag, uid, hist[i].Metadata.Version, err)
			}
			out = append(out, HistoryEntry[V]{ID: hist[i].ID, Value: value, Metadata: hist[i].Metadata})
		}
		return nil
	})
	return root, out, err
}

// List returns the latest version of every aggregate of this kind matching
// opts, ordered by uid.
func (r *Repository[V]) List(ctx context.Context, opts ListOptions) ([]*domain.Aggregate[V], error) {
	var out []*domain.Aggregate[V]
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		for _, root := range v.ListRoots(r.kind.Tag) {
			if root.Deleted && !opts.IncludeDeleted {
				continue
			}
			if opts.Library != "" && root.Library != opts.Library {
				continue
			}
			agg, err := r.loadLatest(v, root.UID, true)
			if err != nil {
				return err
			}
			if opts.Status != "" && agg.Status() != opts.Status {
				continue
			}
			out = append(out, agg)
		}
		return nil
	})
	return out, err
}

// Save persists agg. With a nil prev it creates the aggregate; otherwise prev
// must be the snapshot agg was loaded as, and it must still match the stored
// current version or ConcurrentModificationError is returned. On success the
// aggregate is marked committed at its new revision.
func (r *Repository[V]) Save(ctx context.Context, agg, prev *domain.Aggregate[V]) error {
	var revision int64
	_, err := r.svc.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		revision, err = r.saveTx(tx, agg, prev)
		return err
	})
	if err != nil {
		return err
	}
	agg.Committed(revision)
	r.svc.cache.Invalidate(r.kind.Tag, agg.UID())
	return nil
}

func (r *Repository[V]) saveTx(tx domain.Transaction, agg, prev *domain.Aggregate[V]) (int64, error) {
	if agg == nil {
		return 0, fmt.Errorf("save %s: nil aggregate", r.kind.Tag)
	}
	if agg.Kind() != r.kind.Tag {
		return 0, fmt.Errorf("save %s: aggregate %s has kind %s", r.kind.Tag, agg.UID(), agg.Kind())
	}
	if prev == nil {
		return r.createTx(tx, agg)
	}
	if prev.UID() != agg.UID() {
		return 0, fmt.Errorf("save %s: previous aggregate %s does not match %s", r.kind.Tag, prev.UID(), agg.UID())
	}

	uid := agg.UID()
	root, err := r.root(tx, uid)
	if err != nil {
		return 0, err
	}
	cur, _ := tx.Current(uid)
	if root.Revision != prev.Revision() || root.Deleted != prev.Deleted() || !cur.Metadata.Equal(prev.Metadata()) {
		return 0, domain.ConcurrentModificationError{Kind: r.kind.Tag, UID: uid, Expected: prev.Revision(), Actual: root.Revision}
	}

	var (
		delta domain.RelationshipDelta
		at    time.Time
	)
	switch {
	case agg.Deleted() && !prev.Deleted():
		root, err = tx.MarkDeleted(uid, prev.Revision())
		if err != nil {
			return 0, err
		}
		delta = domain.DiffIDs(prev.RelatedIDs(), nil)
		at = r.svc.Now()
		if at.Before(cur.Metadata.StartDate) {
			at = cur.Metadata.StartDate
		}
	case !agg.Metadata().Equal(prev.Metadata()):
		entry, err := entryFor(agg)
		if err != nil {
			return 0, err
		}
		action := agg.PendingAction()
		if action == "" {
			action = inferAction(prev.Metadata(), agg.Metadata())
		}
		root, err = tx.AppendEntry(domain.AppendRequest{
			UID:              uid,
			ExpectedRevision: prev.Revision(),
			Action:           action,
			Entry:            entry,
			HighestMajor:     agg.HighestMajor(),
		})
		if err != nil {
			return 0, err
		}
		delta = domain.DiffIDs(prev.RelatedIDs(), agg.RelatedIDs())
		at = entry.Metadata.StartDate
	default:
		return root.Revision, nil
	}
	if _, err := r.svc.relationships.ApplyTx(tx, r.kind.Relation, uid, delta, at); err != nil {
		return 0, err
	}
	return root.Revision, nil
}

func (r *Repository[V]) createTx(tx domain.Transaction, agg *domain.Aggregate[V]) (int64, error) {
	uid := agg.UID()
	if existing, ok := tx.FindRoot(uid); ok {
		return 0, domain.ConcurrentModificationError{Kind: r.kind.Tag, UID: uid, Expected: 0, Actual: existing.Revision}
	}
	lib, ok := tx.FindLibrary(agg.Library().Name)
	if !ok {
		return 0, domain.NotFoundError{Kind: "library", UID: agg.Library().Name}
	}
	if err := lib.RequireEditable(domain.ActionCreateDraft); err != nil {
		return 0, err
	}
	entry, err := entryFor(agg)
	if err != nil {
		return 0, err
	}
	root, err := tx.CreateRoot(domain.Root{
		UID:          uid,
		Kind:         r.kind.Tag,
		Library:      lib.Name,
		HighestMajor: agg.HighestMajor(),
	}, entry)
	if err != nil {
		return 0, err
	}
	delta := domain.DiffIDs(nil, agg.RelatedIDs())
	if _, err := r.svc.relationships.ApplyTx(tx, r.kind.Relation, uid, delta, entry.Metadata.StartDate); err != nil {
		return 0, err
	}
	return root.Revision, nil
}

func entryFor[V domain.Value](agg *domain.Aggregate[V]) (domain.Entry, error) {
	value := agg.Value()
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("encode %s %s: %w", agg.Kind(), agg.UID(), err)
	}
	related := domain.DiffIDs(nil, value.RelatedIDs()).Added
	return domain.Entry{
		UID:        agg.UID(),
		Kind:       agg.Kind(),
		Name:       value.DisplayName(),
		Value:      payload,
		RelatedIDs: related,
		Metadata:   agg.Metadata(),
	}, nil
}

// inferAction names the transition between two consecutive metadata values
// for aggregates saved without a recorded pending action.
func inferAction(prev, next domain.VersionMetadata) domain.Action {
	switch {
	case prev.Status == domain.StatusDraft && next.Status == domain.StatusFinal:
		return domain.ActionApprove
	case prev.Status == domain.StatusFinal && next.Status == domain.StatusDraft:
		return domain.ActionCreateNewVersion
	case prev.Status == domain.StatusFinal && next.Status == domain.StatusRetired:
		return domain.ActionInactivate
	case prev.Status == domain.StatusRetired && next.Status == domain.StatusFinal:
		return domain.ActionReactivate
	default:
		return domain.ActionEditDraft
	}
}
