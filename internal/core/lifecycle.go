package core

import (
	"context"
	"fmt"

	"cmrcore/pkg/domain"
)

// CreateRequest carries the inputs of Create. An empty UID is allocated from
// the kind's counter inside the creating transaction.
type CreateRequest[V domain.Value] struct {
	UID      string
	Value    V
	Library  string
	AuthorID string
}

// EditRequest carries the inputs of Edit.
type EditRequest[V domain.Value] struct {
	UID               string
	Value             V
	ChangeDescription string
	AuthorID          string
}

// Create validates the value and stores a new aggregate at Draft 0.1.
func (r *Repository[V]) Create(ctx context.Context, req CreateRequest[V]) (*domain.Aggregate[V], error) {
	op := &operation{Action: domain.ActionCreateDraft, Kind: r.kind.Tag, UID: req.UID, Actor: req.AuthorID}
	var agg *domain.Aggregate[V]
	err := r.svc.instrument(ctx, op, func(ctx context.Context) error {
		if err := req.Value.Validate(); err != nil {
			return domain.BusinessLogicError{Rule: "validate", Message: fmt.Sprintf("invalid %s", r.kind.Tag), Err: err}
		}
		var revision int64
		_, err := r.svc.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			lib, ok := tx.FindLibrary(req.Library)
			if !ok {
				return domain.NotFoundError{Kind: "library", UID: req.Library}
			}
			created, err := domain.CreateDraft(ctx, txAllocator{tx: tx}, domain.DraftRequest[V]{
				UID:      req.UID,
				Kind:     r.kind.Tag,
				Value:    req.Value,
				Library:  lib,
				AuthorID: req.AuthorID,
				At:       r.svc.Now(),
			})
			if err != nil {
				return err
			}
			revision, err = r.createTx(tx, created)
			agg = created
			return err
		})
		if err != nil {
			return err
		}
		agg.Committed(revision)
		op.UID = agg.UID()
		op.Version = agg.Version()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// Edit replaces the value of a draft. An edit that leaves the value
// unchanged stores nothing and returns the aggregate as it was.
func (r *Repository[V]) Edit(ctx context.Context, req EditRequest[V]) (*domain.Aggregate[V], error) {
	return r.transition(ctx, domain.ActionEditDraft, req.UID, req.AuthorID, func(agg *domain.Aggregate[V]) (bool, error) {
		if err := req.Value.Validate(); err != nil {
			return false, domain.BusinessLogicError{Rule: "validate", Message: fmt.Sprintf("invalid %s", r.kind.Tag), Err: err}
		}
		return agg.EditDraft(req.Value, req.ChangeDescription, req.AuthorID, r.svc.Now())
	})
}

// Approve finalises the current draft as the next major version.
func (r *Repository[V]) Approve(ctx context.Context, uid, authorID string) (*domain.Aggregate[V], error) {
	return r.transition(ctx, domain.ActionApprove, uid, authorID, func(agg *domain.Aggregate[V]) (bool, error) {
		return true, agg.Approve(authorID, r.svc.Now())
	})
}

// NewVersion opens a draft on top of the current final version.
func (r *Repository[V]) NewVersion(ctx context.Context, uid, authorID, changeDescription string) (*domain.Aggregate[V], error) {
	return r.transition(ctx, domain.ActionCreateNewVersion, uid, authorID, func(agg *domain.Aggregate[V]) (bool, error) {
		return true, agg.CreateNewVersion(authorID, changeDescription, r.svc.Now())
	})
}

// Inactivate retires the current final version.
func (r *Repository[V]) Inactivate(ctx context.Context, uid, authorID string) (*domain.Aggregate[V], error) {
	return r.transition(ctx, domain.ActionInactivate, uid, authorID, func(agg *domain.Aggregate[V]) (bool, error) {
		return true, agg.Inactivate(authorID, r.svc.Now())
	})
}

// Reactivate returns the current retired version to final.
func (r *Repository[V]) Reactivate(ctx context.Context, uid, authorID string) (*domain.Aggregate[V], error) {
	return r.transition(ctx, domain.ActionReactivate, uid, authorID, func(agg *domain.Aggregate[V]) (bool, error) {
		return true, agg.Reactivate(authorID, r.svc.Now())
	})
}

// SoftDelete hides a never-approved draft from latest-version lookups.
func (r *Repository[V]) SoftDelete(ctx context.Context, uid, authorID string) error {
	_, err := r.transition(ctx, domain.ActionSoftDelete, uid, authorID, func(agg *domain.Aggregate[V]) (bool, error) {
		return true, agg.SoftDelete()
	})
	return err
}

// transition loads the latest version, applies step and saves the result in
// a single transaction.
func (r *Repository[V]) transition(ctx context.Context, action domain.Action, uid, authorID string, step func(*domain.Aggregate[V]) (bool, error)) (*domain.Aggregate[V], error) {
	op := &operation{Action: action, Kind: r.kind.Tag, UID: uid, Actor: authorID}
	var agg *domain.Aggregate[V]
	err := r.svc.instrument(ctx, op, func(ctx context.Context) error {
		var (
			revision int64
			changed  bool
		)
		_, err := r.svc.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			prev, err := r.loadLatest(tx, uid, false)
			if err != nil {
				return err
			}
			agg = prev.Clone()
			changed, err = step(agg)
			if err != nil || !changed {
				return err
			}
			revision, err = r.saveTx(tx, agg, prev)
			return err
		})
		if err != nil {
			return err
		}
		op.Version = agg.Version()
		if changed {
			agg.Committed(revision)
			r.svc.cache.Invalidate(r.kind.Tag, uid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}
