package core

import (
	"context"
	"fmt"
	"time"

	"cmrcore/pkg/domain"
)

// RelationshipMaintainer keeps timestamped links in step with the related
// entity sets of consecutive versions.
type RelationshipMaintainer struct {
	store domain.PersistentStore
}

// LinkChanges counts the links a delta actually opened and closed.
type LinkChanges struct {
	Opened int
	Closed int
}

// NewRelationshipMaintainer builds a maintainer over store.
func NewRelationshipMaintainer(store domain.PersistentStore) *RelationshipMaintainer {
	return &RelationshipMaintainer{store: store}
}

// Apply runs ApplyTx in its own transaction.
func (m *RelationshipMaintainer) Apply(ctx context.Context, relation, from string, delta domain.RelationshipDelta, at time.Time) (LinkChanges, error) {
	var changes LinkChanges
	_, err := m.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		changes, err = m.ApplyTx(tx, relation, from, delta, at)
		return err
	})
	return changes, err
}

// ApplyTx opens a current link for every added id and closes the current
// link of every removed id. Existing current links are left alone and
// missing ones are not closed, so applying a delta twice changes nothing.
func (m *RelationshipMaintainer) ApplyTx(tx domain.Transaction, relation, from string, delta domain.RelationshipDelta, at time.Time) (LinkChanges, error) {
	var changes LinkChanges
	if relation == "" || delta.Empty() {
		return changes, nil
	}
	for _, to := range delta.Added {
		opened, err := tx.OpenLink(domain.Link{Relation: relation, From: from, To: to, Start: at})
		if err != nil {
			return changes, fmt.Errorf("open %s link %s->%s: %w", relation, from, to, err)
		}
		if opened {
			changes.Opened++
		}
	}
	for _, to := range delta.Removed {
		closed, err := tx.CloseLink(relation, from, to, at)
		if err != nil {
			return changes, fmt.Errorf("close %s link %s->%s: %w", relation, from, to, err)
		}
		if closed {
			changes.Closed++
		}
	}
	return changes, nil
}

// Current lists the open links of relation from the given uid.
func (m *RelationshipMaintainer) Current(ctx context.Context, relation, from string) ([]domain.Link, error) {
	return m.links(ctx, relation, from, true)
}

// History lists the closed links of relation from the given uid.
func (m *RelationshipMaintainer) History(ctx context.Context, relation, from string) ([]domain.Link, error) {
	return m.links(ctx, relation, from, false)
}

func (m *RelationshipMaintainer) links(ctx context.Context, relation, from string, current bool) ([]domain.Link, error) {
	var out []domain.Link
	err := m.store.View(ctx, func(v domain.TransactionView) error {
		for _, l := range v.Links(relation, from) {
			if l.IsCurrent() == current {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}
