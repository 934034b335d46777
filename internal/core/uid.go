package core

import (
	"context"
	"fmt"

	"cmrcore/pkg/domain"
)

// FormatUID renders the n-th identifier for tag, e.g. CTTerm_000042.
// Numbers are padded to uidWidth digits; past 10^uidWidth-1 the uid grows
// wider and no longer sorts in allocation order.
func FormatUID(tag string, n int64) string {
	return fmt.Sprintf("%s_%0*d", tag, uidWidth, n)
}

const uidWidth = 6

// allocate advances the tag counter until it names a uid with no root.
// Caller-supplied uids may already occupy numbers the counter has not
// reached yet.
func allocate(tx domain.Transaction, tag string) (string, error) {
	for {
		n, err := tx.NextCounter(tag)
		if err != nil {
			return "", err
		}
		uid := FormatUID(tag, n)
		if _, taken := tx.FindRoot(uid); !taken {
			return uid, nil
		}
	}
}

// UIDAllocator hands out per-tag identifiers from a counter kept in the
// store. Each call increments the counter in its own transaction, so an
// identifier is never handed out twice even if the aggregate is later
// soft-deleted or its creation fails.
type UIDAllocator struct {
	store domain.PersistentStore
}

var _ domain.UIDAllocator = (*UIDAllocator)(nil)

// NewUIDAllocator builds an allocator over store.
func NewUIDAllocator(store domain.PersistentStore) *UIDAllocator {
	return &UIDAllocator{store: store}
}

// Next implements domain.UIDAllocator.
func (a *UIDAllocator) Next(ctx context.Context, tag string) (string, error) {
	var uid string
	_, err := a.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		uid, err = allocate(tx, tag)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("allocate %s uid: %w", tag, err)
	}
	return uid, nil
}

// txAllocator allocates inside an open transaction so the counter moves
// together with the aggregate it names.
type txAllocator struct {
	tx domain.Transaction
}

func (a txAllocator) Next(_ context.Context, tag string) (string, error) {
	return allocate(a.tx, tag)
}
