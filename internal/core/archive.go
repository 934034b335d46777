package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"cmrcore/internal/blob"
	"cmrcore/pkg/domain"
)

// HistoryDocument is the archived form of an aggregate's full history.
type HistoryDocument[V domain.Value] struct {
	Kind       string            `json:"kind"`
	UID        string            `json:"uid"`
	Revision   int64             `json:"revision"`
	Deleted    bool              `json:"deleted"`
	ArchivedAt time.Time         `json:"archived_at"`
	Versions   []HistoryEntry[V] `json:"versions"`
}

// HistoryArchiver writes immutable snapshots of full histories to a blob
// store, one object per uid and revision.
type HistoryArchiver[V domain.Value] struct {
	repo  *Repository[V]
	store blob.Store
}

// NewHistoryArchiver binds an archiver to a repository and blob store.
func NewHistoryArchiver[V domain.Value](repo *Repository[V], store blob.Store) *HistoryArchiver[V] {
	return &HistoryArchiver[V]{repo: repo, store: store}
}

// ArchiveKey returns the object key of a history snapshot.
func ArchiveKey(kind, uid string, revision int64) string {
	return path.Join(archivePrefix(kind, uid), strconv.FormatInt(revision, 10)+".json")
}

func archivePrefix(kind, uid string) string {
	return path.Join("history", kind, uid)
}

// Archive stores the current full history of uid. Archiving a revision that
// is already stored returns the existing object.
func (a *HistoryArchiver[V]) Archive(ctx context.Context, uid string) (blob.Info, error) {
	root, versions, err := a.repo.history(ctx, uid)
	if err != nil {
		return blob.Info{}, err
	}
	key := ArchiveKey(root.Kind, uid, root.Revision)
	if info, err := a.store.Head(ctx, key); err == nil {
		return info, nil
	} else if !errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, fmt.Errorf("archive %s: %w", uid, err)
	}
	doc := HistoryDocument[V]{
		Kind:       root.Kind,
		UID:        uid,
		Revision:   root.Revision,
		Deleted:    root.Deleted,
		ArchivedAt: a.repo.svc.Now(),
		Versions:   versions,
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode history %s: %w", uid, err)
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"kind": root.Kind, "uid": uid, "revision": strconv.FormatInt(root.Revision, 10)},
	})
	if errors.Is(err, blob.ErrExists) {
		return a.store.Head(ctx, key)
	}
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive %s: %w", uid, err)
	}
	a.repo.svc.logger.Info("history archived", "kind", root.Kind, "uid", uid, "revision", root.Revision, "key", key)
	return info, nil
}

// Load reads an archived snapshot.
func (a *HistoryArchiver[V]) Load(ctx context.Context, uid string, revision int64) (HistoryDocument[V], error) {
	var doc HistoryDocument[V]
	_, rc, err := a.store.Get(ctx, ArchiveKey(a.repo.kind.Tag, uid, revision))
	if err != nil {
		return doc, err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode history %s@%d: %w", uid, revision, err)
	}
	return doc, nil
}

// List returns the archived snapshots of uid ordered by key.
func (a *HistoryArchiver[V]) List(ctx context.Context, uid string) ([]blob.Info, error) {
	return a.store.List(ctx, archivePrefix(a.repo.kind.Tag, uid)+"/")
}
