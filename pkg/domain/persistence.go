package domain

import (
	"context"
	"time"
)

// Root is the identity record of an aggregate. It is stored once per uid and
// carries the optimistic-concurrency revision.
type Root struct {
	UID          string    `json:"uid"`
	Kind         string    `json:"kind"`
	Library      string    `json:"library"`
	Deleted      bool      `json:"deleted"`
	Revision     int64     `json:"revision"`
	HighestMajor int       `json:"highest_major"`
	CreatedAt    time.Time `json:"created_at"`
}

// Entry is one append-only history row: a value snapshot plus its metadata.
type Entry struct {
	ID         string          `json:"id"`
	UID        string          `json:"uid"`
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	Value      ChangePayload   `json:"value"`
	RelatedIDs []string        `json:"related_ids,omitempty"`
	Metadata   VersionMetadata `json:"metadata"`
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	cp := e
	cp.Value = NewChangePayload(e.Value.Raw())
	if !e.Value.Defined() {
		cp.Value = UndefinedChangePayload()
	}
	if e.RelatedIDs != nil {
		cp.RelatedIDs = append([]string(nil), e.RelatedIDs...)
	}
	cp.Metadata = e.Metadata.Clone()
	return cp
}

// Link is a timestamped relationship between two aggregates. A link with a
// nil End is current; closed links are kept as history.
type Link struct {
	Relation string     `json:"relation"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
}

// IsCurrent reports whether the link is still open.
func (l Link) IsCurrent() bool {
	return l.End == nil
}

// AppendRequest describes a new history entry for an existing root.
type AppendRequest struct {
	UID              string
	ExpectedRevision int64
	Action           Action
	Entry            Entry
	HighestMajor     int
}

// RuleView provides read-only access to aggregate state for rule evaluation.
type RuleView interface {
	FindRoot(uid string) (Root, bool)
	Current(uid string) (Entry, bool)
	History(uid string) []Entry
	ListRoots(kind string) []Root
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	RuleView
	Links(relation, from string) []Link
	FindLibrary(name string) (LibraryPolicy, bool)
	ListLibraries() []LibraryPolicy
}

// Transaction exposes the mutations a persistence implementation must
// support within an atomic scope. Every mutation of aggregate history goes
// through CreateRoot, AppendEntry or MarkDeleted.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	NextCounter(tag string) (int64, error)
	CreateRoot(root Root, first Entry) (Root, error)
	AppendEntry(req AppendRequest) (Root, error)
	MarkDeleted(uid string, expectedRevision int64) (Root, error)
	OpenLink(link Link) (bool, error)
	CloseLink(relation, from, to string, at time.Time) (bool, error)
	UpsertLibrary(library LibraryPolicy) error
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
