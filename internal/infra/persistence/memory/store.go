// Package memory provides the in-memory implementation of the version history
// store. It is the transactional engine behind the sqlite and postgres stores
// and is used directly by tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cmrcore/pkg/domain"
)

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*transaction)(nil)
)

type (
	// Root aliases domain.Root.
	Root = domain.Root
	// Entry aliases domain.Entry.
	Entry = domain.Entry
	// Link aliases domain.Link.
	Link = domain.Link
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type linkKey struct {
	relation string
	from     string
}

type memoryState struct {
	roots     map[string]Root
	history   map[string][]Entry
	links     map[linkKey][]Link
	counters  map[string]int64
	libraries map[string]domain.LibraryPolicy
}

// Snapshot captures a point-in-time copy of the store state in a form that
// encodes cleanly to JSON.
type Snapshot struct {
	Roots     map[string]Root                 `json:"roots"`
	History   map[string][]Entry              `json:"history"`
	Links     []Link                          `json:"links"`
	Counters  map[string]int64                `json:"counters"`
	Libraries map[string]domain.LibraryPolicy `json:"libraries"`
}

func newMemoryState() memoryState {
	return memoryState{
		roots:     make(map[string]Root),
		history:   make(map[string][]Entry),
		links:     make(map[linkKey][]Link),
		counters:  make(map[string]int64),
		libraries: make(map[string]domain.LibraryPolicy),
	}
}

// clone copies every container. Entries and links are replaced, never
// mutated in place, so copying the slices is enough.
func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.roots {
		out.roots[k] = v
	}
	for k, v := range s.history {
		out.history[k] = append([]Entry(nil), v...)
	}
	for k, v := range s.links {
		out.links[k] = append([]Link(nil), v...)
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	for k, v := range s.libraries {
		out.libraries[k] = v
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Roots:     make(map[string]Root, len(state.roots)),
		History:   make(map[string][]Entry, len(state.history)),
		Counters:  make(map[string]int64, len(state.counters)),
		Libraries: make(map[string]domain.LibraryPolicy, len(state.libraries)),
	}
	for k, v := range state.roots {
		s.Roots[k] = v
	}
	for k, v := range state.history {
		entries := make([]Entry, len(v))
		for i, e := range v {
			entries[i] = e.Clone()
		}
		s.History[k] = entries
	}
	for _, v := range state.links {
		s.Links = append(s.Links, cloneLinks(v)...)
	}
	sortLinks(s.Links)
	for k, v := range state.counters {
		s.Counters[k] = v
	}
	for k, v := range state.libraries {
		s.Libraries[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Roots {
		state.roots[k] = v
	}
	for k, v := range s.History {
		entries := make([]Entry, len(v))
		for i, e := range v {
			entries[i] = e.Clone()
		}
		state.history[k] = entries
	}
	for _, l := range cloneLinks(s.Links) {
		key := linkKey{relation: l.Relation, from: l.From}
		state.links[key] = append(state.links[key], l)
	}
	for k, v := range s.Counters {
		state.counters[k] = v
	}
	for k, v := range s.Libraries {
		state.libraries[k] = v
	}
	return state
}

// Store is an in-memory implementation of the version history store.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitHook
}

// CommitHook receives the candidate state of a transaction that passed rule
// evaluation. A non-nil error aborts the commit and the live state is left
// untouched.
type CommitHook func(ctx context.Context, candidate Snapshot) error

// NewStore constructs an empty in-memory store guarded by the supplied engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used to stamp root creation.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// SetCommitHook installs fn to run before every commit. Durable stores use it
// to write the candidate state before it becomes visible to readers.
func (s *Store) SetCommitHook(fn CommitHook) {
	s.mu.Lock()
	s.commit = fn
	s.mu.Unlock()
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn against a private copy of the state. The copy
// replaces the live state only when fn succeeds, no blocking rule violation
// is reported for the recorded changes, and the commit hook (if any) accepts
// it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		view: view{state: s.state.clone()},
		now:  s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, &tx.view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil {
		if err := s.commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, fmt.Errorf("commit: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against the committed state. Transactions mutate a private
// copy and swap it in whole, so the state captured here is never written to
// again and needs no copy.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	return fn(&view{state: state})
}

type view struct {
	state memoryState
}

func (v *view) FindRoot(uid string) (Root, bool) {
	root, ok := v.state.roots[uid]
	return root, ok
}

func (v *view) Current(uid string) (Entry, bool) {
	hist := v.state.history[uid]
	if len(hist) == 0 {
		return Entry{}, false
	}
	return hist[len(hist)-1].Clone(), true
}

func (v *view) History(uid string) []Entry {
	hist := v.state.history[uid]
	out := make([]Entry, len(hist))
	for i, e := range hist {
		out[i] = e.Clone()
	}
	return out
}

func (v *view) ListRoots(kind string) []Root {
	out := make([]Root, 0, len(v.state.roots))
	for _, root := range v.state.roots {
		if kind == "" || root.Kind == kind {
			out = append(out, root)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (v *view) Links(relation, from string) []Link {
	var out []Link
	for key, links := range v.state.links {
		if key.relation != relation || (from != "" && key.from != from) {
			continue
		}
		out = append(out, cloneLinks(links)...)
	}
	sortLinks(out)
	return out
}

func (v *view) FindLibrary(name string) (domain.LibraryPolicy, bool) {
	lib, ok := v.state.libraries[name]
	return lib, ok
}

func (v *view) ListLibraries() []domain.LibraryPolicy {
	out := make([]domain.LibraryPolicy, 0, len(v.state.libraries))
	for _, lib := range v.state.libraries {
		out = append(out, lib)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type transaction struct {
	view
	now     time.Time
	changes []Change
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return &view{state: tx.state.clone()}
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) NextCounter(tag string) (int64, error) {
	if tag == "" {
		return 0, fmt.Errorf("counter tag required")
	}
	tx.state.counters[tag]++
	return tx.state.counters[tag], nil
}

func (tx *transaction) CreateRoot(root Root, first Entry) (Root, error) {
	if root.UID == "" {
		return Root{}, fmt.Errorf("root uid required")
	}
	if _, exists := tx.state.roots[root.UID]; exists {
		return Root{}, domain.BusinessLogicError{Rule: "unique_uid", Message: fmt.Sprintf("%s %s already exists", root.Kind, root.UID)}
	}
	if root.CreatedAt.IsZero() {
		root.CreatedAt = tx.now
	}
	root.Deleted = false
	root.Revision = 1
	if first.Metadata.Version.Major > root.HighestMajor {
		root.HighestMajor = first.Metadata.Version.Major
	}
	first = prepareEntry(root, first)
	tx.state.roots[root.UID] = root
	tx.state.history[root.UID] = []Entry{first}
	after := first.Clone()
	tx.recordChange(Change{Kind: root.Kind, UID: root.UID, Action: domain.ActionCreateDraft, After: &after})
	return root, nil
}

func (tx *transaction) AppendEntry(req domain.AppendRequest) (Root, error) {
	root, err := tx.lockRoot(req.UID, req.ExpectedRevision)
	if err != nil {
		return Root{}, err
	}
	hist := tx.state.history[req.UID]
	last := hist[len(hist)-1]
	start := req.Entry.Metadata.StartDate
	if start.Before(last.Metadata.StartDate) {
		return Root{}, fmt.Errorf("%s %s: version %s starts before current version %s", root.Kind, root.UID,
			req.Entry.Metadata.Version, last.Metadata.Version)
	}
	closed := last
	closed.Metadata = last.Metadata.Close(start)
	entry := prepareEntry(root, req.Entry)

	hist[len(hist)-1] = closed
	tx.state.history[req.UID] = append(hist, entry)
	root.Revision++
	if req.HighestMajor > root.HighestMajor {
		root.HighestMajor = req.HighestMajor
	}
	if entry.Metadata.Version.Major > root.HighestMajor {
		root.HighestMajor = entry.Metadata.Version.Major
	}
	tx.state.roots[req.UID] = root

	before, after := closed.Clone(), entry.Clone()
	tx.recordChange(Change{Kind: root.Kind, UID: root.UID, Action: req.Action, Before: &before, After: &after})
	return root, nil
}

func (tx *transaction) MarkDeleted(uid string, expectedRevision int64) (Root, error) {
	root, err := tx.lockRoot(uid, expectedRevision)
	if err != nil {
		return Root{}, err
	}
	root.Deleted = true
	root.Revision++
	tx.state.roots[uid] = root
	current, _ := tx.Current(uid)
	before, after := current.Clone(), current.Clone()
	tx.recordChange(Change{Kind: root.Kind, UID: uid, Action: domain.ActionSoftDelete, Before: &before, After: &after})
	return root, nil
}

// lockRoot resolves a live root and verifies the caller's revision.
func (tx *transaction) lockRoot(uid string, expectedRevision int64) (Root, error) {
	root, ok := tx.state.roots[uid]
	if !ok || len(tx.state.history[uid]) == 0 {
		return Root{}, domain.NotFoundError{Kind: "aggregate", UID: uid}
	}
	if root.Deleted {
		return Root{}, domain.NotFoundError{Kind: root.Kind, UID: uid, Detail: "deleted"}
	}
	if root.Revision != expectedRevision {
		return Root{}, domain.ConcurrentModificationError{Kind: root.Kind, UID: uid, Expected: expectedRevision, Actual: root.Revision}
	}
	return root, nil
}

func (tx *transaction) OpenLink(link Link) (bool, error) {
	if link.Relation == "" || link.From == "" || link.To == "" {
		return false, fmt.Errorf("link relation, from and to are required")
	}
	key := linkKey{relation: link.Relation, from: link.From}
	for _, existing := range tx.state.links[key] {
		if existing.To == link.To && existing.IsCurrent() {
			return false, nil
		}
	}
	link.End = nil
	tx.state.links[key] = append(tx.state.links[key], link)
	return true, nil
}

func (tx *transaction) CloseLink(relation, from, to string, at time.Time) (bool, error) {
	key := linkKey{relation: relation, from: from}
	links := tx.state.links[key]
	for i, existing := range links {
		if existing.To != to || !existing.IsCurrent() {
			continue
		}
		end := at
		if end.Before(existing.Start) {
			end = existing.Start
		}
		existing.End = &end
		links[i] = existing
		return true, nil
	}
	return false, nil
}

func (tx *transaction) UpsertLibrary(library domain.LibraryPolicy) error {
	if library.Name == "" {
		return fmt.Errorf("library name required")
	}
	tx.state.libraries[library.Name] = library
	return nil
}

func prepareEntry(root Root, entry Entry) Entry {
	entry = entry.Clone()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.UID = root.UID
	entry.Kind = root.Kind
	entry.Metadata.EndDate = nil
	return entry
}

func cloneLinks(links []Link) []Link {
	out := make([]Link, len(links))
	for i, l := range links {
		out[i] = l
		if l.End != nil {
			end := *l.End
			out[i].End = &end
		}
	}
	return out
}

func sortLinks(links []Link) {
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		if a.From != b.From {
			return a.From < b.From
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.To < b.To
	})
}
