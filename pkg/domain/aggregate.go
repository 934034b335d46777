package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Value is the capability set a domain value object must provide to be
// versioned. Values are treated as immutable once handed to an aggregate.
type Value interface {
	// Validate reports content-level problems with the value itself.
	Validate() error
	// RelatedIDs lists the uids of entities this value links to.
	RelatedIDs() []string
	// DisplayName is the name used for uniqueness checks within a library.
	DisplayName() string
}

// Equaler lets a value type override the default equality check.
type Equaler[V any] interface {
	Equal(other V) bool
}

// ValuesEqual reports whether two values carry the same content. Values that
// implement Equaler decide for themselves; otherwise their JSON encodings are
// compared so that values loaded from storage compare equal to fresh ones.
func ValuesEqual[V any](a, b V) bool {
	if eq, ok := any(a).(Equaler[V]); ok {
		return eq.Equal(b)
	}
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(left, right)
}

// UIDAllocator hands out identifiers for new aggregates.
type UIDAllocator interface {
	Next(ctx context.Context, tag string) (string, error)
}

// Default change descriptions recorded by transitions that do not take one.
const (
	DescriptionInitial     = "Initial version"
	DescriptionApproved    = "Approved version"
	DescriptionNewDraft    = "New draft created"
	DescriptionInactivated = "Inactivated version"
	DescriptionReactivated = "Reactivated version"
)

// Aggregate is a versioned library item: a value object plus the metadata of
// its current version, governed by a library policy.
type Aggregate[V Value] struct {
	uid          string
	kind         string
	value        V
	library      LibraryPolicy
	metadata     VersionMetadata
	deleted      bool
	highestMajor int
	revision     int64
	pending      Action
}

// AggregateState is the exported form of an aggregate used by stores to
// rebuild it and by callers to snapshot it.
type AggregateState[V Value] struct {
	UID          string
	Kind         string
	Value        V
	Library      LibraryPolicy
	Metadata     VersionMetadata
	Deleted      bool
	HighestMajor int
	Revision     int64
}

// DraftRequest carries the inputs of CreateDraft. When UID is empty one is
// allocated from the supplied allocator using Kind as the tag.
type DraftRequest[V Value] struct {
	UID      string
	Kind     string
	Value    V
	Library  LibraryPolicy
	AuthorID string
	At       time.Time
}

// CreateDraft builds a new aggregate at Draft 0.1.
func CreateDraft[V Value](ctx context.Context, uids UIDAllocator, req DraftRequest[V]) (*Aggregate[V], error) {
	if req.Kind == "" {
		return nil, fmt.Errorf("create draft: kind required")
	}
	if err := req.Library.RequireEditable(ActionCreateDraft); err != nil {
		return nil, err
	}
	uid := req.UID
	if uid == "" {
		if uids == nil {
			return nil, fmt.Errorf("create draft: uid allocator required")
		}
		next, err := uids.Next(ctx, req.Kind)
		if err != nil {
			return nil, fmt.Errorf("create draft: allocate uid: %w", err)
		}
		uid = next
	}
	return &Aggregate[V]{
		uid:     uid,
		kind:    req.Kind,
		value:   req.Value,
		library: req.Library,
		metadata: VersionMetadata{
			Status:            StatusDraft,
			Version:           InitialDraftVersion,
			AuthorID:          req.AuthorID,
			ChangeDescription: DescriptionInitial,
			StartDate:         req.At,
		},
		pending: ActionCreateDraft,
	}, nil
}

// RestoreAggregate rebuilds an aggregate from persisted state.
func RestoreAggregate[V Value](state AggregateState[V]) *Aggregate[V] {
	return &Aggregate[V]{
		uid:          state.UID,
		kind:         state.Kind,
		value:        state.Value,
		library:      state.Library,
		metadata:     state.Metadata.Clone(),
		deleted:      state.Deleted,
		highestMajor: state.HighestMajor,
		revision:     state.Revision,
	}
}

// State returns a snapshot of the aggregate.
func (a *Aggregate[V]) State() AggregateState[V] {
	return AggregateState[V]{
		UID:          a.uid,
		Kind:         a.kind,
		Value:        a.value,
		Library:      a.library,
		Metadata:     a.metadata.Clone(),
		Deleted:      a.deleted,
		HighestMajor: a.highestMajor,
		Revision:     a.revision,
	}
}

// Clone returns an independent copy, typically kept as the "previous"
// aggregate handed to Save.
func (a *Aggregate[V]) Clone() *Aggregate[V] {
	cp := *a
	cp.metadata = a.metadata.Clone()
	return &cp
}

// UID returns the aggregate identifier.
func (a *Aggregate[V]) UID() string { return a.uid }

// Kind returns the aggregate type tag.
func (a *Aggregate[V]) Kind() string { return a.kind }

// Value returns the current value object.
func (a *Aggregate[V]) Value() V { return a.value }

// Library returns the governing library policy.
func (a *Aggregate[V]) Library() LibraryPolicy { return a.library }

// Metadata returns a copy of the current version metadata.
func (a *Aggregate[V]) Metadata() VersionMetadata { return a.metadata.Clone() }

// Version returns the current version number.
func (a *Aggregate[V]) Version() Version { return a.metadata.Version }

// Deleted reports the soft-delete flag.
func (a *Aggregate[V]) Deleted() bool { return a.deleted }

// HighestMajor returns the greatest major version ever reached.
func (a *Aggregate[V]) HighestMajor() int { return a.highestMajor }

// Revision returns the store revision the aggregate was loaded at.
func (a *Aggregate[V]) Revision() int64 { return a.revision }

// RelatedIDs returns the uids linked from the current value.
func (a *Aggregate[V]) RelatedIDs() []string { return a.value.RelatedIDs() }

// PendingAction returns the last transition applied since the aggregate was
// loaded or committed, or "" when there is none.
func (a *Aggregate[V]) PendingAction() Action { return a.pending }

// Status returns the lifecycle status, StatusDeleted once soft-deleted.
func (a *Aggregate[V]) Status() Status {
	if a.deleted {
		return StatusDeleted
	}
	return a.metadata.Status
}

// Committed records the revision assigned by the store after a save.
func (a *Aggregate[V]) Committed(revision int64) {
	a.revision = revision
	a.pending = ""
}

// EditDraft replaces the value of a draft and bumps the minor version. An
// edit with an equal value changes nothing and reports false.
func (a *Aggregate[V]) EditDraft(value V, changeDescription, authorID string, at time.Time) (bool, error) {
	if err := a.require(ActionEditDraft, StatusDraft, "object is not in draft status"); err != nil {
		return false, err
	}
	if err := a.library.RequireEditable(ActionEditDraft); err != nil {
		return false, err
	}
	if ValuesEqual(a.value, value) {
		return false, nil
	}
	next := VersionMetadata{
		Status:            StatusDraft,
		Version:           Version{Major: a.metadata.Version.Major, Minor: a.metadata.Version.Minor + 1},
		AuthorID:          authorID,
		ChangeDescription: changeDescription,
		StartDate:         a.clamp(at),
	}
	a.value = value
	a.advance(ActionEditDraft, next)
	return true, nil
}

// Approve turns a draft into the next final major version.
func (a *Aggregate[V]) Approve(authorID string, at time.Time) error {
	if err := a.require(ActionApprove, StatusDraft, "object is not in draft status"); err != nil {
		return err
	}
	major := a.highestMajor + 1
	if a.metadata.Version.Major >= major {
		major = a.metadata.Version.Major + 1
	}
	a.advance(ActionApprove, VersionMetadata{
		Status:            StatusFinal,
		Version:           Version{Major: major},
		AuthorID:          authorID,
		ChangeDescription: DescriptionApproved,
		StartDate:         a.clamp(at),
	})
	a.highestMajor = major
	return nil
}

// CreateNewVersion opens a draft on top of a final version (N.0 to N.1).
func (a *Aggregate[V]) CreateNewVersion(authorID, changeDescription string, at time.Time) error {
	if err := a.require(ActionCreateNewVersion, StatusFinal, "new draft version can be created only for FINAL versions"); err != nil {
		return err
	}
	if changeDescription == "" {
		changeDescription = DescriptionNewDraft
	}
	a.advance(ActionCreateNewVersion, VersionMetadata{
		Status:            StatusDraft,
		Version:           Version{Major: a.metadata.Version.Major, Minor: 1},
		AuthorID:          authorID,
		ChangeDescription: changeDescription,
		StartDate:         a.clamp(at),
	})
	return nil
}

// Inactivate retires a final version without changing its number.
func (a *Aggregate[V]) Inactivate(authorID string, at time.Time) error {
	if err := a.require(ActionInactivate, StatusFinal, "object is not in final status"); err != nil {
		return err
	}
	a.advance(ActionInactivate, VersionMetadata{
		Status:            StatusRetired,
		Version:           a.metadata.Version,
		AuthorID:          authorID,
		ChangeDescription: DescriptionInactivated,
		StartDate:         a.clamp(at),
	})
	return nil
}

// Reactivate returns a retired version to final without changing its number.
func (a *Aggregate[V]) Reactivate(authorID string, at time.Time) error {
	if err := a.require(ActionReactivate, StatusRetired, "only RETIRED version can be reactivated"); err != nil {
		return err
	}
	a.advance(ActionReactivate, VersionMetadata{
		Status:            StatusFinal,
		Version:           a.metadata.Version,
		AuthorID:          authorID,
		ChangeDescription: DescriptionReactivated,
		StartDate:         a.clamp(at),
	})
	return nil
}

// SoftDelete flags a draft that never reached a final version as deleted.
// Its history stays readable.
func (a *Aggregate[V]) SoftDelete() error {
	if a.deleted {
		return InvalidTransitionError{Transition: ActionSoftDelete, Status: StatusDeleted, Reason: "object is already deleted"}
	}
	if a.metadata.Status != StatusDraft || a.highestMajor >= 1 || a.metadata.Version.Major >= 1 {
		return BusinessLogicError{
			Rule:    string(ActionSoftDelete),
			Message: fmt.Sprintf("%s %s is already in final state or is in use", a.kind, a.uid),
		}
	}
	if err := a.library.RequireEditable(ActionSoftDelete); err != nil {
		return err
	}
	a.deleted = true
	a.pending = ActionSoftDelete
	return nil
}

// PossibleActions lists the transitions legal from the current state.
func (a *Aggregate[V]) PossibleActions() []Action {
	if a.deleted {
		return nil
	}
	var actions []Action
	switch a.metadata.Status {
	case StatusDraft:
		if a.library.Editable {
			actions = append(actions, ActionEditDraft)
		}
		actions = append(actions, ActionApprove)
		if a.library.Editable && a.highestMajor == 0 && a.metadata.Version.Major == 0 {
			actions = append(actions, ActionSoftDelete)
		}
	case StatusFinal:
		actions = append(actions, ActionCreateNewVersion, ActionInactivate)
	case StatusRetired:
		actions = append(actions, ActionReactivate)
	}
	return actions
}

func (a *Aggregate[V]) require(action Action, status Status, reason string) error {
	if a.deleted {
		return InvalidTransitionError{Transition: action, Status: StatusDeleted, Reason: "object is deleted"}
	}
	if a.metadata.Status != status {
		return InvalidTransitionError{Transition: action, Status: a.metadata.Status, Reason: reason}
	}
	return nil
}

// clamp keeps the timeline from running backwards.
func (a *Aggregate[V]) clamp(at time.Time) time.Time {
	if at.Before(a.metadata.StartDate) {
		return a.metadata.StartDate
	}
	return at
}

func (a *Aggregate[V]) advance(action Action, next VersionMetadata) {
	a.metadata = next
	a.pending = action
}
