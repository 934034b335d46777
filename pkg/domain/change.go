package domain

import "sort"

// Action names a lifecycle transition recorded in a change.
type Action string

// Lifecycle transitions.
const (
	ActionCreateDraft      Action = "create_draft"
	ActionEditDraft        Action = "edit_draft"
	ActionApprove          Action = "approve"
	ActionCreateNewVersion Action = "create_new_version"
	ActionInactivate       Action = "inactivate"
	ActionReactivate       Action = "reactivate"
	ActionSoftDelete       Action = "soft_delete"
)

// Change describes a history mutation applied during a transaction. Before
// is nil on creation; for soft deletes Before and After both carry the
// current entry.
type Change struct {
	Kind   string
	UID    string
	Action Action
	Before *Entry
	After  *Entry
}

// RelationshipDelta is the difference between the related-entity sets of two
// consecutive versions.
type RelationshipDelta struct {
	Added   []string
	Removed []string
}

// Empty reports whether the delta carries no work.
func (d RelationshipDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffIDs computes the delta from previous to current. Duplicates and empty
// ids are ignored; both output slices are sorted.
func DiffIDs(previous, current []string) RelationshipDelta {
	prev := toSet(previous)
	curr := toSet(current)
	var delta RelationshipDelta
	for id := range curr {
		if _, ok := prev[id]; !ok {
			delta.Added = append(delta.Added, id)
		}
	}
	for id := range prev {
		if _, ok := curr[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}
	sort.Strings(delta.Added)
	sort.Strings(delta.Removed)
	return delta
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Kind     string
	UID      string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Code implements coded; blocking violations are business-rule failures.
func (RuleViolationError) Code() ErrorCode { return CodeBusinessRule }
