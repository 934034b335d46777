package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status captures the visible lifecycle state of a version.
type Status string

// Lifecycle statuses. StatusDeleted is never persisted on a version; it is
// reported for aggregates whose root carries the soft-delete flag.
const (
	StatusDraft   Status = "Draft"
	StatusFinal   Status = "Final"
	StatusRetired Status = "Retired"
	StatusDeleted Status = "Deleted"
)

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusFinal, StatusRetired:
		return true
	default:
		return false
	}
}

// Version is a (major, minor) pair ordered lexicographically.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// InitialDraftVersion is the version every aggregate starts at.
var InitialDraftVersion = Version{Major: 0, Minor: 1}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 when v is lower, equal or higher than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// ParseVersion parses the "major.minor" form produced by Version.String.
func ParseVersion(s string) (Version, error) {
	majorText, minorText, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	major, err := strconv.Atoi(majorText)
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid major version %q", s)
	}
	minor, err := strconv.Atoi(minorText)
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("invalid minor version %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// VersionMetadata describes a single version of an aggregate. A value is
// created by every transition and never mutated afterwards, except that the
// store closes EndDate when the next version supersedes it.
type VersionMetadata struct {
	Status            Status     `json:"status"`
	Version           Version    `json:"version"`
	AuthorID          string     `json:"author_id"`
	ChangeDescription string     `json:"change_description"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
}

// IsCurrent reports whether the version has not been superseded.
func (m VersionMetadata) IsCurrent() bool {
	return m.EndDate == nil
}

// Contains reports whether t falls inside [StartDate, EndDate).
func (m VersionMetadata) Contains(t time.Time) bool {
	if t.Before(m.StartDate) {
		return false
	}
	return m.EndDate == nil || t.Before(*m.EndDate)
}

// Equal compares two metadata values field by field.
func (m VersionMetadata) Equal(other VersionMetadata) bool {
	if m.Status != other.Status || m.Version != other.Version ||
		m.AuthorID != other.AuthorID || m.ChangeDescription != other.ChangeDescription ||
		!m.StartDate.Equal(other.StartDate) {
		return false
	}
	if (m.EndDate == nil) != (other.EndDate == nil) {
		return false
	}
	return m.EndDate == nil || m.EndDate.Equal(*other.EndDate)
}

// Clone returns a deep copy.
func (m VersionMetadata) Clone() VersionMetadata {
	cp := m
	if m.EndDate != nil {
		end := *m.EndDate
		cp.EndDate = &end
	}
	return cp
}

// Close returns a copy ending at t.
func (m VersionMetadata) Close(t time.Time) VersionMetadata {
	cp := m.Clone()
	end := t
	cp.EndDate = &end
	return cp
}
