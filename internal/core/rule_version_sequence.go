package core

import (
	"context"
	"fmt"

	"cmrcore/pkg/domain"
)

// VersionSequenceRule blocks history entries that do not follow the
// draft/final/retired numbering scheme or that start before their
// predecessor.
func VersionSequenceRule() domain.Rule {
	return versionSequenceRule{}
}

type versionSequenceRule struct{}

const versionSequenceName = "version_sequence"

func (versionSequenceRule) Name() string { return versionSequenceName }

func (versionSequenceRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil || change.Action == domain.ActionSoftDelete {
			continue
		}
		after := change.After.Metadata
		if change.Action == domain.ActionCreateDraft || change.Before == nil {
			if after.Status != domain.StatusDraft || after.Version != domain.InitialDraftVersion {
				res.Violations = append(res.Violations, blocking(versionSequenceName, change,
					fmt.Sprintf("%s %s must start as %s %s, got %s %s", change.Kind, change.UID,
						domain.StatusDraft, domain.InitialDraftVersion, after.Status, after.Version)))
			}
			continue
		}
		before := change.Before.Metadata
		if after.StartDate.Before(before.StartDate) {
			res.Violations = append(res.Violations, blocking(versionSequenceName, change,
				fmt.Sprintf("%s %s version %s starts before version %s", change.Kind, change.UID, after.Version, before.Version)))
		}
		if !legalStep(before, after) {
			res.Violations = append(res.Violations, blocking(versionSequenceName, change,
				fmt.Sprintf("%s %s cannot move from %s %s to %s %s", change.Kind, change.UID,
					before.Status, before.Version, after.Status, after.Version)))
		}
	}
	return res, nil
}

// legalStep reports whether after may directly follow before.
func legalStep(before, after domain.VersionMetadata) bool {
	b, a := before.Version, after.Version
	switch {
	case before.Status == domain.StatusDraft && after.Status == domain.StatusDraft:
		return a.Major == b.Major && a.Minor == b.Minor+1
	case before.Status == domain.StatusDraft && after.Status == domain.StatusFinal:
		return a.Major > b.Major && a.Minor == 0
	case before.Status == domain.StatusFinal && after.Status == domain.StatusDraft:
		return a.Major == b.Major && a.Minor == 1
	case before.Status == domain.StatusFinal && after.Status == domain.StatusRetired,
		before.Status == domain.StatusRetired && after.Status == domain.StatusFinal:
		return a == b
	default:
		return false
	}
}
