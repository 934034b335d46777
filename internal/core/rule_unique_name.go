package core

import (
	"context"
	"fmt"
	"strings"

	"cmrcore/pkg/domain"
)

// UniqueNameRule blocks two live aggregates of the same kind in one library
// from carrying the same name. Names compare case-insensitively after
// trimming.
func UniqueNameRule() domain.Rule {
	return uniqueNameRule{}
}

type uniqueNameRule struct{}

const uniqueNameRuleName = "unique_name_in_library"

func (uniqueNameRule) Name() string { return uniqueNameRuleName }

func (uniqueNameRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil || change.Action == domain.ActionSoftDelete {
			continue
		}
		name := normalizeName(change.After.Name)
		if name == "" {
			continue
		}
		if change.Before != nil && normalizeName(change.Before.Name) == name {
			continue
		}
		self, ok := view.FindRoot(change.UID)
		if !ok {
			continue
		}
		for _, other := range view.ListRoots(change.Kind) {
			if other.UID == change.UID || other.Deleted || other.Library != self.Library {
				continue
			}
			cur, ok := view.Current(other.UID)
			if !ok || normalizeName(cur.Name) != name {
				continue
			}
			res.Violations = append(res.Violations, blocking(uniqueNameRuleName, change,
				fmt.Sprintf("%s name %q is already used by %s in library %s", change.Kind, change.After.Name, other.UID, self.Library)))
			break
		}
	}
	return res, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
