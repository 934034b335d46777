package core

import (
	"context"
	"fmt"
	"slices"

	"cmrcore/pkg/domain"
)

// RelatedEntitiesRule checks that related ids point at live aggregates of
// the expected kind and blocks soft-deleting an aggregate that another live
// aggregate still references.
func RelatedEntitiesRule(kinds ...domain.Kind) domain.Rule {
	related := make(map[string]string, len(kinds))
	for _, k := range kinds {
		related[k.Tag] = k.RelatedKind
	}
	return relatedEntitiesRule{related: related}
}

type relatedEntitiesRule struct {
	related map[string]string
}

const relatedEntitiesRuleName = "related_entities_exist"

func (relatedEntitiesRule) Name() string { return relatedEntitiesRuleName }

func (r relatedEntitiesRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		if change.Action == domain.ActionSoftDelete {
			if user, ok := referencedBy(view, change.UID); ok {
				res.Violations = append(res.Violations, blocking(relatedEntitiesRuleName, change,
					fmt.Sprintf("%s %s is in use by %s", change.Kind, change.UID, user)))
			}
			continue
		}
		wantKind := r.related[change.Kind]
		for _, id := range change.After.RelatedIDs {
			if id == change.UID {
				res.Violations = append(res.Violations, blocking(relatedEntitiesRuleName, change,
					fmt.Sprintf("%s %s references itself", change.Kind, change.UID)))
				continue
			}
			target, ok := view.FindRoot(id)
			switch {
			case !ok:
				res.Violations = append(res.Violations, blocking(relatedEntitiesRuleName, change,
					fmt.Sprintf("%s %s references missing entity %s", change.Kind, change.UID, id)))
			case target.Deleted:
				res.Violations = append(res.Violations, blocking(relatedEntitiesRuleName, change,
					fmt.Sprintf("%s %s references deleted entity %s", change.Kind, change.UID, id)))
			case wantKind != "" && target.Kind != wantKind:
				res.Violations = append(res.Violations, blocking(relatedEntitiesRuleName, change,
					fmt.Sprintf("%s %s references %s of kind %s, want %s", change.Kind, change.UID, id, target.Kind, wantKind)))
			}
		}
	}
	return res, nil
}

// referencedBy finds a live aggregate whose current version relates to uid.
func referencedBy(view domain.RuleView, uid string) (string, bool) {
	for _, root := range view.ListRoots("") {
		if root.Deleted || root.UID == uid {
			continue
		}
		cur, ok := view.Current(root.UID)
		if ok && slices.Contains(cur.RelatedIDs, uid) {
			return root.UID, true
		}
	}
	return "", false
}
