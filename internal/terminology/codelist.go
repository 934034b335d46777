package terminology

import (
	"errors"
	"fmt"
	"slices"

	"cmrcore/pkg/domain"
)

// CodelistKind is the kind of a codelist. Its members are kept as HAS_TERM
// links to CTTerm aggregates.
var CodelistKind = domain.Kind{Tag: "CTCodelist", Relation: "HAS_TERM", RelatedKind: TermKind.Tag}

// Codelist is a named set of terms.
type Codelist struct {
	ConceptID       string   `json:"concept_id,omitempty"`
	SubmissionValue string   `json:"submission_value"`
	Name            string   `json:"name"`
	Extensible      bool     `json:"extensible"`
	TermUIDs        []string `json:"term_uids,omitempty"`
}

// Validate checks the codelist's own fields. Whether the terms exist is
// checked by the related entities rule when the codelist is saved.
func (c Codelist) Validate() error {
	var errs []error
	if err := checkName("name", c.Name); err != nil {
		errs = append(errs, err)
	}
	if err := checkName("submission value", c.SubmissionValue); err != nil {
		errs = append(errs, err)
	}
	if c.ConceptID != "" && !conceptIDPattern.MatchString(c.ConceptID) {
		errs = append(errs, fmt.Errorf("concept id %q is not a C-code", c.ConceptID))
	}
	seen := make(map[string]struct{}, len(c.TermUIDs))
	for _, uid := range c.TermUIDs {
		if uid == "" {
			errs = append(errs, errors.New("empty term uid"))
			continue
		}
		if _, dup := seen[uid]; dup {
			errs = append(errs, fmt.Errorf("term %s listed twice", uid))
		}
		seen[uid] = struct{}{}
	}
	return errors.Join(errs...)
}

// RelatedIDs implements domain.Value.
func (c Codelist) RelatedIDs() []string { return c.TermUIDs }

// DisplayName implements domain.Value.
func (c Codelist) DisplayName() string { return c.Name }

// Equal treats the member list as a set, so reordering terms is not an edit.
func (c Codelist) Equal(other Codelist) bool {
	if c.ConceptID != other.ConceptID || c.SubmissionValue != other.SubmissionValue ||
		c.Name != other.Name || c.Extensible != other.Extensible {
		return false
	}
	a, b := slices.Clone(c.TermUIDs), slices.Clone(other.TermUIDs)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

// WithTerms returns a copy with uids appended, skipping ones already present.
func (c Codelist) WithTerms(uids ...string) Codelist {
	out := c
	out.TermUIDs = slices.Clone(c.TermUIDs)
	for _, uid := range uids {
		if !slices.Contains(out.TermUIDs, uid) {
			out.TermUIDs = append(out.TermUIDs, uid)
		}
	}
	return out
}

// WithoutTerms returns a copy with uids removed.
func (c Codelist) WithoutTerms(uids ...string) Codelist {
	out := c
	out.TermUIDs = slices.DeleteFunc(slices.Clone(c.TermUIDs), func(uid string) bool {
		return slices.Contains(uids, uid)
	})
	if len(out.TermUIDs) == 0 {
		out.TermUIDs = nil
	}
	return out
}
