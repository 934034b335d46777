// Package terminology defines the controlled terminology kinds, terms and
// the codelists that group them, on top of the versioned core.
package terminology

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"cmrcore/pkg/domain"
)

// TermKind is the kind of a single controlled term.
var TermKind = domain.Kind{Tag: "CTTerm"}

var conceptIDPattern = regexp.MustCompile(`^C[0-9]+$`)

// Term is one controlled terminology entry. SubmissionValue is the name
// that must be unique within a library.
type Term struct {
	ConceptID       string `json:"concept_id,omitempty"`
	SubmissionValue string `json:"submission_value"`
	PreferredTerm   string `json:"preferred_term"`
	Definition      string `json:"definition,omitempty"`
}

// Validate checks the term's own fields.
func (t Term) Validate() error {
	var errs []error
	if err := checkName("submission value", t.SubmissionValue); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(t.PreferredTerm) == "" {
		errs = append(errs, errors.New("preferred term required"))
	}
	if t.ConceptID != "" && !conceptIDPattern.MatchString(t.ConceptID) {
		errs = append(errs, fmt.Errorf("concept id %q is not a C-code", t.ConceptID))
	}
	return errors.Join(errs...)
}

// RelatedIDs implements domain.Value. Terms link to nothing.
func (Term) RelatedIDs() []string { return nil }

// DisplayName implements domain.Value.
func (t Term) DisplayName() string { return t.SubmissionValue }

func checkName(field, v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%s required", field)
	case strings.TrimSpace(v) != v:
		return fmt.Errorf("%s %q has surrounding whitespace", field, v)
	}
	return nil
}
