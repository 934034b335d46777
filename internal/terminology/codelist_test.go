package terminology

import (
	"context"
	"errors"
	"slices"
	"testing"

	"cmrcore/internal/core"
	"cmrcore/pkg/domain"
)

func TestTermValidate(t *testing.T) {
	cases := []struct {
		name  string
		term  Term
		valid bool
	}{
		{"ok", Term{ConceptID: "C49488", SubmissionValue: "Y", PreferredTerm: "Yes"}, true},
		{"no concept id", Term{SubmissionValue: "N", PreferredTerm: "No"}, true},
		{"missing submission", Term{PreferredTerm: "Yes"}, false},
		{"padded submission", Term{SubmissionValue: " Y", PreferredTerm: "Yes"}, false},
		{"missing preferred", Term{SubmissionValue: "Y"}, false},
		{"bad concept id", Term{ConceptID: "49488", SubmissionValue: "Y", PreferredTerm: "Yes"}, false},
	}
	for _, tc := range cases {
		if err := tc.term.Validate(); (err == nil) != tc.valid {
			t.Fatalf("%s: valid=%v err=%v", tc.name, tc.valid, err)
		}
	}
}

func TestCodelistValueHelpers(t *testing.T) {
	cl := Codelist{Name: "No Yes Response", SubmissionValue: "NY", TermUIDs: []string{"CTTerm_000001"}}
	if err := cl.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	dup := cl.WithTerms("CTTerm_000002")
	dup.TermUIDs = append(dup.TermUIDs, "CTTerm_000001")
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate term error")
	}

	grown := cl.WithTerms("CTTerm_000002", "CTTerm_000001")
	if !slices.Equal(grown.TermUIDs, []string{"CTTerm_000001", "CTTerm_000002"}) || len(cl.TermUIDs) != 1 {
		t.Fatalf("WithTerms must copy and dedupe: %v %v", grown.TermUIDs, cl.TermUIDs)
	}
	reordered := grown
	reordered.TermUIDs = []string{"CTTerm_000002", "CTTerm_000001"}
	if !grown.Equal(reordered) || !domain.ValuesEqual(grown, reordered) {
		t.Fatalf("member order must not matter")
	}
	if grown.Equal(cl) {
		t.Fatalf("different members compare equal")
	}
	if shrunk := grown.WithoutTerms("CTTerm_000001", "CTTerm_000002"); shrunk.TermUIDs != nil {
		t.Fatalf("expected empty member list, got %v", shrunk.TermUIDs)
	}
}

func TestCodelistMembership(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	yes := c.mustCreateTerm(t, "Y").UID()
	no := c.mustCreateTerm(t, "N").UID()

	cl, err := c.Codelists.Create(ctx, core.CreateRequest[Codelist]{
		Value:    Codelist{Name: "No Yes Response", SubmissionValue: "NY", TermUIDs: []string{yes}},
		Library:  "Sponsor",
		AuthorID: "alice",
	})
	if err != nil {
		t.Fatalf("create codelist: %v", err)
	}
	if cl.UID() != "CTCodelist_000001" {
		t.Fatalf("unexpected uid %s", cl.UID())
	}
	uid := cl.UID()
	if members, _ := c.Members(ctx, uid); !slices.Equal(members, []string{yes}) {
		t.Fatalf("unexpected members %v", members)
	}

	cl, err = c.AddTerms(ctx, uid, "bob", no)
	if err != nil {
		t.Fatalf("add terms: %v", err)
	}
	if cl.Version().String() != "0.2" {
		t.Fatalf("unexpected version %s", cl.Version())
	}
	if members, _ := c.Members(ctx, uid); !slices.Equal(members, []string{yes, no}) {
		t.Fatalf("unexpected members %v", members)
	}

	// Reordering is not an edit.
	same, err := c.Codelists.Edit(ctx, core.EditRequest[Codelist]{UID: uid, Value: cl.Value().WithoutTerms(yes).WithTerms(yes), AuthorID: "bob"})
	if err != nil || same.Version().String() != "0.2" {
		t.Fatalf("reorder: %v", err)
	}

	removed, err := c.RemoveTerms(ctx, uid, "bob", yes)
	if err != nil {
		t.Fatalf("remove terms: %v", err)
	}
	if members, _ := c.Members(ctx, uid); !slices.Equal(members, []string{no}) {
		t.Fatalf("unexpected members %v", members)
	}
	closed, err := c.Service().Relationships().History(ctx, CodelistKind.Relation, uid)
	if err != nil || len(closed) != 1 || closed[0].To != yes || !closed[0].End.Equal(removed.Metadata().StartDate) {
		t.Fatalf("unexpected closed links %v %+v", err, closed)
	}
}

func TestCodelistRules(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	yes := c.mustCreateTerm(t, "Y").UID()

	_, err := c.Codelists.Create(ctx, core.CreateRequest[Codelist]{
		Value:   Codelist{Name: "Broken", SubmissionValue: "BRK", TermUIDs: []string{"CTTerm_000099"}},
		Library: "Sponsor",
	})
	requireCode(t, err, domain.CodeBusinessRule)
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %T", err)
	}

	cl, err := c.Codelists.Create(ctx, core.CreateRequest[Codelist]{
		Value:   Codelist{Name: "Flags", SubmissionValue: "FLG", TermUIDs: []string{yes}},
		Library: "Sponsor",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// The term is in use by a live codelist.
	requireCode(t, c.Terms.SoftDelete(ctx, yes, "alice"), domain.CodeBusinessRule)

	// A codelist cannot list another codelist.
	_, err = c.AddTerms(ctx, cl.UID(), "alice", cl.UID())
	requireCode(t, err, domain.CodeBusinessRule)
}

func TestSubmissionValueUniquePerLibrary(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	c.mustCreateTerm(t, "MALE")

	_, err := c.Terms.Create(ctx, core.CreateRequest[Term]{Value: term("MALE"), Library: "Sponsor"})
	requireCode(t, err, domain.CodeBusinessRule)

	other, err := c.Terms.Create(ctx, core.CreateRequest[Term]{Value: term("MALE"), Library: "Study"})
	if err != nil {
		t.Fatalf("same name in another library: %v", err)
	}
	// The rejected create still consumed nothing visible.
	if other.UID() != "CTTerm_000002" {
		t.Fatalf("unexpected uid %s", other.UID())
	}
}
