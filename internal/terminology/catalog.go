package terminology

import (
	"context"
	"fmt"
	"slices"

	"cmrcore/internal/core"
	"cmrcore/pkg/domain"
)

// NewRulesEngine returns the default rules wired for terms and codelists.
func NewRulesEngine() *domain.RulesEngine {
	return core.NewDefaultRulesEngine(TermKind, CodelistKind)
}

// Catalog bundles the term and codelist repositories of one service.
type Catalog struct {
	svc       *core.Service
	Terms     *core.Repository[Term]
	Codelists *core.Repository[Codelist]
}

// NewCatalog binds both repositories to svc.
func NewCatalog(svc *core.Service) *Catalog {
	return &Catalog{
		svc:       svc,
		Terms:     core.NewRepository[Term](svc, TermKind),
		Codelists: core.NewRepository[Codelist](svc, CodelistKind),
	}
}

// Service returns the underlying service.
func (c *Catalog) Service() *core.Service { return c.svc }

// AddTerms edits the draft codelist to include termUIDs.
func (c *Catalog) AddTerms(ctx context.Context, codelistUID, authorID string, termUIDs ...string) (*domain.Aggregate[Codelist], error) {
	return c.editMembers(ctx, codelistUID, authorID, "Added terms", func(cl Codelist) Codelist {
		return cl.WithTerms(termUIDs...)
	})
}

// RemoveTerms edits the draft codelist to drop termUIDs.
func (c *Catalog) RemoveTerms(ctx context.Context, codelistUID, authorID string, termUIDs ...string) (*domain.Aggregate[Codelist], error) {
	return c.editMembers(ctx, codelistUID, authorID, "Removed terms", func(cl Codelist) Codelist {
		return cl.WithoutTerms(termUIDs...)
	})
}

func (c *Catalog) editMembers(ctx context.Context, uid, authorID, description string, change func(Codelist) Codelist) (*domain.Aggregate[Codelist], error) {
	current, err := c.Codelists.FindLatest(ctx, uid)
	if err != nil {
		return nil, err
	}
	return c.Codelists.Edit(ctx, core.EditRequest[Codelist]{
		UID:               uid,
		Value:             change(current.Value()),
		ChangeDescription: description,
		AuthorID:          authorID,
	})
}

// Members lists the terms currently linked to a codelist, ordered by uid.
func (c *Catalog) Members(ctx context.Context, codelistUID string) ([]string, error) {
	links, err := c.svc.Relationships().Current(ctx, CodelistKind.Relation, codelistUID)
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", codelistUID, err)
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.To)
	}
	slices.Sort(out)
	return out, nil
}
