package core

import "cmrcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// for the supplied kinds.
func NewDefaultRulesEngine(kinds ...domain.Kind) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(VersionSequenceRule())
	engine.Register(UniqueNameRule())
	engine.Register(RelatedEntitiesRule(kinds...))
	return engine
}

func blocking(rule string, change domain.Change, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Kind:     change.Kind,
		UID:      change.UID,
	}
}
