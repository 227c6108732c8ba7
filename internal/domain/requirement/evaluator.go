package requirement

import (
	"github.com/wolfinder/badges/internal/domain/model"
)

// User-facing messages for badges that cannot be evaluated.
const (
	MsgManualBadge    = "Badge non calcolabile automaticamente"
	MsgNoRequirements = "Nessun requisito definito"
	msgUnrecognized   = "Requisito non implementato: "
)

// unmetCap keeps an unsatisfied requirement from reporting full progress.
const unmetCap = 99

// Evaluator checks badge definitions against a metrics snapshot. It performs no I/O.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator over registry.
func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Registry returns the registry backing the evaluator.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Evaluate decides whether def is earned by m.
//
// Requirements combine with AND. Each satisfied requirement contributes 100
// to the progress mean and an unsatisfied one at most 99, so the overall
// progress is 100 exactly when the badge is earned. Identifiers missing from
// the registry are never satisfied.
func (e *Evaluator) Evaluate(m model.MetricsSnapshot, def model.BadgeDefinition) model.EvaluationResult {
	res := model.EvaluationResult{
		BadgeID:             def.Slug,
		Requirements:        make([]string, 0, len(def.Requirements)),
		MissingRequirements: []string{},
	}

	for _, id := range def.Requirements {
		if p, ok := e.registry.Lookup(id); ok {
			res.Requirements = append(res.Requirements, p.Label)
		} else {
			res.Requirements = append(res.Requirements, id)
		}
	}

	if def.CalculationMethod == model.MethodManual {
		res.MissingRequirements = append(res.MissingRequirements, MsgManualBadge)
		return res
	}
	if len(def.Requirements) == 0 {
		res.MissingRequirements = append(res.MissingRequirements, MsgNoRequirements)
		return res
	}

	total := 0
	for _, id := range def.Requirements {
		p, ok := e.registry.Lookup(id)
		if !ok {
			res.Unrecognized = append(res.Unrecognized, id)
			res.MissingRequirements = append(res.MissingRequirements, msgUnrecognized+id)
			continue
		}
		if p.Check(m) {
			total += 100
			continue
		}
		total += partial(p, m)
		res.MissingRequirements = append(res.MissingRequirements, missing(p, m))
	}

	res.Earned = len(res.MissingRequirements) == 0
	res.Progress = total / len(def.Requirements)
	return res
}

// EvaluateAll evaluates every definition against the same snapshot, keeping order.
func (e *Evaluator) EvaluateAll(m model.MetricsSnapshot, defs []model.BadgeDefinition) []model.EvaluationResult {
	out := make([]model.EvaluationResult, 0, len(defs))
	for _, def := range defs {
		out = append(out, e.Evaluate(m, def))
	}
	return out
}

// Holds reports whether every condition is satisfied by m. Unknown
// identifiers are returned in failed like any unmet condition.
func (e *Evaluator) Holds(m model.MetricsSnapshot, conditions []string) (ok bool, failed []string) {
	for _, id := range conditions {
		p, found := e.registry.Lookup(id)
		if !found || !p.Check(m) {
			failed = append(failed, id)
		}
	}
	return len(failed) == 0, failed
}

func partial(p Predicate, m model.MetricsSnapshot) int {
	if p.Progress == nil {
		return 0
	}
	v := p.Progress(m)
	switch {
	case v < 0:
		return 0
	case v > unmetCap:
		return unmetCap
	}
	return v
}

func missing(p Predicate, m model.MetricsSnapshot) string {
	if p.Missing == nil {
		return p.Label
	}
	return p.Missing(m)
}
