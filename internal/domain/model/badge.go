// Package model contains domain models passed between layers.
package model

import "slices"

// Family is a coarse grouping of badges used for display.
type Family string

const (
	FamilyAutomatic    Family = "automatic"
	FamilyQuality      Family = "quality"
	FamilyGrowth       Family = "growth"
	FamilyVerification Family = "verification"
)

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	switch f {
	case FamilyAutomatic, FamilyQuality, FamilyGrowth, FamilyVerification:
		return true
	}
	return false
}

// CalculationMethod decides whether a badge can be awarded by the automatic pass.
type CalculationMethod string

const (
	MethodAutomatic CalculationMethod = "automatic"
	MethodManual    CalculationMethod = "manual"
	MethodHybrid    CalculationMethod = "hybrid"
)

// Valid reports whether m is a known calculation method.
func (m CalculationMethod) Valid() bool {
	switch m {
	case MethodAutomatic, MethodManual, MethodHybrid:
		return true
	}
	return false
}

// DecayRules re-checks an earned badge once the award is PeriodDays old.
// Every condition is a requirement identifier; failing any of them revokes the award.
type DecayRules struct {
	PeriodDays int      `json:"period_days" yaml:"period_days"`
	Conditions []string `json:"conditions" yaml:"conditions"`
}

// BadgeDefinition is an immutable catalog entry.
type BadgeDefinition struct {
	Slug              string            `json:"slug" yaml:"slug"`
	Name              string            `json:"name" yaml:"name"`
	Family            Family            `json:"family" yaml:"family"`
	Icon              string            `json:"icon" yaml:"icon"`
	Color             string            `json:"color" yaml:"color"`
	Description       string            `json:"description" yaml:"description"`
	Requirements      []string          `json:"requirements" yaml:"requirements"`
	CalculationMethod CalculationMethod `json:"calculation_method" yaml:"calculation_method"`
	DecayRules        *DecayRules       `json:"decay_rules,omitempty" yaml:"decay_rules,omitempty"`
	Priority          int               `json:"priority" yaml:"priority"`

	// Position is the catalog insertion order, used to break priority ties.
	Position int `json:"-" yaml:"-"`
}

// Clone returns a copy that shares no slices with b.
func (b BadgeDefinition) Clone() BadgeDefinition {
	b.Requirements = slices.Clone(b.Requirements)
	if b.DecayRules != nil {
		rules := *b.DecayRules
		rules.Conditions = slices.Clone(rules.Conditions)
		b.DecayRules = &rules
	}
	return b
}

// IsAutomatic reports whether the automatic award pass may grant the badge.
func (b BadgeDefinition) IsAutomatic() bool {
	return b.CalculationMethod == MethodAutomatic
}

// Less orders definitions by priority, then by catalog position.
func (b BadgeDefinition) Less(other BadgeDefinition) bool {
	if b.Priority != other.Priority {
		return b.Priority < other.Priority
	}
	return b.Position < other.Position
}
