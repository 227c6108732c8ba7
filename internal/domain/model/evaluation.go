package model

// EvaluationResult is the outcome of checking one badge against a snapshot.
// Earned is true exactly when Progress is 100 and MissingRequirements is empty.
type EvaluationResult struct {
	BadgeID             string   `json:"badge_id"`
	Earned              bool     `json:"earned"`
	Progress            int      `json:"progress"`
	Requirements        []string `json:"requirements"`
	MissingRequirements []string `json:"missing_requirements"`

	// Unrecognized lists requirement identifiers without a predicate.
	Unrecognized []string `json:"-"`
}
