package model

import "time"

// DimensionScore is the judged outcome of one evaluation dimension. Created
// once per dimension per run and immutable afterwards; owned by the report
// that contains it.
type DimensionScore struct {
	Dimension     string   `json:"dimension"`
	Score         float64  `json:"score"` // 0-100, raw oracle score
	Weight        float64  `json:"weight"`
	Rating        Rating   `json:"level"`
	Analysis      string   `json:"analysis"`
	Evidence      []string `json:"evidence"`
	Issues        []string `json:"issues"`
	Suggestions   []string `json:"suggestions"`
	VetoTriggered bool     `json:"is_veto"`
}

// WeightedScore is the dimension's contribution to the report total.
func (d DimensionScore) WeightedScore() float64 {
	return d.Score * d.Weight
}

// EvaluationReport is the full verdict for one transcript. Built in a single
// orchestration pass and immutable; the summary fields are computed once at
// build time, never re-derived.
type EvaluationReport struct {
	ID                    string           `json:"id"`
	TaskID                string           `json:"task_id"`
	TotalScore            float64          `json:"total_score"`
	FinalLevel            Level            `json:"final_level"`
	Dimensions            []DimensionScore `json:"dimensions"`
	ExecutiveSummary      string           `json:"executive_summary"`
	CriticalIssues        []string         `json:"critical_issues"`
	ActionableSuggestions []string         `json:"actionable_suggestions"`
	PassCriteriaMet       bool             `json:"pass_criteria_met"`
	VetoReasons           []string         `json:"veto_reasons"`
	CreatedAt             time.Time        `json:"created_at"`
}
