package model

// DimensionResult is one named sub-dimension score inside a graded attempt.
type DimensionResult struct {
	Name  string   `json:"name"`
	Score *float64 `json:"score"`
}

// CategoryResult is a question-type rollup (e.g. 单项选择题) inside an attempt.
type CategoryResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Total float64 `json:"total"`
}

// AttemptData holds the scores extracted from one successful grading response.
type AttemptData struct {
	TotalScore *float64          `json:"total_score"`
	FullMark   float64           `json:"full_mark"`
	Dimensions []DimensionResult `json:"dimensions"`
	Categories []CategoryResult  `json:"categories"`
}

// Attempt is one independent grading run of a subject during a batch
// consistency test. Read-only once captured.
type Attempt struct {
	SubjectLabel string       `json:"subject_label"`
	AttemptIndex int          `json:"attempt"` // 1-based
	AttemptTotal int          `json:"attempt_total"`
	Success      bool         `json:"success"`
	Data         *AttemptData `json:"data,omitempty"` // nil unless Success
	Error        string       `json:"error,omitempty"`
}
