package resilience

import (
	"time"
)

// DLQEntry represents a failed grading task that can be retried later.
type DLQEntry struct {
	ID           string    `json:"id"`
	SubjectLabel string    `json:"subject_label"`
	AttemptIndex int       `json:"attempt_index"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "retryable" or "permanent"
	FailedPhase  string    `json:"failed_phase,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "retryable", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "retryable" or "permanent".
func ClassifyError(err error) string {
	if IsRetryable(err) {
		return "retryable"
	}
	return "permanent"
}
