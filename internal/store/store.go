// Package store persists evaluation reports, batch summaries, and the
// grading dead letter queue behind a driver-agnostic interface with SQLite
// and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/resilience"
	"github.com/edforge/eval-cli/internal/review"
)

// ReportFilter specifies criteria for listing evaluation reports.
type ReportFilter struct {
	Level  string `json:"level,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SummaryRecord is a persisted batch aggregation summary.
type SummaryRecord struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Attempts  int             `json:"attempts"`
	Summary   *review.Summary `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store defines the persistence interface for evaluation history.
type Store interface {
	// Reports
	SaveReport(ctx context.Context, report *model.EvaluationReport) error
	GetReport(ctx context.Context, id string) (*model.EvaluationReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.EvaluationReport, error)
	DeleteReport(ctx context.Context, id string) error
	// PruneReports deletes all but the newest keep reports and returns
	// how many were removed.
	PruneReports(ctx context.Context, keep int) (int, error)

	// Batch summaries
	SaveSummary(ctx context.Context, label string, summary *review.Summary) (*SummaryRecord, error)
	GetSummary(ctx context.Context, label string) (*SummaryRecord, error)
	ListSummaries(ctx context.Context, limit int) ([]SummaryRecord, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// scoreRow is one flattened (subject, metric, attempt) score from a batch
// summary, shared by both drivers when persisting attempt series.
type scoreRow struct {
	Subject      string
	Metric       string
	AttemptIndex int
	Score        float64
}

// flattenScores expands a summary into per-attempt score rows. Attempt
// indexes are 1-based; absent slots produce no row.
func flattenScores(summary *review.Summary) []scoreRow {
	var rows []scoreRow
	appendSeries := func(subject, metric string, scores []*float64) {
		for i, s := range scores {
			if s == nil {
				continue
			}
			rows = append(rows, scoreRow{Subject: subject, Metric: metric, AttemptIndex: i + 1, Score: *s})
		}
	}
	for _, sub := range summary.Subjects {
		appendSeries(sub.Name, "total", sub.TotalScores)
		for _, cat := range sub.Categories {
			appendSeries(sub.Name, cat.Name, cat.Scores)
		}
		for _, dim := range sub.Dimensions {
			appendSeries(sub.Name, dim.Name, dim.Scores)
		}
	}
	return rows
}
