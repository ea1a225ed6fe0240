package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/resilience"
	"github.com/edforge/eval-cli/internal/review"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleEvaluationReport() *model.EvaluationReport {
	return &model.EvaluationReport{
		ID:         "r-1",
		TaskID:     "task-9",
		TotalScore: 82.5,
		FinalLevel: model.LevelGood,
		Dimensions: []model.DimensionScore{
			{Dimension: "教学目标完成度", Score: 85, Weight: 0.4, Rating: model.RatingGood},
			{Dimension: "交互体验", Score: 78, Weight: 0.1, Rating: model.RatingGood},
		},
		PassCriteriaMet: true,
		CreatedAt:       time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
	}
}

func sampleBatchSummary() *review.Summary {
	score := func(v float64) *float64 { return &v }
	return &review.Summary{
		Attempts: 2,
		Subjects: []review.SubjectSummary{
			{
				Name:        "优秀_小明",
				FullMark:    100,
				TotalScores: []*float64{score(86), score(90)},
				Mean:        score(88),
				Variance:    score(4),
			},
		},
	}
}

func dlqRetryableFilter() resilience.DLQFilter {
	return resilience.DLQFilter{ErrorType: "retryable"}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetReport", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sampleEvaluationReport()
		require.NoError(t, s.SaveReport(ctx, r))

		got, err := s.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.TaskID, got.TaskID)
		assert.Equal(t, model.LevelGood, got.FinalLevel)
		require.Len(t, got.Dimensions, 2)
		assert.Equal(t, "教学目标完成度", got.Dimensions[0].Dimension)
	})

	t.Run("SaveReportAssignsIDAndTimestamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sampleEvaluationReport()
		r.ID = ""
		r.CreatedAt = time.Time{}
		require.NoError(t, s.SaveReport(ctx, r))
		assert.NotEmpty(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())
	})

	t.Run("SaveReportTwiceOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sampleEvaluationReport()
		require.NoError(t, s.SaveReport(ctx, r))

		r.TotalScore = 91
		r.FinalLevel = model.LevelExcellent
		require.NoError(t, s.SaveReport(ctx, r))

		got, err := s.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.InDelta(t, 91, got.TotalScore, 1e-9)
		assert.Equal(t, model.LevelExcellent, got.FinalLevel)

		all, err := s.ListReports(ctx, ReportFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("GetReportNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetReport(context.Background(), "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report not found")
	})

	t.Run("ListReportsByLevel", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		good := sampleEvaluationReport()
		require.NoError(t, s.SaveReport(ctx, good))

		veto := sampleEvaluationReport()
		veto.ID = "r-2"
		veto.FinalLevel = model.LevelVeto
		veto.CreatedAt = good.CreatedAt.Add(time.Minute)
		require.NoError(t, s.SaveReport(ctx, veto))

		got, err := s.ListReports(ctx, ReportFilter{Level: "一票否决"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r-2", got[0].ID)
	})

	t.Run("ListReportsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, id := range []string{"old", "mid", "new"} {
			r := sampleEvaluationReport()
			r.ID = id
			r.CreatedAt = time.Date(2026, 2, 10, 9, i, 0, 0, time.UTC)
			require.NoError(t, s.SaveReport(ctx, r))
		}

		got, err := s.ListReports(ctx, ReportFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new", got[0].ID)
		assert.Equal(t, "mid", got[1].ID)
	})

	t.Run("DeleteReport", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sampleEvaluationReport()
		require.NoError(t, s.SaveReport(ctx, r))
		require.NoError(t, s.DeleteReport(ctx, r.ID))

		_, err := s.GetReport(ctx, r.ID)
		require.Error(t, err)

		err = s.DeleteReport(ctx, r.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report not found")
	})

	t.Run("PruneReportsKeepsNewest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			r := sampleEvaluationReport()
			r.ID = string(rune('a' + i))
			r.CreatedAt = time.Date(2026, 2, 10, 9, i, 0, 0, time.UTC)
			require.NoError(t, s.SaveReport(ctx, r))
		}

		removed, err := s.PruneReports(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		remaining, err := s.ListReports(ctx, ReportFilter{})
		require.NoError(t, err)
		require.Len(t, remaining, 2)
		assert.Equal(t, "e", remaining[0].ID)
		assert.Equal(t, "d", remaining[1].ID)
	})

	t.Run("SaveAndGetSummary", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec, err := s.SaveSummary(ctx, "三月批次", sampleBatchSummary())
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, 2, rec.Attempts)

		got, err := s.GetSummary(ctx, "三月批次")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec.ID, got.ID)
		require.Len(t, got.Summary.Subjects, 1)
		assert.Equal(t, "优秀_小明", got.Summary.Subjects[0].Name)
	})

	t.Run("GetSummaryNotFound", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetSummary(context.Background(), "unknown")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ResaveSummaryKeepsID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.SaveSummary(ctx, "三月批次", sampleBatchSummary())
		require.NoError(t, err)

		again, err := s.SaveSummary(ctx, "三月批次", sampleBatchSummary())
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)

		all, err := s.ListSummaries(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestFlattenScores(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	summary := &review.Summary{
		Attempts: 3,
		Subjects: []review.SubjectSummary{
			{
				Name:        "优秀_小明",
				TotalScores: []*float64{score(86), nil, score(90)},
				Categories: []review.Series{
					{Name: "单项选择题", Scores: []*float64{score(18), nil, nil}},
				},
				Dimensions: []review.Series{
					{Name: "论证充分性", Scores: []*float64{nil, nil, score(88)}},
				},
			},
		},
	}

	rows := flattenScores(summary)
	require.Len(t, rows, 4)
	assert.Equal(t, scoreRow{Subject: "优秀_小明", Metric: "total", AttemptIndex: 1, Score: 86}, rows[0])
	assert.Equal(t, scoreRow{Subject: "优秀_小明", Metric: "total", AttemptIndex: 3, Score: 90}, rows[1])
	assert.Equal(t, scoreRow{Subject: "优秀_小明", Metric: "单项选择题", AttemptIndex: 1, Score: 18}, rows[2])
	assert.Equal(t, scoreRow{Subject: "优秀_小明", Metric: "论证充分性", AttemptIndex: 3, Score: 88}, rows[3])
}
