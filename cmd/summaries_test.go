package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edforge/eval-cli/internal/review"
	"github.com/edforge/eval-cli/internal/store"
)

func TestFormatSummariesList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []store.SummaryRecord{
		{
			ID:       "abc12345-6789-0000-0000-000000000000",
			Label:    "三月语文批改",
			Attempts: 5,
			Summary: &review.Summary{
				Attempts: 5,
				Subjects: []review.SubjectSummary{{Name: "优秀_小明"}, {Name: "合格_小红"}},
			},
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Label:     "empty-batch",
			Attempts:  3,
			CreatedAt: now.Add(-24 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatSummariesList(&buf, records)

	output := buf.String()
	assert.Contains(t, output, "LABEL")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "三月语文批改")
	assert.Contains(t, output, "2026-03-10 09:00")
	// Nil summary renders zero subjects rather than panicking.
	assert.Contains(t, output, "empty-batch")
}
