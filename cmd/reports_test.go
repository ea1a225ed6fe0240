package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edforge/eval-cli/internal/model"
)

func TestFormatReportsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	reports := []model.EvaluationReport{
		{
			ID:              "abc12345-6789-0000-0000-000000000000",
			TaskID:          "task-42",
			TotalScore:      86.5,
			FinalLevel:      model.LevelGood,
			PassCriteriaMet: true,
			CreatedAt:       now,
		},
		{
			ID:              "def12345-6789-0000-0000-000000000000",
			TaskID:          "task-43",
			TotalScore:      58.5,
			FinalLevel:      model.LevelVeto,
			PassCriteriaMet: false,
			CreatedAt:       now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatReportsList(&buf, reports)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "LEVEL")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "task-42")
	assert.Contains(t, output, "良好")
	assert.Contains(t, output, "86.5")
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "一票否决")
	assert.Contains(t, output, "no")
	assert.Contains(t, output, "2026-03-10 14:30")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
