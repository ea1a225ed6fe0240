package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edforge/eval-cli/internal/resilience"
)

func dlqEntry(id string) resilience.DLQEntry {
	now := time.Now()
	return resilience.DLQEntry{
		ID:           id,
		SubjectLabel: "英语_小明",
		AttemptIndex: 2,
		Error:        "503 Service Unavailable",
		ErrorType:    "retryable",
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  now.Add(-1 * time.Minute), // already past, eligible
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

func TestSQLite_DLQ_EnqueueAndDequeue(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-1")))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-1", entries[0].ID)
	assert.Equal(t, "英语_小明", entries[0].SubjectLabel)
	assert.Equal(t, 2, entries[0].AttemptIndex)
	assert.Equal(t, "retryable", entries[0].ErrorType)
	assert.Equal(t, 0, entries[0].RetryCount)
}

func TestSQLite_DLQ_DequeueFiltersErrorType(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	retryable := dlqEntry("dlq-r")
	permanent := dlqEntry("dlq-p")
	permanent.Error = "judgment payload missing field score"
	permanent.ErrorType = "permanent"
	require.NoError(t, st.EnqueueDLQ(ctx, retryable))
	require.NoError(t, st.EnqueueDLQ(ctx, permanent))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: "retryable"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-r", entries[0].ID)
}

func TestSQLite_DLQ_DequeueRespectsNextRetryAt(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	entry := dlqEntry("dlq-future")
	entry.NextRetryAt = time.Now().Add(1 * time.Hour)
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_DequeueRespectsMaxRetries(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	entry := dlqEntry("dlq-exhausted")
	entry.RetryCount = 3
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_IncrementRetry(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	entry := dlqEntry("dlq-inc")
	entry.MaxRetries = 5
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	nextRetry := time.Now().Add(5 * time.Minute)
	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-inc", nextRetry, "second error"))

	// Not eligible again until next_retry_at passes.
	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_IncrementRetry_NotFound(t *testing.T) {
	st := newTestSQLite(t)

	err := st.IncrementDLQRetry(context.Background(), "nonexistent", time.Now(), "error")
	assert.Error(t, err)
}

func TestSQLite_DLQ_RemoveAndCount(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-rm")))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, st.RemoveDLQ(ctx, "dlq-rm"))

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLite_DLQ_EnqueueReplace(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	entry := dlqEntry("dlq-replace")
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entry.Error = "Connection reset by peer"
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Connection reset by peer", entries[0].Error)
}

func TestSQLite_DLQ_DequeueOrdersByNextRetry(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"dlq-c", "dlq-a", "dlq-b"} {
		entry := dlqEntry(id)
		entry.NextRetryAt = now.Add(time.Duration(-3+i) * time.Minute)
		require.NoError(t, st.EnqueueDLQ(ctx, entry))
	}

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "dlq-c", entries[0].ID) // earliest
	assert.Equal(t, "dlq-a", entries[1].ID)
	assert.Equal(t, "dlq-b", entries[2].ID)
}

func TestSQLite_DLQ_DequeueWithFailedPhase(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	entry := dlqEntry("dlq-phase")
	entry.FailedPhase = "grade"
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "grade", entries[0].FailedPhase)
}
