package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreColumns = []string{"summary_id", "subject", "metric", "attempt_index", "score"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "attempt_scores", scoreColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"attempt_scores"}, scoreColumns).WillReturnResult(3)

	rows := [][]any{
		{"s-1", "优秀_小明", "total", 1, 86.0},
		{"s-1", "优秀_小明", "total", 2, 90.0},
		{"s-1", "优秀_小明", "单项选择题", 1, 18.0},
	}
	n, err := CopyFrom(context.Background(), mock, "attempt_scores", scoreColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"attempt_scores"}, scoreColumns).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"s-1", "优秀_小明", "total", 1, 86.0}}
	_, err = CopyFrom(context.Background(), mock, "attempt_scores", scoreColumns, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO attempt_scores")
	assert.NoError(t, mock.ExpectationsWereMet())
}
