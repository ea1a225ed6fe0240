package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/edforge/eval-cli/internal/db"
	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/resilience"
	"github.com/edforge/eval-cli/internal/review"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_report": `INSERT INTO reports (id, task_id, final_level, total_score, report, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET task_id = $2, final_level = $3, total_score = $4, report = $5`,
	"get_report":    `SELECT report FROM reports WHERE id = $1`,
	"delete_report": `DELETE FROM reports WHERE id = $1`,
	"get_summary":   `SELECT id, label, attempts, summary, created_at FROM batch_summaries WHERE label = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	task_id     TEXT NOT NULL DEFAULT '',
	final_level TEXT NOT NULL,
	total_score DOUBLE PRECISION NOT NULL,
	report      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batch_summaries (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	label      TEXT NOT NULL UNIQUE,
	attempts   INTEGER NOT NULL,
	summary    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attempt_scores (
	summary_id    TEXT NOT NULL REFERENCES batch_summaries(id),
	subject       TEXT NOT NULL,
	metric        TEXT NOT NULL,
	attempt_index INTEGER NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (summary_id, subject, metric, attempt_index)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_label  TEXT NOT NULL,
	attempt_index  INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'retryable',
	failed_phase   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_level ON reports(final_level);
CREATE INDEX IF NOT EXISTS idx_reports_task ON reports(task_id);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempt_scores_summary ON attempt_scores(summary_id);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, report *model.EvaluationReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, task_id, final_level, total_score, report, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET task_id = $2, final_level = $3, total_score = $4, report = $5`,
		report.ID, report.TaskID, report.FinalLevel.String(), report.TotalScore, reportJSON, report.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save report")
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.EvaluationReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM reports WHERE id = $1`, id,
	).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("report not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}

	var r model.EvaluationReport
	if err := json.Unmarshal(reportJSON, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.EvaluationReport, error) {
	query := `SELECT report FROM reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Level != "" {
		query += fmt.Sprintf(` AND final_level = $%d`, argIdx)
		args = append(args, filter.Level)
		argIdx++
	}
	if filter.TaskID != "" {
		query += fmt.Sprintf(` AND task_id = $%d`, argIdx)
		args = append(args, filter.TaskID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.EvaluationReport
	for rows.Next() {
		var reportJSON []byte
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		var r model.EvaluationReport
		if err := json.Unmarshal(reportJSON, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) DeleteReport(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete report %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("report not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) PruneReports(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM reports WHERE id NOT IN (
			SELECT id FROM reports ORDER BY created_at DESC LIMIT $1
		)`,
		keep,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune reports")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, label string, summary *review.Summary) (*SummaryRecord, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal summary")
	}

	existing := ""
	err = s.pool.QueryRow(ctx, `SELECT id FROM batch_summaries WHERE label = $1`, label).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: lookup summary %s", label)
	}
	id := existing
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO batch_summaries (id, label, attempts, summary, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (label) DO UPDATE SET attempts = $3, summary = $4, created_at = $5`,
		id, label, summary.Attempts, summaryJSON, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save summary %s", label)
	}

	rows := make([][]any, 0, len(summary.Subjects)*summary.Attempts)
	for _, row := range flattenScores(summary) {
		rows = append(rows, []any{id, row.Subject, row.Metric, row.AttemptIndex, row.Score})
	}
	columns := []string{"summary_id", "subject", "metric", "attempt_index", "score"}

	// Fresh summaries take the COPY fast path. Re-saves first drop the
	// summary's old rows so slots absent from the new summary do not
	// linger, then go through the bulk upsert.
	if existing == "" {
		if _, err := db.CopyFrom(ctx, s.pool, "attempt_scores", columns, rows); err != nil {
			return nil, eris.Wrap(err, "postgres: copy attempt scores")
		}
	} else {
		if _, err := s.pool.Exec(ctx, `DELETE FROM attempt_scores WHERE summary_id = $1`, id); err != nil {
			return nil, eris.Wrap(err, "postgres: clear attempt scores")
		}
		if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        "attempt_scores",
			Columns:      columns,
			ConflictKeys: []string{"summary_id", "subject", "metric", "attempt_index"},
		}, rows); err != nil {
			return nil, eris.Wrap(err, "postgres: upsert attempt scores")
		}
	}

	return &SummaryRecord{
		ID:        id,
		Label:     label,
		Attempts:  summary.Attempts,
		Summary:   summary,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, label string) (*SummaryRecord, error) {
	var rec SummaryRecord
	var summaryJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, label, attempts, summary, created_at FROM batch_summaries WHERE label = $1`,
		label,
	).Scan(&rec.ID, &rec.Label, &rec.Attempts, &summaryJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get summary %s", label)
	}

	rec.Summary = &review.Summary{}
	if err := json.Unmarshal(summaryJSON, rec.Summary); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal summary")
	}
	return &rec, nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context, limit int) ([]SummaryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, attempts, summary, created_at FROM batch_summaries ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list summaries")
	}
	defer rows.Close()

	var records []SummaryRecord
	for rows.Next() {
		var rec SummaryRecord
		var summaryJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Label, &rec.Attempts, &summaryJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		rec.Summary = &review.Summary{}
		if err := json.Unmarshal(summaryJSON, rec.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list summaries iterate")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, subject_label, attempt_index, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, failed_phase = $6, retry_count = $7,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.SubjectLabel, entry.AttemptIndex, entry.Error, entry.ErrorType,
		entry.FailedPhase, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, subject_label, attempt_index, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var failedPhase *string
		if err := rows.Scan(&e.ID, &e.SubjectLabel, &e.AttemptIndex, &e.Error, &e.ErrorType,
			&failedPhase, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if failedPhase != nil {
			e.FailedPhase = *failedPhase
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
