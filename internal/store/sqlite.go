package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/resilience"
	"github.com/edforge/eval-cli/internal/review"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL DEFAULT '',
	final_level TEXT NOT NULL,
	total_score REAL NOT NULL,
	report      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS batch_summaries (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL UNIQUE,
	attempts   INTEGER NOT NULL,
	summary    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS attempt_scores (
	summary_id    TEXT NOT NULL REFERENCES batch_summaries(id),
	subject       TEXT NOT NULL,
	metric        TEXT NOT NULL,
	attempt_index INTEGER NOT NULL,
	score         REAL NOT NULL,
	PRIMARY KEY (summary_id, subject, metric, attempt_index)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	subject_label  TEXT NOT NULL,
	attempt_index  INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'retryable',
	failed_phase   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reports_level ON reports(final_level);
CREATE INDEX IF NOT EXISTS idx_reports_task ON reports(task_id);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_summaries_label ON batch_summaries(label);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.EvaluationReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, task_id, final_level, total_score, report, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET task_id = ?, final_level = ?, total_score = ?, report = ?`,
		report.ID, report.TaskID, report.FinalLevel.String(), report.TotalScore, string(reportJSON), report.CreatedAt,
		report.TaskID, report.FinalLevel.String(), report.TotalScore, string(reportJSON),
	)
	return eris.Wrap(err, "sqlite: save report")
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.EvaluationReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM reports WHERE id = ?`, id,
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("report not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", id)
	}

	var r model.EvaluationReport
	if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.EvaluationReport, error) {
	query := `SELECT report FROM reports WHERE 1=1`
	var args []any

	if filter.Level != "" {
		query += ` AND final_level = ?`
		args = append(args, filter.Level)
	}
	if filter.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, filter.TaskID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.EvaluationReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		var r model.EvaluationReport
		if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete report %s", id)
	}
	return checkRowsAffected(res, "report", id)
}

func (s *SQLiteStore) PruneReports(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reports WHERE id NOT IN (
			SELECT id FROM reports ORDER BY created_at DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune reports")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, label string, summary *review.Summary) (*SummaryRecord, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	// Re-saving under the same label replaces the previous summary.
	id := ""
	err = tx.QueryRowContext(ctx, `SELECT id FROM batch_summaries WHERE label = ?`, label).Scan(&id)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: lookup summary %s", label)
	}
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batch_summaries (id, label, attempts, summary, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (label) DO UPDATE SET attempts = ?, summary = ?, created_at = ?`,
		id, label, summary.Attempts, string(summaryJSON), now,
		summary.Attempts, string(summaryJSON), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save summary %s", label)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attempt_scores WHERE summary_id = ?`, id); err != nil {
		return nil, eris.Wrap(err, "sqlite: clear attempt scores")
	}
	for _, row := range flattenScores(summary) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attempt_scores (summary_id, subject, metric, attempt_index, score) VALUES (?, ?, ?, ?, ?)`,
			id, row.Subject, row.Metric, row.AttemptIndex, row.Score,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert attempt score")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit summary")
	}

	return &SummaryRecord{
		ID:        id,
		Label:     label,
		Attempts:  summary.Attempts,
		Summary:   summary,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, label string) (*SummaryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, attempts, summary, created_at FROM batch_summaries WHERE label = ?`,
		label,
	)
	rec, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListSummaries(ctx context.Context, limit int) ([]SummaryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, attempts, summary, created_at FROM batch_summaries ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list summaries")
	}
	defer rows.Close()

	var records []SummaryRecord
	for rows.Next() {
		rec, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list summaries iterate")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, subject_label, attempt_index, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = ?, error_type = ?, failed_phase = ?, retry_count = ?,
		   next_retry_at = ?, last_failed_at = ?`,
		entry.ID, entry.SubjectLabel, entry.AttemptIndex, entry.Error, entry.ErrorType,
		entry.FailedPhase, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
		entry.Error, entry.ErrorType, entry.FailedPhase, entry.RetryCount,
		entry.NextRetryAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, subject_label, attempt_index, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var failedPhase sql.NullString
		if err := rows.Scan(&e.ID, &e.SubjectLabel, &e.AttemptIndex, &e.Error, &e.ErrorType,
			&failedPhase, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if failedPhase.Valid {
			e.FailedPhase = failedPhase.String
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq_entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (*SummaryRecord, error) {
	var rec SummaryRecord
	var summaryJSON string

	err := row.Scan(&rec.ID, &rec.Label, &rec.Attempts, &summaryJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan summary")
	}

	rec.Summary = &review.Summary{}
	if err := json.Unmarshal([]byte(summaryJSON), rec.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}
	return &rec, nil
}
