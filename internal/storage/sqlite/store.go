// Package sqlite implements storage.Store on a local SQLite file for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	// one writer keeps read-modify-write ordering simple
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: ping")
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: init schema")
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS job_types (
		name TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		external_url TEXT,
		status_url TEXT,
		posting_url TEXT,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		result_url TEXT,
		caption TEXT,
		error_message TEXT,
		dispatch_response TEXT,
		failure_count INTEGER NOT NULL DEFAULT 0,
		poll_count INTEGER NOT NULL DEFAULT 0,
		last_status TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_user_category ON jobs(user_id, category);
	`)
	return err
}

// PutTypeConfig upserts a type configuration row.
func (s *Store) PutTypeConfig(ctx context.Context, tc domain.TypeConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_types (name, title, external_url, status_url, posting_url, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			title = excluded.title,
			external_url = excluded.external_url,
			status_url = excluded.status_url,
			posting_url = excluded.posting_url,
			is_active = excluded.is_active
	`, tc.Name, tc.Title, nullString(tc.ExternalURL), nullString(tc.StatusURL), nullString(tc.PostingURL), tc.IsActive)
	return errors.Wrapf(err, "sqlite: put type %s", tc.Name)
}

const jobColumns = `id, job_id, user_id, category, type, status,
	result_url, caption, error_message, dispatch_response,
	failure_count, poll_count, last_status, created_at, updated_at`

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) (*domain.Job, bool, error) {
	id := j.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_id, user_id, category, type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING
	`, id, j.JobID, j.UserID, j.Category, j.Type, string(j.Status), now, now)
	if err != nil {
		return nil, false, errors.Wrapf(err, "sqlite: create job %s", j.JobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, errors.Wrap(err, "sqlite: create job")
	}

	stored, err := s.GetJob(ctx, j.JobID)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrJobNotFound
		}
		return nil, errors.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, userID, category string) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE user_id = ? AND (? = '' OR category = ?)
		ORDER BY created_at DESC
	`, userID, category, category)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	out := make([]*domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite: scan job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "sqlite: list jobs")
}

func (s *Store) ListUnfinished(ctx context.Context, afterJobID string, limit int) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE job_id > ? AND status IN (?, ?, ?)
		ORDER BY job_id
		LIMIT ?
	`, afterJobID, string(domain.Pending), string(domain.Processing), string(domain.Approved), limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: list unfinished")
	}
	defer rows.Close()

	out := make([]*domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite: scan job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "sqlite: list unfinished")
}

func (s *Store) UpdateJob(ctx context.Context, j *domain.Job) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?,
		    result_url = ?,
		    caption = ?,
		    error_message = ?,
		    dispatch_response = ?,
		    failure_count = ?,
		    poll_count = ?,
		    last_status = ?,
		    updated_at = ?
		WHERE job_id = ?
	`, string(j.Status),
		nullString(j.ResultURL), nullString(j.Caption), nullString(j.ErrorMessage), nullString(string(j.DispatchResponse)),
		j.Failures, j.Polls, string(j.LastStatus), now.UnixMilli(), j.JobID)
	if err != nil {
		return errors.Wrapf(err, "sqlite: update job %s", j.JobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite: update job")
	}
	if n == 0 {
		return storage.ErrJobNotFound
	}
	j.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return nil
}

func (s *Store) ClearJobs(ctx context.Context, userID, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE user_id = ? AND (? = '' OR category = ?)`,
		userID, category, category)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: clear jobs")
	}
	return res.RowsAffected()
}

func (s *Store) GetTypeConfig(ctx context.Context, name string) (*domain.TypeConfig, error) {
	var (
		tc                        domain.TypeConfig
		external, status, posting sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, title, external_url, status_url, posting_url, is_active
		FROM job_types WHERE name = ?
	`, name).Scan(&tc.Name, &tc.Title, &external, &status, &posting, &tc.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTypeNotFound
		}
		return nil, errors.Wrapf(err, "sqlite: get type %s", name)
	}
	tc.ExternalURL, tc.StatusURL, tc.PostingURL = external.String, status.String, posting.String
	return &tc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		j                                   domain.Job
		status, lastStatus                  string
		resultURL, caption, errMessage, rsp sql.NullString
		createdAt, updatedAt                int64
	)
	err := row.Scan(
		&j.ID, &j.JobID, &j.UserID, &j.Category, &j.Type, &status,
		&resultURL, &caption, &errMessage, &rsp,
		&j.Failures, &j.Polls, &lastStatus, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status, j.LastStatus = domain.Status(status), domain.Status(lastStatus)
	j.ResultURL, j.Caption, j.ErrorMessage = resultURL.String, caption.String, errMessage.String
	if rsp.Valid && strings.TrimSpace(rsp.String) != "" {
		j.DispatchResponse = []byte(rsp.String)
	}
	j.CreatedAt = time.UnixMilli(createdAt).UTC()
	j.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
