// Package postgres implements storage.Store on PostgreSQL via pgx/v5.
// Schema is managed by the goose migrations under migrations/.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

// Open connects a pool for dsn and verifies it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	return New(db), nil
}

// Pool exposes the connection pool for callers that need a session, such as
// scheduler leader election.
func (s *Store) Pool() *pgxpool.Pool { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

const jobColumns = `id::text, job_id, user_id, category, type, status,
	result_url, caption, error_message, dispatch_response,
	failure_count, poll_count, last_status, created_at, updated_at`

// CreateJob inserts the job row; the job_id unique constraint makes a
// duplicate create return the existing row.
func (s *Store) CreateJob(ctx context.Context, j *domain.Job) (*domain.Job, bool, error) {
	id := j.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `insert into jobs(
id, job_id, user_id, category, type, status, failure_count, poll_count, last_status
) values ($1,$2,$3,$4,$5,$6,0,0,'')
on conflict (job_id) do nothing
returning `+jobColumns,
		id, j.JobID, j.UserID, j.Category, j.Type, string(j.Status),
	)
	created, err := scanJob(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Wrapf(err, "postgres: create job %s", j.JobID)
	}
	existing, err := s.GetJob(ctx, j.JobID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `select `+jobColumns+` from jobs where job_id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrJobNotFound
		}
		return nil, errors.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, userID, category string) ([]*domain.Job, error) {
	rows, err := s.db.Query(ctx, `select `+jobColumns+` from jobs
 where user_id = $1 and ($2 = '' or category = $2)
 order by created_at desc`, userID, category)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	out := make([]*domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "postgres: list jobs")
}

func (s *Store) ListUnfinished(ctx context.Context, afterJobID string, limit int) ([]*domain.Job, error) {
	statuses := make([]string, len(domain.Unfinished))
	for i, st := range domain.Unfinished {
		statuses[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `select `+jobColumns+` from jobs
 where job_id > $1 and status = any($2)
 order by job_id
 limit $3`, afterJobID, statuses, limit)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list unfinished")
	}
	defer rows.Close()

	out := make([]*domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "postgres: list unfinished")
}

// UpdateJob writes all mutable columns in a single statement.
func (s *Store) UpdateJob(ctx context.Context, j *domain.Job) error {
	var updated time.Time
	err := s.db.QueryRow(ctx, `update jobs
    set status = $2,
        result_url = $3,
        caption = $4,
        error_message = $5,
        dispatch_response = $6,
        failure_count = $7,
        poll_count = $8,
        last_status = $9,
        updated_at = now()
  where job_id = $1
  returning updated_at`,
		j.JobID, string(j.Status),
		nullable(j.ResultURL), nullable(j.Caption), nullable(j.ErrorMessage), nullableJSON(j.DispatchResponse),
		j.Failures, j.Polls, string(j.LastStatus),
	).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrJobNotFound
		}
		return errors.Wrapf(err, "postgres: update job %s", j.JobID)
	}
	j.UpdatedAt = updated
	return nil
}

func (s *Store) ClearJobs(ctx context.Context, userID, category string) (int64, error) {
	tag, err := s.db.Exec(ctx, `delete from jobs where user_id = $1 and ($2 = '' or category = $2)`, userID, category)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: clear jobs")
	}
	return tag.RowsAffected(), nil
}

func (s *Store) GetTypeConfig(ctx context.Context, name string) (*domain.TypeConfig, error) {
	var tc domain.TypeConfig
	err := s.db.QueryRow(ctx, `select name, coalesce(title, ''), coalesce(external_url, ''),
       coalesce(status_url, ''), coalesce(posting_url, ''), is_active
  from job_types where name = $1`, name).
		Scan(&tc.Name, &tc.Title, &tc.ExternalURL, &tc.StatusURL, &tc.PostingURL, &tc.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrTypeNotFound
		}
		return nil, errors.Wrapf(err, "postgres: get type %s", name)
	}
	return &tc, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j                              domain.Job
		status, lastStatus             string
		resultURL, caption, errMessage *string
		resp                           []byte
	)
	err := row.Scan(
		&j.ID, &j.JobID, &j.UserID, &j.Category, &j.Type, &status,
		&resultURL, &caption, &errMessage, &resp,
		&j.Failures, &j.Polls, &lastStatus, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status, j.LastStatus = domain.Status(status), domain.Status(lastStatus)
	j.ResultURL, j.Caption, j.ErrorMessage = deref(resultURL), deref(caption), deref(errMessage)
	if len(resp) > 0 {
		j.DispatchResponse = resp
	}
	return &j, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
