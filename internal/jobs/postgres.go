package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps jobs in a Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and creates the schema when missing.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initJobSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initJobSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS panelcast_jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			turns INTEGER NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			tts_provider TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			result JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_panelcast_jobs_created ON panelcast_jobs (created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init job schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const jobColumns = `id, status, percent, message, turns, model, tts_provider, owner, error, error_kind, result, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, job Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO panelcast_jobs (`+jobColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,$11,$12)`,
		job.ID, string(job.Status), job.Percent, job.Message, job.Turns, job.Model, job.TTSProvider,
		job.Owner, job.Error, job.ErrorKind, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, id, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, append([]any{id, time.Now().UTC()}, args...)...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error {
	return s.exec(ctx, id,
		`UPDATE panelcast_jobs SET updated_at=$2, status=$3, percent=$4, message=$5 WHERE id=$1`,
		string(status), percent, message)
}

func (s *PostgresStore) Complete(ctx context.Context, id string, result Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.exec(ctx, id,
		`UPDATE panelcast_jobs SET updated_at=$2, status=$3, percent=1, message='Complete', result=$4 WHERE id=$1`,
		string(StatusComplete), raw)
}

func (s *PostgresStore) Fail(ctx context.Context, id, kind, message string) error {
	return s.exec(ctx, id,
		`UPDATE panelcast_jobs SET updated_at=$2, status=$3, error=$4, error_kind=$5, message=$6 WHERE id=$1`,
		string(StatusFailed), message, kind, "Failed: "+message)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM panelcast_jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int, cursor string) ([]Job, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var (
		rows pgx.Rows
		err  error
	)
	// One extra row tells whether another page follows.
	if cursor == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM panelcast_jobs ORDER BY created_at DESC, id DESC LIMIT $1`, limit+1)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM panelcast_jobs
			  WHERE (created_at, id) < (SELECT created_at, id FROM panelcast_jobs WHERE id=$1)
			  ORDER BY created_at DESC, id DESC LIMIT $2`, cursor, limit+1)
	}
	if err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}
	if len(out) <= limit {
		return out, "", nil
	}
	return out[:limit], out[limit-1].ID, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		job    Job
		status string
		result []byte
	)
	if err := row.Scan(&job.ID, &status, &job.Percent, &job.Message, &job.Turns, &job.Model,
		&job.TTSProvider, &job.Owner, &job.Error, &job.ErrorKind, &result, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	if len(result) > 0 {
		var r Result
		if err := json.Unmarshal(result, &r); err != nil {
			return Job{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &r
	}
	return job, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
