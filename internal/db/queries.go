package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/hpungsan/loom/internal/errors"
)

// Job is one finished generation attempt.
type Job struct {
	ID          string `json:"id"`
	Chapter     int    `json:"chapter"`
	Part        int    `json:"part"`
	State       string `json:"state"`
	PromptChars int    `json:"prompt_chars"`
	OutputChars int    `json:"output_chars"`
	Error       string `json:"error,omitempty"`
	StartedAt   int64  `json:"started_at"`
	FinishedAt  int64  `json:"finished_at"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

const jobColumns = `id, chapter, part, state, prompt_chars, output_chars,
	error, started_at, finished_at, elapsed_ms`

// InsertJob records a finished job.
func InsertJob(ctx context.Context, db *sql.DB, j *Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		j.ID, j.Chapter, j.Part, j.State, j.PromptChars, j.OutputChars,
		toNullString(j.Error), j.StartedAt, j.FinishedAt, j.ElapsedMS,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetJob retrieves a job by its ULID.
func GetJob(ctx context.Context, db *sql.DB, id string) (*Job, error) {
	row := db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewInvalidRequest("job not found: " + id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return j, nil
}

// ListJobs returns the most recent jobs first, optionally for one chapter.
// Ordering is stable: started_at DESC, then id DESC.
func ListJobs(ctx context.Context, db *sql.DB, chapter *int, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if chapter != nil {
		query += ` WHERE chapter = ?`
		args = append(args, *chapter)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var errText sql.NullString
	if err := s.Scan(
		&j.ID, &j.Chapter, &j.Part, &j.State, &j.PromptChars, &j.OutputChars,
		&errText, &j.StartedAt, &j.FinishedAt, &j.ElapsedMS,
	); err != nil {
		return nil, err
	}
	j.Error = errText.String
	return &j, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
