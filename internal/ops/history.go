package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/loom/internal/db"
	"github.com/hpungsan/loom/internal/errors"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Chapter *int // optional zero-based chapter filter
	Limit   int  // default: 20, max: 100
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items []db.Job `json:"items"`
	Limit int      `json:"limit"`
}

// History lists recent generation jobs, newest first.
func History(ctx context.Context, database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	if database == nil {
		return nil, errors.NewConfigurationMissing("job journal")
	}
	if input.Chapter != nil && *input.Chapter < 0 {
		return nil, errors.NewInvalidRequest("chapter must not be negative")
	}

	limit := clampLimit(input.Limit, DefaultHistoryLimit, MaxHistoryLimit)
	jobs, err := db.ListJobs(ctx, database, input.Chapter, limit)
	if err != nil {
		return nil, err
	}
	return &HistoryOutput{Items: jobs, Limit: limit}, nil
}
