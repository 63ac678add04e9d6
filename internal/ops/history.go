package ops

import (
	"database/sql"

	"github.com/hpungsan/gphotosync/internal/db"
	"github.com/hpungsan/gphotosync/internal/errors"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Limit int    // default: 20, max: 100
	RunID string // when set, only this run and its items
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Runs  []db.Run        `json:"runs"`
	Items []db.SyncedItem `json:"items,omitempty"`
}

// History returns recent runs, newest first, or one run with the items it
// wrote.
func History(database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidConfig("run ledger is not available")
	}

	if input.RunID != "" {
		run, err := db.GetRun(database, input.RunID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, errors.NewNotFound("run", input.RunID)
		}
		items, err := db.ItemsForRun(database, input.RunID)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []db.SyncedItem{}
		}
		return &HistoryOutput{Runs: []db.Run{*run}, Items: items}, nil
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	runs, err := db.ListRuns(database, limit)
	if err != nil {
		return nil, err
	}
	// Ensure we return an empty array rather than nil
	if runs == nil {
		runs = []db.Run{}
	}
	return &HistoryOutput{Runs: runs}, nil
}
