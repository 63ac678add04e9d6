package db

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// Run statuses.
const (
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusNothingNew = "nothing_new"
	StatusFailed     = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID              string  `json:"id"`
	StartedAt       int64   `json:"started_at"`
	FinishedAt      *int64  `json:"finished_at,omitempty"`
	Status          string  `json:"status"`
	BoundaryBefore  *string `json:"boundary_before,omitempty"`
	BoundaryAfter   *string `json:"boundary_after,omitempty"`
	BoundaryOutcome *string `json:"boundary_outcome,omitempty"`
	NewItems        int     `json:"new_items"`
	Written         int     `json:"written"`
	AutoDated       int     `json:"auto_dated"`
	Unorganized     int     `json:"unorganized"`
	Bytes           int64   `json:"bytes"`
	Error           *string `json:"error,omitempty"`
}

// SyncedItem is one materialized item of a run.
type SyncedItem struct {
	RunID      string `json:"run_id"`
	ItemID     string `json:"item_id"`
	Filename   string `json:"filename"`
	Category   string `json:"category"`
	Path       string `json:"path"`
	CapturedAt int64  `json:"captured_at"`
	AutoDated  bool   `json:"auto_dated"`
	Bytes      int64  `json:"bytes"`
}

// InsertRun records the start of a run.
func InsertRun(db *sql.DB, id string, startedAt int64, boundaryBefore string) error {
	query := `
		INSERT INTO runs (id, started_at, status, boundary_before)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.Exec(query, id, startedAt, StatusRunning, nullIfEmpty(boundaryBefore)); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishRun stores the final state of a run.
func FinishRun(db *sql.DB, r *Run) error {
	query := `
		UPDATE runs
		SET finished_at = ?, status = ?, boundary_after = ?, boundary_outcome = ?,
			new_items = ?, written = ?, auto_dated = ?, unorganized = ?, bytes = ?, error = ?
		WHERE id = ?
	`
	result, err := db.Exec(query,
		toNullInt64(r.FinishedAt), r.Status, toNullString(r.BoundaryAfter), toNullString(r.BoundaryOutcome),
		r.NewItems, r.Written, r.AutoDated, r.Unorganized, r.Bytes, toNullString(r.Error),
		r.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewInternal(sql.ErrNoRows)
	}
	return nil
}

// InsertSyncedItem records a materialized item. Re-recording the same item
// in the same run replaces the earlier row.
func InsertSyncedItem(db *sql.DB, it *SyncedItem) error {
	query := `
		INSERT OR REPLACE INTO synced_items (
			run_id, item_id, filename, category, path, captured_at, auto_dated, bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		it.RunID, it.ItemID, it.Filename, it.Category, it.Path, it.CapturedAt, boolToInt(it.AutoDated), it.Bytes,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, boundary_before, boundary_after, boundary_outcome,
			new_items, written, auto_dated, unorganized, bytes, error
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`
	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// GetRun returns a run by its ULID, or nil when it does not exist.
func GetRun(db *sql.DB, id string) (*Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, boundary_before, boundary_after, boundary_outcome,
			new_items, written, auto_dated, unorganized, bytes, error
		FROM runs
		WHERE id = ?
	`
	r, err := scanRun(db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ItemsForRun returns the items materialized by a run in insertion order.
func ItemsForRun(db *sql.DB, runID string) ([]SyncedItem, error) {
	query := `
		SELECT run_id, item_id, filename, category, path, captured_at, auto_dated, bytes
		FROM synced_items
		WHERE run_id = ?
		ORDER BY rowid
	`
	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items := []SyncedItem{}
	for rows.Next() {
		var (
			it        SyncedItem
			autoDated int
		)
		if err := rows.Scan(&it.RunID, &it.ItemID, &it.Filename, &it.Category, &it.Path, &it.CapturedAt, &autoDated, &it.Bytes); err != nil {
			return nil, errors.NewInternal(err)
		}
		it.AutoDated = autoDated != 0
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return items, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run struct.
func scanRun(row scanner) (*Run, error) {
	var (
		r               Run
		finishedAt      sql.NullInt64
		boundaryBefore  sql.NullString
		boundaryAfter   sql.NullString
		boundaryOutcome sql.NullString
		errText         sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.StartedAt, &finishedAt, &r.Status, &boundaryBefore, &boundaryAfter, &boundaryOutcome,
		&r.NewItems, &r.Written, &r.AutoDated, &r.Unorganized, &r.Bytes, &errText,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Int64
	}
	r.BoundaryBefore = fromNullString(boundaryBefore)
	r.BoundaryAfter = fromNullString(boundaryAfter)
	r.BoundaryOutcome = fromNullString(boundaryOutcome)
	r.Error = fromNullString(errText)
	return &r, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
