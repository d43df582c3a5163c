package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimelineEntry is one appearance of a case in one gazette edition: the
// raw carved text, where it was printed, and when. Re-publications on
// other dates or pages append new entries.
type TimelineEntry struct {
	ID            uuid.UUID
	ProcessNumber string
	Page          int
	SnapshotDate  time.Time
	Body          string
	CreatedAt     time.Time
}

// TimelineStore persists per-edition case snapshots.
type TimelineStore struct {
	db querier
}

// NewTimelineStore constructs a TimelineStore over an existing pool.
func NewTimelineStore(db querier) *TimelineStore {
	return &TimelineStore{db: db}
}

// Insert appends a timeline entry. Replays of the same edition hit the
// (process_number, page_number, snapshot_date) unique key and are
// absorbed; the return value reports whether a row was written.
func (s *TimelineStore) Insert(ctx context.Context, e TimelineEntry) (bool, error) {
	if e.ProcessNumber == "" {
		return false, fmt.Errorf("process number is required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO case_timeline (id, process_number, page_number, snapshot_date, body)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (process_number, page_number, snapshot_date) DO NOTHING`,
		e.ID, e.ProcessNumber, e.Page, e.SnapshotDate, e.Body)
	if err != nil {
		return false, fmt.Errorf("insert timeline entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByProcess returns every snapshot of a case, oldest first.
func (s *TimelineStore) ListByProcess(ctx context.Context, processNumber string) ([]TimelineEntry, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, process_number, page_number, snapshot_date, body, created_at
FROM case_timeline
WHERE process_number = $1
ORDER BY snapshot_date, page_number`, processNumber)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.ProcessNumber, &e.Page, &e.SnapshotDate, &e.Body, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return entries, nil
}
