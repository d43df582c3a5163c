package store

import (
	"context"
	"fmt"
	"time"
)

// ClaimStore arbitrates which worker extracts a completed book. A claim
// is exclusive while its lease holds; if the holder dies the lease
// expires and another worker may take over. A finished claim stays on
// record in state done so late page redeliveries do not trigger a second
// extraction.
type ClaimStore struct {
	db querier
}

// NewClaimStore constructs a ClaimStore over an existing pool.
func NewClaimStore(db querier) *ClaimStore {
	return &ClaimStore{db: db}
}

// Acquire tries to take the extraction claim for the book, holding it for
// the given lease. It returns true when this caller now owns the claim:
// either no claim existed, or a previous extracting claim's lease had
// lapsed. Books already done are never re-claimed.
func (s *ClaimStore) Acquire(ctx context.Context, bookID string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, fmt.Errorf("lease must be positive")
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO book_claims (book_id, state, lease_expires_at)
VALUES ($1, 'extracting', now() + make_interval(secs => $2))
ON CONFLICT (book_id) DO UPDATE
SET state = 'extracting', lease_expires_at = now() + make_interval(secs => $2)
WHERE book_claims.state = 'extracting' AND book_claims.lease_expires_at < now()`,
		bookID, lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("acquire claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release gives the claim back after a failed extraction so a retry can
// acquire it immediately instead of waiting out the lease.
func (s *ClaimStore) Release(ctx context.Context, bookID string) error {
	if _, err := s.db.Exec(ctx, `
DELETE FROM book_claims WHERE book_id = $1 AND state = 'extracting'`, bookID); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Reset drops any claim on the book, done or not, so a replay can run
// extraction again.
func (s *ClaimStore) Reset(ctx context.Context, bookID string) error {
	if _, err := s.db.Exec(ctx, `
DELETE FROM book_claims WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("reset claim: %w", err)
	}
	return nil
}

// Finish marks the book's extraction as done, permanently.
func (s *ClaimStore) Finish(ctx context.Context, bookID string) error {
	if _, err := s.db.Exec(ctx, `
UPDATE book_claims SET state = 'done' WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("finish claim: %w", err)
	}
	return nil
}
