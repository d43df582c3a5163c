package store

import (
	"context"
	"fmt"
	"strings"
)

// PageStore persists normalized gazette pages until their book is
// complete and reassembled.
type PageStore struct {
	db querier
}

// NewPageStore constructs a PageStore over an existing pool.
func NewPageStore(db querier) *PageStore {
	return &PageStore{db: db}
}

// AddPage stores one page of a book. Duplicate deliveries of the same
// page are absorbed silently; the return value reports whether this call
// actually inserted the row.
func (s *PageStore) AddPage(ctx context.Context, bookID string, page, pageQty int, text string) (bool, error) {
	if bookID == "" {
		return false, fmt.Errorf("book id is required")
	}
	if page < 1 || pageQty < 1 || page > pageQty {
		return false, fmt.Errorf("page %d out of range for book of %d pages", page, pageQty)
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO book_pages (book_id, page_number, page_qty, content)
VALUES ($1, $2, $3, $4)
ON CONFLICT (book_id, page_number) DO NOTHING`,
		bookID, page, pageQty, text)
	if err != nil {
		return false, fmt.Errorf("insert page: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Count returns how many distinct pages of the book have been stored.
func (s *PageStore) Count(ctx context.Context, bookID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM book_pages WHERE book_id = $1`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// IsComplete reports whether every page of the book has arrived.
func (s *PageStore) IsComplete(ctx context.Context, bookID string, pageQty int) (bool, error) {
	n, err := s.Count(ctx, bookID)
	if err != nil {
		return false, err
	}
	return n >= pageQty, nil
}

// OrderedBook reassembles the book text in page order. Each page is
// trimmed and joined with a blank line, so paragraph boundaries survive
// the page joins.
func (s *PageStore) OrderedBook(ctx context.Context, bookID string) (string, error) {
	rows, err := s.db.Query(ctx, `
SELECT content FROM book_pages WHERE book_id = $1 ORDER BY page_number`, bookID)
	if err != nil {
		return "", fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("scan page: %w", err)
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(content))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate pages: %w", err)
	}
	return b.String(), nil
}

// StoredPage is one page row as read back for replay.
type StoredPage struct {
	Number  int
	PageQty int
	Text    string
}

// Pages returns the stored pages of a book in page order.
func (s *PageStore) Pages(ctx context.Context, bookID string) ([]StoredPage, error) {
	rows, err := s.db.Query(ctx, `
SELECT page_number, page_qty, content FROM book_pages WHERE book_id = $1 ORDER BY page_number`, bookID)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	var pages []StoredPage
	for rows.Next() {
		var p StoredPage
		if err := rows.Scan(&p.Number, &p.PageQty, &p.Text); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// Purge deletes every stored page of the book after extraction.
func (s *PageStore) Purge(ctx context.Context, bookID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM book_pages WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("purge pages: %w", err)
	}
	return nil
}
