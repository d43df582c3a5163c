package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// CaseRecord is the durable state of one case as seen across gazette
// publications. Participants accumulate across editions; the record
// itself is unique per process number.
type CaseRecord struct {
	ID            uuid.UUID
	ProcessNumber string
	Title         string
	Subjects      []string
	PlaintiffIDs  []uuid.UUID
	DefendantIDs  []uuid.UUID
	SourceID      string
	Page          int
	BookDate      time.Time
	ScrapedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// CaseFilter narrows List and Count. Zero fields do not filter.
type CaseFilter struct {
	ProcessNumber string
	SourceID      string
	From          time.Time
	To            time.Time
	OrderBy       string
	Limit         uint64
	Offset        uint64
}

// CaseStore persists case records.
type CaseStore struct {
	db querier
}

// NewCaseStore constructs a CaseStore over an existing pool.
func NewCaseStore(db querier) *CaseStore {
	return &CaseStore{db: db}
}

const caseColumns = `id, process_number, title, subjects, plaintiff_ids, defendant_ids, source_id, page, book_date, scraped_at, updated_at, deleted_at`

// FindByProcess returns the record for a process number, or nil when none
// exists yet.
func (s *CaseStore) FindByProcess(ctx context.Context, processNumber string) (*CaseRecord, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+caseColumns+`
FROM case_records WHERE process_number = $1`, processNumber)
	rec, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find case: %w", err)
	}
	return &rec, nil
}

// Create inserts a brand-new case record. The process_number unique key
// makes concurrent creates collide; callers should re-query on
// IsUniqueViolation.
func (s *CaseStore) Create(ctx context.Context, rec CaseRecord) (uuid.UUID, error) {
	if rec.ProcessNumber == "" {
		return uuid.Nil, fmt.Errorf("process number is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO case_records
(id, process_number, title, subjects, plaintiff_ids, defendant_ids, source_id, page, book_date, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		rec.ID, rec.ProcessNumber, rec.Title, rec.Subjects,
		rec.PlaintiffIDs, rec.DefendantIDs, rec.SourceID, rec.Page, rec.BookDate)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert case: %w", err)
	}
	return rec.ID, nil
}

// Update rewrites the mutable fields of an existing record. Callers
// compute the participant unions before calling.
func (s *CaseStore) Update(ctx context.Context, rec CaseRecord) error {
	if rec.ID == uuid.Nil {
		return fmt.Errorf("case id is required")
	}
	_, err := s.db.Exec(ctx, `
UPDATE case_records
SET title = $2, subjects = $3, plaintiff_ids = $4, defendant_ids = $5,
    page = $6, book_date = $7, updated_at = now()
WHERE id = $1`,
		rec.ID, rec.Title, rec.Subjects, rec.PlaintiffIDs, rec.DefendantIDs,
		rec.Page, rec.BookDate)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	return nil
}

// SoftDelete hides a record from listings without destroying it.
func (s *CaseStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `
UPDATE case_records SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return fmt.Errorf("soft delete case: %w", err)
	}
	return nil
}

// List returns non-deleted records matching the filter.
func (s *CaseStore) List(ctx context.Context, f CaseFilter) ([]CaseRecord, error) {
	q := psql.Select(caseColumns).
		From("case_records").
		Where(sq.Eq{"deleted_at": nil})
	q = applyCaseFilter(q, f)
	if f.OrderBy == "" {
		f.OrderBy = "book_date DESC"
	}
	q = q.OrderBy(f.OrderBy)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var records []CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return records, nil
}

// Count returns how many non-deleted records match the filter.
func (s *CaseStore) Count(ctx context.Context, f CaseFilter) (int, error) {
	q := psql.Select("count(*)").
		From("case_records").
		Where(sq.Eq{"deleted_at": nil})
	q = applyCaseFilter(q, f)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return n, nil
}

func applyCaseFilter(q sq.SelectBuilder, f CaseFilter) sq.SelectBuilder {
	if f.ProcessNumber != "" {
		q = q.Where(sq.Eq{"process_number": f.ProcessNumber})
	}
	if f.SourceID != "" {
		q = q.Where(sq.Eq{"source_id": f.SourceID})
	}
	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"book_date": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.LtOrEq{"book_date": f.To})
	}
	return q
}

func scanCase(row pgx.Row) (CaseRecord, error) {
	var rec CaseRecord
	err := row.Scan(&rec.ID, &rec.ProcessNumber, &rec.Title, &rec.Subjects,
		&rec.PlaintiffIDs, &rec.DefendantIDs, &rec.SourceID, &rec.Page,
		&rec.BookDate, &rec.ScrapedAt, &rec.UpdatedAt, &rec.DeletedAt)
	return rec, err
}
