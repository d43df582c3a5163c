package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func caseRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "process_number", "title", "subjects", "plaintiff_ids", "defendant_ids",
		"source_id", "page", "book_date", "scraped_at", "updated_at", "deleted_at",
	})
}

func TestFindByProcessReturnsNilWhenMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM case_records WHERE process_number").
		WithArgs("0001234-56.2024.8.19.0001").
		WillReturnError(pgx.ErrNoRows)

	rec, err := NewCaseStore(mock).FindByProcess(context.Background(), "0001234-56.2024.8.19.0001")
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByProcessReturnsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	plaintiff := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM case_records WHERE process_number").
		WithArgs("0001234-56.2024.8.19.0001").
		WillReturnRows(caseRows().AddRow(
			id, "0001234-56.2024.8.19.0001", "DESPEJO", []string{"cobrança"},
			[]uuid.UUID{plaintiff}, []uuid.UUID{}, "DJE-RJ", 3, now, now, now, nil,
		))

	rec, err := NewCaseStore(mock).FindByProcess(context.Background(), "0001234-56.2024.8.19.0001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, id, rec.ID)
	require.Equal(t, []uuid.UUID{plaintiff}, rec.PlaintiffIDs)
	require.Nil(t, rec.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCase(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := CaseRecord{
		ProcessNumber: "0001234-56.2024.8.19.0001",
		Title:         "DESPEJO",
		Subjects:      []string{"cobrança"},
		PlaintiffIDs:  []uuid.UUID{uuid.New()},
		SourceID:      "DJE-RJ",
		Page:          3,
		BookDate:      time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec("INSERT INTO case_records").
		WithArgs(pgxmock.AnyArg(), rec.ProcessNumber, rec.Title, rec.Subjects,
			rec.PlaintiffIDs, rec.DefendantIDs, rec.SourceID, rec.Page, rec.BookDate).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := NewCaseStore(mock).Create(context.Background(), rec)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCaseRequiresProcessNumber(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewCaseStore(mock).Create(context.Background(), CaseRecord{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCase(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := CaseRecord{
		ID:           uuid.New(),
		Title:        "DESPEJO",
		Subjects:     []string{"cobrança", "dano moral"},
		PlaintiffIDs: []uuid.UUID{uuid.New()},
		DefendantIDs: []uuid.UUID{uuid.New()},
		Page:         7,
		BookDate:     time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec("UPDATE case_records").
		WithArgs(rec.ID, rec.Title, rec.Subjects, rec.PlaintiffIDs, rec.DefendantIDs,
			rec.Page, rec.BookDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewCaseStore(mock).Update(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCasesAppliesFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM case_records WHERE deleted_at IS NULL AND source_id = (.+) AND book_date >=").
		WithArgs("DJE-RJ", from).
		WillReturnRows(caseRows())

	records, err := NewCaseStore(mock).List(context.Background(), CaseFilter{
		SourceID: "DJE-RJ",
		From:     from,
		Limit:    50,
	})
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountCases(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT count").
		WithArgs("0001234-56.2024.8.19.0001").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	n, err := NewCaseStore(mock).Count(context.Background(), CaseFilter{ProcessNumber: "0001234-56.2024.8.19.0001"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteCase(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE case_records SET deleted_at").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewCaseStore(mock).SoftDelete(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}
