package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestAddPageInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO book_pages").
		WithArgs("DJE-RJ:2024-05-10:C", 3, 120, "page text").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := NewPageStore(mock).AddPage(context.Background(), "DJE-RJ:2024-05-10:C", 3, 120, "page text")
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPageAbsorbsDuplicate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO book_pages").
		WithArgs("DJE-RJ:2024-05-10:C", 3, 120, "page text").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := NewPageStore(mock).AddPage(context.Background(), "DJE-RJ:2024-05-10:C", 3, 120, "page text")
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPageRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPageStore(mock)
	_, err = s.AddPage(context.Background(), "book", 0, 10, "x")
	require.Error(t, err)
	_, err = s.AddPage(context.Background(), "book", 11, 10, "x")
	require.Error(t, err)
	_, err = s.AddPage(context.Background(), "", 1, 10, "x")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsComplete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT count").
		WithArgs("book").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(120))

	done, err := NewPageStore(mock).IsComplete(context.Background(), "book", 120)
	require.NoError(t, err)
	require.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderedBookJoinsTrimmedPages(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT content FROM book_pages").
		WithArgs("book").
		WillReturnRows(pgxmock.NewRows([]string{"content"}).
			AddRow("\n\n\n[[page:1]]first\n[[page:1]]line").
			AddRow("\n\n\n[[page:2]]second"))

	book, err := NewPageStore(mock).OrderedBook(context.Background(), "book")
	require.NoError(t, err)
	require.Equal(t, "\n\n[[page:1]]first\n[[page:1]]line\n\n[[page:2]]second", book)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeDeletesPages(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM book_pages").
		WithArgs("book").
		WillReturnResult(pgxmock.NewResult("DELETE", 120))

	require.NoError(t, NewPageStore(mock).Purge(context.Background(), "book"))
	require.NoError(t, mock.ExpectationsWereMet())
}
