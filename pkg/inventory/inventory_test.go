package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libtrack/pkg/apperr"
	"libtrack/pkg/database"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

func setupLedger(t *testing.T) (Ledger, *store.Gorm) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	s := store.New(db)
	return New(s), s
}

func newBook(t *testing.T, s *store.Gorm, total, available int) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:           "Designing Data-Intensive Applications",
		Author:          "Martin Kleppmann",
		CopiesTotal:     total,
		CopiesAvailable: available,
		Status:          models.DeriveBookStatus(models.BookAvailable, available),
	}
	require.NoError(t, s.CreateBook(context.Background(), book))
	return book
}

func TestReserveAndReleaseCopy(t *testing.T) {
	ledger, s := setupLedger(t)
	ctx := context.Background()
	book := newBook(t, s, 1, 1)

	require.NoError(t, ledger.ReserveCopy(ctx, book.ID))
	assert.ErrorIs(t, ledger.ReserveCopy(ctx, book.ID), apperr.ErrNoCopiesAvailable)

	got, err := s.FindBook(ctx, book.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CopiesAvailable)
	assert.Equal(t, models.BookBorrowed, got.Status)

	require.NoError(t, ledger.ReleaseCopy(ctx, book.ID))
	assert.ErrorIs(t, ledger.ReleaseCopy(ctx, book.ID), apperr.ErrInvariantViolation)

	got, err = s.FindBook(ctx, book.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CopiesAvailable)
	assert.Equal(t, models.BookAvailable, got.Status)
}

func TestAdjustCopies(t *testing.T) {
	ledger, s := setupLedger(t)
	ctx := context.Background()
	book := newBook(t, s, 4, 1)

	got, err := ledger.AdjustCopies(ctx, book.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, got.CopiesTotal)
	assert.Equal(t, 3, got.CopiesAvailable)
	assert.Equal(t, models.BookAvailable, got.Status)

	got, err = ledger.AdjustCopies(ctx, book.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CopiesAvailable)
	assert.Equal(t, models.BookBorrowed, got.Status)

	_, err = ledger.AdjustCopies(ctx, book.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	lost := newBook(t, s, 2, 2)
	_, err = ledger.SetStatus(ctx, lost.ID, models.BookLost)
	require.NoError(t, err)
	got, err = ledger.AdjustCopies(ctx, lost.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CopiesAvailable)
	assert.Equal(t, models.BookLost, got.Status)

	_, err = ledger.AdjustCopies(ctx, book.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ledger.AdjustCopies(ctx, "missing", 3)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	ledger, s := setupLedger(t)
	ctx := context.Background()
	book := newBook(t, s, 2, 2)

	got, err := ledger.SetStatus(ctx, book.ID, models.BookMaintenance)
	require.NoError(t, err)
	assert.Equal(t, models.BookMaintenance, got.Status)

	n, err := ledger.SyncStatuses(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err = ledger.SetStatus(ctx, book.ID, models.BookBorrowed)
	require.NoError(t, err)
	assert.Equal(t, models.BookAvailable, got.Status)

	_, err = ledger.SetStatus(ctx, book.ID, "SHREDDED")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ledger.SetStatus(ctx, "missing", models.BookLost)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
