// Package inventory guards the copy counters of a book. Every change is a
// single conditional UPDATE, so the counters can never leave
// 0 <= copies_available <= copies_total even under concurrent callers.
package inventory

import (
	"context"

	"libtrack/pkg/apperr"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type Ledger struct {
	books store.BookStore
}

// New binds a ledger to books, usually the transaction store of the
// operation the copy change belongs to.
func New(books store.BookStore) Ledger {
	return Ledger{books: books}
}

// ReserveCopy takes one copy of the book off the shelf.
func (l Ledger) ReserveCopy(ctx context.Context, bookID string) error {
	ok, err := l.books.DecrementAvailable(ctx, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNoCopiesAvailable, "no copies of book %s are available", bookID)
	}
	return nil
}

// ReleaseCopy puts one copy back. A refusal means a return was recorded for
// a copy that was never lent out.
func (l Ledger) ReleaseCopy(ctx context.Context, bookID string) error {
	ok, err := l.books.IncrementAvailable(ctx, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindInvariantViolation,
			"returning a copy of book %s would exceed its total copies", bookID)
	}
	return nil
}

// AdjustCopies changes the number of owned copies. Copies currently lent out
// stay lent out, so total may not drop below that number.
func (l Ledger) AdjustCopies(ctx context.Context, bookID string, total int) (*models.Book, error) {
	if total < 1 {
		return nil, apperr.Validation("copiesTotal must be at least 1")
	}
	book, err := l.books.FindBook(ctx, bookID, true)
	if err != nil {
		return nil, err
	}
	ok, err := l.books.SetCopies(ctx, bookID, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		lent := book.CopiesTotal - book.CopiesAvailable
		return nil, apperr.New(apperr.KindConflict,
			"%d copies are lent out, copiesTotal cannot be lowered to %d", lent, total)
	}
	return l.books.FindBook(ctx, bookID, false)
}

// SetStatus puts a book into MAINTENANCE or LOST, or clears such a status
// when given AVAILABLE or BORROWED. Cleared books get the status their copy
// counter implies, whichever of the two was asked for.
func (l Ledger) SetStatus(ctx context.Context, bookID string, status models.BookStatus) (*models.Book, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown book status %q", status)
	}

	var (
		ok  bool
		err error
	)
	if status.Manual() {
		ok, err = l.books.SetBookStatus(ctx, bookID, status)
	} else {
		ok, err = l.books.RestoreBookStatus(ctx, bookID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("Book", bookID)
	}
	return l.books.FindBook(ctx, bookID, false)
}

// SyncStatuses recomputes every derived status and returns how many changed.
func (l Ledger) SyncStatuses(ctx context.Context) (int64, error) {
	return l.books.SyncBookStatuses(ctx)
}
