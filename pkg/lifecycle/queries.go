package lifecycle

import (
	"context"

	"libtrack/pkg/apperr"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type ListQuery struct {
	// UserID defaults to the actor. Other users need an elevated actor.
	UserID   string
	BookID   string
	Statuses []models.BorrowingStatus
	Page     store.Page
}

func (m *Manager) Get(ctx context.Context, actor Actor, borrowingID string) (*models.Borrowing, error) {
	borrowing, err := m.store.FindBorrowing(ctx, borrowingID, false)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(borrowing.UserID) {
		return nil, apperr.New(apperr.KindPermissionDenied, "borrowing %s belongs to another user", borrowingID)
	}
	return borrowing, nil
}

// List returns the borrowings matching q, newest first. Elevated actors may
// pass an empty UserID with a BookID to see every borrower of a book.
func (m *Manager) List(ctx context.Context, actor Actor, q ListQuery) ([]models.Borrowing, int64, error) {
	if q.UserID == "" && (q.BookID == "" || !actor.Role.Elevated()) {
		q.UserID = actor.ID
	}
	if !actor.CanActFor(q.UserID) {
		return nil, 0, apperr.New(apperr.KindPermissionDenied, "only staff may list another user's borrowings")
	}
	for _, s := range q.Statuses {
		if !s.Valid() {
			return nil, 0, apperr.Validation("unknown borrowing status %q", s)
		}
	}
	if q.Page.Size == 0 {
		q.Page = store.NewPage(1, store.DefaultPageSize)
	}

	return m.store.ListBorrowings(ctx, store.BorrowingFilter{
		UserID:   q.UserID,
		BookID:   q.BookID,
		Statuses: q.Statuses,
	}, q.Page)
}
