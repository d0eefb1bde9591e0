package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"libtrack/pkg/apperr"
	"libtrack/pkg/events"
	"libtrack/pkg/inventory"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

const day = 24 * time.Hour

type BorrowRequest struct {
	// UserID is the borrower; empty means the actor borrows for themselves.
	UserID string
	BookID string
	// BorrowDays defaults to the configured maximum when zero.
	BorrowDays int
	Notes      string
}

// Borrow lends one copy of a book. The checks run in this order and the
// first failing one decides the error: permission, book, copies, borrower,
// duplicate loan, loan limit.
func (m *Manager) Borrow(ctx context.Context, actor Actor, req BorrowRequest) (result *models.Borrowing, err error) {
	ctx, span := m.tel.Start(ctx, "lifecycle.Borrow", attribute.String("book.id", req.BookID))
	defer func() { m.tel.End(ctx, span, "borrow", err) }()

	borrowerID := req.UserID
	if borrowerID == "" {
		borrowerID = actor.ID
	}
	if borrowerID != actor.ID && !actor.Role.Elevated() {
		return nil, apperr.New(apperr.KindPermissionDenied, "only staff may borrow on behalf of another user")
	}
	if req.BookID == "" {
		return nil, apperr.Validation("bookId is required")
	}
	days := req.BorrowDays
	if days == 0 {
		days = m.cfg.MaxBorrowDays
	}
	if days < 1 || days > m.cfg.MaxBorrowDays {
		return nil, apperr.Validation("borrowDays must be between 1 and %d", m.cfg.MaxBorrowDays)
	}

	now := m.clock.Now()
	err = m.store.InTx(ctx, func(tx store.EntityStore) error {
		book, err := tx.FindBook(ctx, req.BookID, true)
		if err != nil {
			return err
		}
		if book.CopiesAvailable <= 0 {
			return apperr.New(apperr.KindNoCopiesAvailable, "no copies of %q are available", book.Title)
		}

		user, err := tx.FindUser(ctx, borrowerID, true)
		if err != nil {
			return err
		}
		if user.Status != models.UserActive {
			return apperr.New(apperr.KindUserInactive, "user %s is %s and cannot borrow", user.ID, user.Status)
		}

		open, err := tx.CountBorrowings(ctx, store.BorrowingFilter{
			UserID:   user.ID,
			BookID:   book.ID,
			Statuses: []models.BorrowingStatus{models.BorrowingBorrowed},
		})
		if err != nil {
			return err
		}
		if open > 0 {
			return apperr.New(apperr.KindAlreadyBorrowed, "user already has %q on loan", book.Title)
		}

		active, err := tx.CountBorrowings(ctx, store.BorrowingFilter{
			UserID:   user.ID,
			Statuses: models.ActiveBorrowingStatuses,
		})
		if err != nil {
			return err
		}
		if active >= int64(m.cfg.MaxBooksPerUser) {
			return apperr.New(apperr.KindBorrowLimitReached,
				"user already has %d active borrowings, the limit is %d", active, m.cfg.MaxBooksPerUser)
		}

		if err := inventory.New(tx).ReserveCopy(ctx, book.ID); err != nil {
			return err
		}

		borrowing := &models.Borrowing{
			UserID:             user.ID,
			BookID:             book.ID,
			BorrowDate:         now,
			ExpectedReturnDate: now.Add(time.Duration(days) * day),
			Status:             models.BorrowingBorrowed,
			Notes:              req.Notes,
		}
		if err := tx.CreateBorrowing(ctx, borrowing); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.Wrap(apperr.KindAlreadyBorrowed, err, "user already has %q on loan", book.Title)
			}
			return err
		}

		book, err = tx.FindBook(ctx, book.ID, false)
		if err != nil {
			return err
		}
		borrowing.User = user
		borrowing.Book = book
		result = borrowing
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("book borrowed",
		"borrowing_id", result.ID, "book_id", result.BookID, "user_id", result.UserID,
		"actor_id", actor.ID, "due", result.ExpectedReturnDate)

	m.emitter.Audit(ctx, events.AuditEvent{
		ActorID:     actor.ID,
		Action:      events.ActionBookBorrowed,
		BookID:      result.BookID,
		BorrowingID: result.ID,
		NewValue: map[string]any{
			"userId":             result.UserID,
			"status":             result.Status,
			"expectedReturnDate": result.ExpectedReturnDate,
			"copiesAvailable":    result.Book.CopiesAvailable,
		},
		At: now,
	})
	m.emitter.Notify(ctx, events.NotificationEvent{
		UserID:  result.UserID,
		BookID:  result.BookID,
		Type:    models.NotificationInfo,
		Title:   "Book borrowed",
		Message: fmt.Sprintf("You borrowed %q. Please return it by %s.", result.Book.Title, formatDate(result.ExpectedReturnDate)),
		At:      now,
	})
	return result, nil
}

// Return closes an active borrowing and puts the copy back on the shelf.
func (m *Manager) Return(ctx context.Context, actor Actor, borrowingID, notes string) (result *models.Borrowing, err error) {
	ctx, span := m.tel.Start(ctx, "lifecycle.Return", attribute.String("borrowing.id", borrowingID))
	defer func() { m.tel.End(ctx, span, "return", err) }()

	now := m.clock.Now()
	var previous models.BorrowingStatus
	err = m.store.InTx(ctx, func(tx store.EntityStore) error {
		borrowing, err := tx.FindBorrowing(ctx, borrowingID, true)
		if err != nil {
			return err
		}
		if !actor.CanActFor(borrowing.UserID) {
			return apperr.New(apperr.KindPermissionDenied, "borrowing %s belongs to another user", borrowingID)
		}
		if borrowing.Status == models.BorrowingReturned {
			return apperr.New(apperr.KindAlreadyReturned, "borrowing %s was already returned", borrowingID)
		}
		previous = borrowing.Status

		ok, err := tx.MarkReturned(ctx, borrowingID, now, mergeNotes(borrowing.Notes, notes))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindAlreadyReturned, "borrowing %s was already returned", borrowingID)
		}

		if err := inventory.New(tx).ReleaseCopy(ctx, borrowing.BookID); err != nil {
			if errors.Is(err, apperr.ErrInvariantViolation) {
				m.logger.Error("copy counter refused a return, rolling back",
					"borrowing_id", borrowingID, "book_id", borrowing.BookID, "error", err)
			}
			return err
		}

		result, err = tx.FindBorrowing(ctx, borrowingID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	late := now.After(result.ExpectedReturnDate)
	m.logger.Info("book returned",
		"borrowing_id", result.ID, "book_id", result.BookID, "user_id", result.UserID,
		"actor_id", actor.ID, "late", late)

	m.emitter.Audit(ctx, events.AuditEvent{
		ActorID:     actor.ID,
		Action:      events.ActionBookReturned,
		BookID:      result.BookID,
		BorrowingID: result.ID,
		OldValue:    map[string]any{"status": previous},
		NewValue:    map[string]any{"status": result.Status, "actualReturnDate": now},
		At:          now,
	})

	title := bookTitle(result)
	notification := events.NotificationEvent{
		UserID:  result.UserID,
		BookID:  result.BookID,
		Type:    models.NotificationInfo,
		Title:   "Book returned",
		Message: fmt.Sprintf("Thank you for returning %q.", title),
		At:      now,
	}
	if late {
		notification.Type = models.NotificationReminder
		notification.Title = "Book returned late"
		notification.Message = fmt.Sprintf("%q was returned %d day(s) after its due date %s.",
			title, result.DaysOverdue(now), formatDate(result.ExpectedReturnDate))
	}
	m.emitter.Notify(ctx, notification)
	return result, nil
}

// Extend pushes the due date of a BORROWED borrowing back by additionalDays.
// Borrowings already flagged OVERDUE cannot be extended.
func (m *Manager) Extend(ctx context.Context, actor Actor, borrowingID string, additionalDays int) (result *models.Borrowing, err error) {
	ctx, span := m.tel.Start(ctx, "lifecycle.Extend",
		attribute.String("borrowing.id", borrowingID), attribute.Int("days", additionalDays))
	defer func() { m.tel.End(ctx, span, "extend", err) }()

	if additionalDays < 1 {
		return nil, apperr.Validation("additionalDays must be at least 1")
	}

	now := m.clock.Now()
	var oldDue time.Time
	err = m.store.InTx(ctx, func(tx store.EntityStore) error {
		borrowing, err := tx.FindBorrowing(ctx, borrowingID, true)
		if err != nil {
			return err
		}
		if !actor.CanActFor(borrowing.UserID) {
			return apperr.New(apperr.KindPermissionDenied, "borrowing %s belongs to another user", borrowingID)
		}
		if borrowing.Status != models.BorrowingBorrowed {
			return apperr.New(apperr.KindInvalidStatus, "only BORROWED borrowings can be extended, this one is %s", borrowing.Status)
		}

		oldDue = borrowing.ExpectedReturnDate
		ok, err := tx.ExtendDue(ctx, borrowingID, oldDue.Add(time.Duration(additionalDays)*day))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindInvalidStatus, "borrowing %s is no longer BORROWED", borrowingID)
		}

		result, err = tx.FindBorrowing(ctx, borrowingID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("borrowing extended",
		"borrowing_id", result.ID, "actor_id", actor.ID, "days", additionalDays, "due", result.ExpectedReturnDate)

	m.emitter.Audit(ctx, events.AuditEvent{
		ActorID:     actor.ID,
		Action:      events.ActionBorrowingExtended,
		BookID:      result.BookID,
		BorrowingID: result.ID,
		OldValue:    map[string]any{"expectedReturnDate": oldDue},
		NewValue:    map[string]any{"expectedReturnDate": result.ExpectedReturnDate, "additionalDays": additionalDays},
		At:          now,
	})
	return result, nil
}

// SyncBookStatus recomputes the derived status of every book and returns how
// many books changed. A second call without intervening writes returns zero.
func (m *Manager) SyncBookStatus(ctx context.Context) (updated int64, err error) {
	ctx, span := m.tel.Start(ctx, "lifecycle.SyncBookStatus")
	defer func() { m.tel.End(ctx, span, "sync_status", err) }()

	err = m.store.InTx(ctx, func(tx store.EntityStore) error {
		updated, err = inventory.New(tx).SyncStatuses(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	m.logger.Info("book statuses synchronised", "updated", updated)
	if updated > 0 {
		m.emitter.Audit(ctx, events.AuditEvent{
			ActorID:  SystemActor.ID,
			Action:   events.ActionBookStatusSynced,
			NewValue: map[string]any{"updated": updated},
			At:       m.clock.Now(),
		})
	}
	return updated, nil
}

func mergeNotes(existing, added string) string {
	existing = strings.TrimSpace(existing)
	added = strings.TrimSpace(added)
	switch {
	case added == "":
		return existing
	case existing == "":
		return added
	default:
		return existing + "\n" + added
	}
}

func bookTitle(b *models.Borrowing) string {
	if b.Book != nil {
		return b.Book.Title
	}
	return b.BookID
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
