package lifecycle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"libtrack/pkg/clock"
	"libtrack/pkg/events"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type OverdueResult struct {
	// Flagged is set when this call moved the borrowing to OVERDUE.
	Flagged bool
	// Notified is set when this call created the day's OVERDUE notification.
	Notified    bool
	DaysOverdue int
}

// MarkOverdue flags one late borrowing and notifies its borrower, at most
// once per user, book and UTC day. Running it again on the same day changes
// nothing. A borrowing that is already OVERDUE is not flagged again, but it
// still gets that day's notification when none exists yet, so the borrower
// is reminded daily until the book comes back. Returned borrowings and
// borrowings that are no longer late are left alone.
func (m *Manager) MarkOverdue(ctx context.Context, borrowingID string) (res OverdueResult, err error) {
	ctx, span := m.tel.Start(ctx, "lifecycle.MarkOverdue", attribute.String("borrowing.id", borrowingID))
	defer func() { m.tel.End(ctx, span, "mark_overdue", err) }()

	now := m.clock.Now()
	var borrowing *models.Borrowing
	err = m.store.InTx(ctx, func(tx store.EntityStore) error {
		res = OverdueResult{}

		b, err := tx.FindBorrowing(ctx, borrowingID, true)
		if err != nil {
			return err
		}
		borrowing = b

		switch b.Status {
		case models.BorrowingReturned:
			return nil
		case models.BorrowingBorrowed:
			if !b.ExpectedReturnDate.Before(now) {
				return nil
			}
			ok, err := tx.TransitionBorrowing(ctx, b.ID, models.BorrowingBorrowed, models.BorrowingOverdue)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			res.Flagged = true
		}

		seen, err := tx.HasNotificationSince(ctx, b.UserID, b.BookID, models.NotificationOverdue, clock.StartOfDay(now))
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		book, err := tx.FindBook(ctx, b.BookID, false)
		if err != nil {
			return err
		}
		res.DaysOverdue = b.DaysOverdue(now)
		err = events.NewStoreSink(tx).Notify(ctx, events.NotificationEvent{
			UserID: b.UserID,
			BookID: b.BookID,
			Type:   models.NotificationOverdue,
			Title:  "Book overdue",
			Message: fmt.Sprintf("%q was due on %s and is %d day(s) overdue. Please return it as soon as possible.",
				book.Title, formatDate(b.ExpectedReturnDate), res.DaysOverdue),
			At: now,
		})
		if err != nil {
			return err
		}
		res.Notified = true
		return nil
	})
	if err != nil {
		return OverdueResult{}, err
	}

	if res.Flagged {
		m.logger.Info("borrowing flagged overdue",
			"borrowing_id", borrowing.ID, "user_id", borrowing.UserID, "book_id", borrowing.BookID,
			"days_overdue", borrowing.DaysOverdue(now))
		m.emitter.Audit(ctx, events.AuditEvent{
			ActorID:     SystemActor.ID,
			Action:      events.ActionBorrowingOverdue,
			BookID:      borrowing.BookID,
			BorrowingID: borrowing.ID,
			OldValue:    map[string]any{"status": models.BorrowingBorrowed},
			NewValue:    map[string]any{"status": models.BorrowingOverdue},
			At:          now,
		})
	}
	return res, nil
}
