// Package events carries the audit and notification records emitted by the
// circulation core to their sinks.
package events

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ActionBookBorrowed       = "BOOK_BORROWED"
	ActionBookReturned       = "BOOK_RETURNED"
	ActionBorrowingExtended  = "BORROWING_EXTENDED"
	ActionBorrowingOverdue   = "BORROWING_OVERDUE"
	ActionBookCreated        = "BOOK_CREATED"
	ActionBookDeleted        = "BOOK_DELETED"
	ActionBookCopiesAdjusted = "BOOK_COPIES_ADJUSTED"
	ActionBookStatusChanged  = "BOOK_STATUS_CHANGED"
	ActionBookStatusSynced   = "BOOK_STATUS_SYNCED"
	ActionUserCreated        = "USER_CREATED"
	ActionUserStatusChanged  = "USER_STATUS_CHANGED"
	ActionShelfCreated       = "SHELF_CREATED"
	ActionCategoryCreated    = "CATEGORY_CREATED"
)

// AuditEvent describes one change made by an actor. OldValue and NewValue
// are stored as JSON.
type AuditEvent struct {
	ActorID     string
	Action      string
	BookID      string
	BorrowingID string
	OldValue    any
	NewValue    any
	At          time.Time
}

type NotificationEvent struct {
	UserID  string
	BookID  string
	Type    models.NotificationType
	Title   string
	Message string
	At      time.Time
}

type AuditSink interface {
	RecordAudit(ctx context.Context, e AuditEvent) error
}

type NotificationSink interface {
	Notify(ctx context.Context, e NotificationEvent) error
}

// StoreSink persists events as AuditLog and Notification rows.
type StoreSink struct {
	store store.EntityStore
}

func NewStoreSink(s store.EntityStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) RecordAudit(ctx context.Context, e AuditEvent) error {
	entry := &models.AuditLog{
		ActorUserID: e.ActorID,
		BookID:      optional(e.BookID),
		BorrowingID: optional(e.BorrowingID),
		Action:      e.Action,
		CreatedAt:   e.At,
	}

	var err error
	if entry.OldValue, err = encode(e.OldValue); err != nil {
		return fmt.Errorf("encode old value of %s: %w", e.Action, err)
	}
	if entry.NewValue, err = encode(e.NewValue); err != nil {
		return fmt.Errorf("encode new value of %s: %w", e.Action, err)
	}
	return s.store.CreateAuditLog(ctx, entry)
}

func (s *StoreSink) Notify(ctx context.Context, e NotificationEvent) error {
	return s.store.CreateNotification(ctx, &models.Notification{
		UserID:    e.UserID,
		BookID:    optional(e.BookID),
		Type:      e.Type,
		Title:     e.Title,
		Message:   e.Message,
		CreatedAt: e.At,
	})
}

func encode(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
