// Package inbox lets users read the notifications the core persisted for
// them. Marking as read is the only change a notification ever sees.
package inbox

import (
	"context"

	"libtrack/pkg/apperr"
	"libtrack/pkg/lifecycle"
	"libtrack/pkg/models"
	"libtrack/pkg/store"
)

type Service struct {
	store store.NotificationStore
}

func New(s store.NotificationStore) *Service {
	return &Service{store: s}
}

// List returns userID's notifications, newest first. An empty userID means
// the actor's own inbox.
func (s *Service) List(ctx context.Context, actor lifecycle.Actor, userID string, unreadOnly bool, page store.Page) ([]models.Notification, int64, error) {
	if userID == "" {
		userID = actor.ID
	}
	if !actor.CanActFor(userID) {
		return nil, 0, apperr.New(apperr.KindPermissionDenied, "only staff may read another user's notifications")
	}
	return s.store.ListNotifications(ctx, userID, unreadOnly, page)
}

func (s *Service) MarkRead(ctx context.Context, actor lifecycle.Actor, id string) (*models.Notification, error) {
	n, err := s.store.FindNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(n.UserID) {
		return nil, apperr.New(apperr.KindPermissionDenied, "notification %s belongs to another user", id)
	}
	if n.IsRead {
		return n, nil
	}
	if _, err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}
