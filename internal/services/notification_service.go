package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/apperr"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// NotificationService exposes the in-app notification and timeline
// read surfaces.
type NotificationService struct {
	store store.Store
}

// NewNotificationService creates a new notification service.
func NewNotificationService(st store.Store) *NotificationService {
	return &NotificationService{store: st}
}

// ListMine returns the caller's notifications, newest first.
func (s *NotificationService) ListMine(ctx context.Context, actorID primitive.ObjectID) ([]models.Notification, error) {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return nil, err
	}
	return s.store.NotificationsByUser(ctx, actorID)
}

// MarkRead marks one of the caller's notifications as read. Marking
// someone else's notification reports not found.
func (s *NotificationService) MarkRead(ctx context.Context, actorID, notificationID primitive.ObjectID) error {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, notificationID, actorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("notification")
		}
		return err
	}
	return nil
}

// UnreadCount returns the caller's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, actorID primitive.ObjectID) (int64, error) {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return 0, err
	}
	return s.store.CountUnreadNotifications(ctx, actorID)
}

// MyTimeline returns the caller's own activity for the last days,
// optionally filtered by action type.
func (s *NotificationService) MyTimeline(ctx context.Context, actorID primitive.ObjectID, days int, actionType string) ([]models.TimelineEntry, error) {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return nil, err
	}
	return s.store.ListTimeline(ctx, timelineFilter(&actorID, days, actionType))
}

// TeamTimeline returns everyone's activity. Managers and admins only.
func (s *NotificationService) TeamTimeline(ctx context.Context, actorID primitive.ObjectID, days int, actionType string) ([]models.TimelineEntry, error) {
	if _, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListTimeline(ctx, timelineFilter(nil, days, actionType))
}

func timelineFilter(userID *primitive.ObjectID, days int, actionType string) store.TimelineFilter {
	if days <= 0 {
		days = 7
	}
	return store.TimelineFilter{
		UserID:     userID,
		ActionType: actionType,
		Since:      time.Now().UTC().AddDate(0, 0, -days),
		Limit:      500,
	}
}
