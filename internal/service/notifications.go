package service

import (
	"context"

	"github.com/google/uuid"

	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/validation"
)

const notificationListLimit = 50

// ListNotifications returns the principal's unread notifications.
func (s *Service) ListNotifications(ctx context.Context, p models.Principal) ([]models.Notification, error) {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.ListNotificationsFor(ctx, p.UserID, p.Role, p.VenueID, notificationListLimit)
}

// CreateNotification stores a staff notification.
func (s *Service) CreateNotification(ctx context.Context, req models.CreateNotificationRequest) (*models.Notification, error) {
	if err := validation.ValidateNotification(&req); err != nil {
		return nil, err
	}
	n := &models.Notification{
		ID:           uuid.NewString(),
		VenueID:      req.VenueID,
		TargetRole:   req.TargetRole,
		TargetUserID: req.TargetUserID,
		Message:      req.Message,
		CreatedAt:    s.now(),
	}
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	if err := s.db.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkNotificationRead flags a notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, cancel := s.db.Bound(ctx)
	defer cancel()
	return s.db.MarkNotificationRead(ctx, id)
}
