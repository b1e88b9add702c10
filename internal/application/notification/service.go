// Package notification owns the notification record store: creation,
// lifecycle transitions, the read model, and interaction tracking.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-push-engine/internal/domain"
	"github.com/go-push-engine/internal/pkg/id"
	"github.com/go-push-engine/internal/pkg/validate"
)

type Service interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	Get(ctx context.Context, tenantID, userID, notificationID string) (*domain.Notification, error)
	List(ctx context.Context, tenantID, userID string, q domain.ListNotificationsQuery) ([]domain.Notification, string, error)
	Transition(ctx context.Context, tenantID, notificationID string, to domain.Status) error
	MarkDelivered(ctx context.Context, tenantID, notificationID string) error
	RecordInteraction(ctx context.Context, tenantID, userID, notificationID string, kind domain.InteractionKind) error
}

type recordStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, tenantID, notificationID string) (*domain.Notification, error)
	Transition(ctx context.Context, tenantID, notificationID string, from []domain.Status, to domain.Status, details []domain.ProviderReport, failReason string) error
	MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error)
	RecordClick(ctx context.Context, tenantID, userID, notificationID string) (bool, error)
	ListByUser(ctx context.Context, tenantID, userID string, q domain.ListNotificationsQuery) ([]domain.Notification, string, error)
}

type service struct {
	repo   recordStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo recordStore, logger *slog.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger.With("component", "notification"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new record. A future scheduled_at lands the row in
// scheduled for the scheduler to pick up; otherwise it starts as a draft
// awaiting an explicit dispatch.
func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBadRequest, err)
	}
	if req.UserID != "" && len(req.Recipients) > 0 {
		return nil, fmt.Errorf("%w: user_id and recipients are mutually exclusive", domain.ErrBadRequest)
	}
	if !domain.ValidCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrBadRequest, req.Category)
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	if !domain.ValidPriority(req.Priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrBadRequest, req.Priority)
	}

	now := s.now()
	status := domain.StatusDraft
	if req.ScheduledAt != nil {
		// The schedule GSI compares these as strings, so they are stored at
		// whole-second precision to keep the ordering sortable.
		at := req.ScheduledAt.UTC().Truncate(time.Second)
		req.ScheduledAt = &at
		if !at.After(now) {
			return nil, &domain.InvalidScheduleError{ScheduledAt: at}
		}
		status = domain.StatusScheduled
	}
	if req.ExpiresAt != nil {
		at := req.ExpiresAt.UTC().Truncate(time.Second)
		req.ExpiresAt = &at
		if !at.After(now) {
			return nil, fmt.Errorf("%w: expires_at is in the past", domain.ErrBadRequest)
		}
	}

	n := &domain.Notification{
		NotificationID: id.New(),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		Recipients:     req.Recipients,
		BatchID:        req.BatchID,
		CampaignID:     req.CampaignID,
		Type:           req.Type,
		Category:       req.Category,
		Priority:       req.Priority,
		Title:          req.Title,
		Body:           req.Body,
		Data:           req.Data,
		ImageURL:       req.ImageURL,
		Icon:           req.Icon,
		Sound:          req.Sound,
		ActionURL:      req.ActionURL,
		Actions:        req.Actions,
		Refs:           req.Refs,
		Status:         status,
		ScheduledAt:    req.ScheduledAt,
		ExpiresAt:      req.ExpiresAt,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info("notification created",
		"notification_id", n.NotificationID,
		"status", n.Status,
		"category", n.Category,
	)
	return n, nil
}

// Get returns the record only when the caller is one of its recipients.
// Non-recipients get ErrNotFound so the lookup does not leak existence.
func (s *service) Get(ctx context.Context, tenantID, userID, notificationID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, tenantID, notificationID)
	if err != nil {
		return nil, err
	}
	if !n.IsRecipient(userID) {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return n, nil
}

func (s *service) List(ctx context.Context, tenantID, userID string, q domain.ListNotificationsQuery) ([]domain.Notification, string, error) {
	if q.Category != "" && !domain.ValidCategory(q.Category) {
		return nil, "", fmt.Errorf("%w: unknown category %q", domain.ErrBadRequest, q.Category)
	}
	return s.repo.ListByUser(ctx, tenantID, userID, q)
}

// Transition moves the record along one lifecycle edge. The legality check
// runs against the loaded row first so callers get a typed error naming both
// states; the store then re-checks the source state atomically.
func (s *service) Transition(ctx context.Context, tenantID, notificationID string, to domain.Status) error {
	n, err := s.repo.Get(ctx, tenantID, notificationID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(n.Status, to) {
		return &domain.StateTransitionError{From: n.Status, To: to}
	}
	return s.repo.Transition(ctx, tenantID, notificationID, []domain.Status{n.Status}, to, nil, "")
}

// MarkDelivered records the provider's delivery confirmation.
func (s *service) MarkDelivered(ctx context.Context, tenantID, notificationID string) error {
	return s.repo.Transition(ctx, tenantID, notificationID,
		[]domain.Status{domain.StatusSent}, domain.StatusDelivered, nil, "")
}

// RecordInteraction handles read and click events from the client. Only a
// recipient of the record may interact with it; anyone else gets ErrNotFound.
// Reads are idempotent; a second read on the same record is a no-op, not an
// error. Clicks accumulate.
func (s *service) RecordInteraction(ctx context.Context, tenantID, userID, notificationID string, kind domain.InteractionKind) error {
	if kind != domain.InteractionRead && kind != domain.InteractionClick {
		return fmt.Errorf("%w: unknown interaction %q", domain.ErrBadRequest, kind)
	}
	if _, err := s.Get(ctx, tenantID, userID, notificationID); err != nil {
		return err
	}
	if kind == domain.InteractionRead {
		_, err := s.repo.MarkRead(ctx, tenantID, userID, notificationID)
		return err
	}
	found, err := s.repo.RecordClick(ctx, tenantID, userID, notificationID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: notification %q", domain.ErrNotFound, notificationID)
	}
	return nil
}
