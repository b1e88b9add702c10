// Package scheduler drives time-based lifecycle changes: picking up due
// scheduled records for dispatch, expiring overdue ones, and cancellation.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-push-engine/internal/application/dispatch"
	"github.com/go-push-engine/internal/domain"
)

type Service interface {
	DueForDispatch(ctx context.Context, now time.Time) ([]domain.Notification, error)
	DispatchDue(ctx context.Context, now time.Time) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Cancel(ctx context.Context, tenantID, notificationID string) error
}

type recordStore interface {
	Get(ctx context.Context, tenantID, notificationID string) (*domain.Notification, error)
	DueForDispatch(ctx context.Context, now time.Time) ([]domain.Notification, error)
	ListExpired(ctx context.Context, now time.Time) ([]domain.Notification, error)
	Transition(ctx context.Context, tenantID, notificationID string, from []domain.Status, to domain.Status, details []domain.ProviderReport, failReason string) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, tenantID, notificationID string) (*dispatch.Outcome, error)
}

type service struct {
	records  recordStore
	dispatch dispatcher
	logger   *slog.Logger
}

func NewService(records recordStore, dispatch dispatcher, logger *slog.Logger) Service {
	return &service{
		records:  records,
		dispatch: dispatch,
		logger:   logger.With("component", "scheduler"),
	}
}

// DueForDispatch lists scheduled records whose window has opened and whose
// expiry has not passed at now.
func (s *service) DueForDispatch(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	return s.records.DueForDispatch(ctx, now)
}

// DispatchDue dispatches every due record and returns how many settled as
// sent. A record failing never stops the batch; the conditional claim in the
// dispatcher keeps overlapping ticks from double-sending.
func (s *service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.records.DueForDispatch(ctx, now)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range due {
		outcome, err := s.dispatch.Dispatch(ctx, n.TenantID, n.NotificationID)
		if err != nil {
			s.logger.Error("scheduled dispatch failed",
				"notification_id", n.NotificationID, "error", err)
			continue
		}
		if outcome != nil && outcome.Status == domain.StatusSent {
			sent++
		}
	}
	return sent, nil
}

// SweepExpired moves overdue scheduled records to expired.
func (s *service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.records.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, n := range overdue {
		err := s.records.Transition(ctx, n.TenantID, n.NotificationID,
			[]domain.Status{domain.StatusScheduled}, domain.StatusExpired, nil, "")
		if err != nil {
			// Lost the race to a dispatcher or another sweeper.
			s.logger.Warn("expiry sweep skipped record",
				"notification_id", n.NotificationID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

// Cancel retires a scheduled record before the scheduler picks it up. Only
// scheduled records can be cancelled; anything further along is already in
// flight or settled.
func (s *service) Cancel(ctx context.Context, tenantID, notificationID string) error {
	n, err := s.records.Get(ctx, tenantID, notificationID)
	if err != nil {
		return err
	}
	if n.Status != domain.StatusScheduled {
		return fmt.Errorf("%w: only scheduled notifications can be cancelled, got %q",
			domain.ErrConflict, n.Status)
	}
	return s.records.Transition(ctx, tenantID, notificationID,
		[]domain.Status{domain.StatusScheduled}, domain.StatusExpired, nil, "cancelled")
}
