// Package dispatch routes a notification record to its providers. It owns
// the sending leg of the lifecycle: claiming the record, fanning tokens out
// per channel, classifying rejections, and settling the final state.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-push-engine/internal/domain"
)

// Adapter is one delivery provider. Send returns a non-nil result even when
// it also returns an error so partial outcomes always reach the aggregate.
type Adapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, n *domain.Notification, tokens []domain.DeviceToken) (*domain.DispatchResult, error)
}

// Outcome summarizes one dispatch attempt.
type Outcome struct {
	NotificationID string                  `json:"notification_id"`
	Status         domain.Status           `json:"status"`
	Accepted       int                     `json:"accepted"`
	Rejected       int                     `json:"rejected"`
	Skipped        bool                    `json:"skipped,omitempty"`
	Reason         string                  `json:"reason,omitempty"`
	Providers      []domain.ProviderReport `json:"providers,omitempty"`
}

type Service interface {
	Dispatch(ctx context.Context, tenantID, notificationID string) (*Outcome, error)
}

type recordStore interface {
	Get(ctx context.Context, tenantID, notificationID string) (*domain.Notification, error)
	BeginSending(ctx context.Context, tenantID, notificationID string) (bool, error)
	Transition(ctx context.Context, tenantID, notificationID string, from []domain.Status, to domain.Status, details []domain.ProviderReport, failReason string) error
}

type tokenSource interface {
	ListActiveFor(ctx context.Context, tenantID, userID string, criteria domain.TokenCriteria) ([]domain.DeviceToken, error)
	MarkInvalid(ctx context.Context, tenantID, token string) error
}

// Archiver persists delivery reports for audit. Archival is best-effort and
// never fails a dispatch.
type Archiver interface {
	Archive(ctx context.Context, n *domain.Notification) (string, error)
}

type service struct {
	records  recordStore
	tokens   tokenSource
	adapters map[domain.Channel]Adapter
	archive  Archiver
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(records recordStore, tokens tokenSource, adapters []Adapter, archive Archiver, providerTimeout time.Duration, logger *slog.Logger) Service {
	byChannel := make(map[domain.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	if providerTimeout <= 0 {
		providerTimeout = 10 * time.Second
	}
	return &service{
		records:  records,
		tokens:   tokens,
		adapters: byChannel,
		archive:  archive,
		timeout:  providerTimeout,
		logger:   logger.With("component", "dispatch"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch runs one delivery attempt for the record. The conditional
// draft/scheduled to sending claim guarantees at most one concurrent attempt
// per record; losing the claim is a skip, not an error.
func (s *service) Dispatch(ctx context.Context, tenantID, notificationID string) (*Outcome, error) {
	n, err := s.records.Get(ctx, tenantID, notificationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if n.ExpiredBy(now) {
		outcome := &Outcome{
			NotificationID: notificationID,
			Status:         n.Status,
			Skipped:        true,
			Reason:         "delivery window closed",
		}
		// Only scheduled rows have an expired edge; anything else keeps its
		// stored status and the outcome reports what is actually persisted.
		if n.Status == domain.StatusScheduled {
			if err := s.records.Transition(ctx, tenantID, notificationID,
				[]domain.Status{domain.StatusScheduled}, domain.StatusExpired, nil, ""); err != nil {
				return nil, err
			}
			outcome.Status = domain.StatusExpired
		}
		return outcome, nil
	}

	claimed, err := s.records.BeginSending(ctx, tenantID, notificationID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &Outcome{
			NotificationID: notificationID,
			Status:         n.Status,
			Skipped:        true,
			Reason:         "already being handled",
		}, nil
	}

	tokens, err := s.collectTokens(ctx, n)
	if err != nil {
		// Lookup failures settle the record so it is not stuck in sending.
		reason := fmt.Sprintf("token lookup: %s", err)
		if settleErr := s.settleFailed(ctx, n, nil, reason); settleErr != nil {
			return nil, settleErr
		}
		return &Outcome{
			NotificationID: notificationID,
			Status:         domain.StatusFailed,
			Reason:         reason,
		}, nil
	}
	if len(tokens) == 0 {
		if err := s.settleFailed(ctx, n, nil, "no eligible device"); err != nil {
			return nil, err
		}
		return &Outcome{
			NotificationID: notificationID,
			Status:         domain.StatusFailed,
			Reason:         "no eligible device",
		}, nil
	}

	reports, accepted, rejected := s.sendAll(ctx, n, tokens)

	outcome := &Outcome{
		NotificationID: notificationID,
		Accepted:       accepted,
		Rejected:       rejected,
		Providers:      reports,
	}
	if accepted > 0 {
		if err := s.records.Transition(ctx, tenantID, notificationID,
			[]domain.Status{domain.StatusSending}, domain.StatusSent, reports, ""); err != nil {
			return nil, err
		}
		outcome.Status = domain.StatusSent
	} else {
		reason := "all providers rejected"
		if err := s.settleFailed(ctx, n, reports, reason); err != nil {
			return nil, err
		}
		outcome.Status = domain.StatusFailed
		outcome.Reason = reason
	}

	s.archiveReport(ctx, n, outcome.Status, reports)

	s.logger.Info("dispatch settled",
		"notification_id", notificationID,
		"status", outcome.Status,
		"accepted", accepted,
		"rejected", rejected,
	)
	return outcome, nil
}

// collectTokens gathers the dispatchable tokens of every recipient, applying
// category preferences per token.
func (s *service) collectTokens(ctx context.Context, n *domain.Notification) ([]domain.DeviceToken, error) {
	criteria := domain.TokenCriteria{Category: n.Category}
	var out []domain.DeviceToken
	for _, userID := range n.RecipientIDs() {
		tokens, err := s.tokens.ListActiveFor(ctx, n.TenantID, userID, criteria)
		if err != nil {
			return nil, err
		}
		out = append(out, tokens...)
	}
	return out, nil
}

// sendAll partitions tokens by channel and runs every matching adapter.
// Provider errors are recorded on the report, never propagated: one failing
// provider must not mask another's acceptance.
func (s *service) sendAll(ctx context.Context, n *domain.Notification, tokens []domain.DeviceToken) ([]domain.ProviderReport, int, int) {
	byChannel := map[domain.Channel][]domain.DeviceToken{}
	for _, t := range tokens {
		byChannel[t.Channel] = append(byChannel[t.Channel], t)
	}

	var reports []domain.ProviderReport
	accepted, rejected := 0, 0
	for channel, batch := range byChannel {
		adapter, ok := s.adapters[channel]
		if !ok {
			s.logger.Warn("no adapter for channel", "channel", channel, "tokens", len(batch))
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
		result, sendErr := adapter.Send(sendCtx, n, batch)
		cancel()

		report := domain.ProviderReport{Provider: channel}
		if result != nil {
			report.Accepted = result.Accepted
			report.Rejected = result.Rejected
			report.Rejections = result.Rejections
			report.Receipt = result.Receipt
			accepted += result.Accepted
			rejected += result.Rejected

			for _, rej := range result.PermanentRejections() {
				if err := s.tokens.MarkInvalid(ctx, n.TenantID, rej.Token); err != nil {
					s.logger.Warn("token invalidation failed", "error", err)
				}
			}
		}
		if sendErr != nil {
			report.Error = sendErr.Error()
			s.logger.Warn("provider send failed",
				"notification_id", n.NotificationID,
				"channel", channel,
				"error", sendErr,
			)
		}
		reports = append(reports, report)
	}
	return reports, accepted, rejected
}

func (s *service) settleFailed(ctx context.Context, n *domain.Notification, reports []domain.ProviderReport, reason string) error {
	return s.records.Transition(ctx, n.TenantID, n.NotificationID,
		[]domain.Status{domain.StatusSending}, domain.StatusFailed, reports, reason)
}

func (s *service) archiveReport(ctx context.Context, n *domain.Notification, status domain.Status, reports []domain.ProviderReport) {
	if s.archive == nil {
		return
	}
	archived := *n
	archived.Status = status
	archived.Details = reports
	if _, err := s.archive.Archive(ctx, &archived); err != nil {
		s.logger.Warn("delivery report archival failed",
			"notification_id", n.NotificationID,
			"error", err,
		)
	}
}
