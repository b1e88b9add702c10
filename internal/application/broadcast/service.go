// Package broadcast fans one announcement out to an audience selected from
// the token registry, sliced into bounded batches so no single record ever
// carries an unbounded recipient list.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-push-engine/internal/application/dispatch"
	"github.com/go-push-engine/internal/domain"
	"github.com/go-push-engine/internal/pkg/id"
	"github.com/go-push-engine/internal/pkg/validate"
)

// Result reports the fan-out shape of one broadcast.
type Result struct {
	BatchID    string   `json:"batch_id"`
	Audience   int      `json:"audience"`
	Batches    int      `json:"batches"`
	Records    []string `json:"notification_ids"`
	Dispatched int      `json:"dispatched"`
	Failed     int      `json:"failed"`
}

type Service interface {
	Broadcast(ctx context.Context, req domain.BroadcastRequest) (*Result, error)
}

type audienceSource interface {
	ScanAudience(ctx context.Context, tenantID string, criteria domain.TargetCriteria) ([]string, error)
}

type recordCreator interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, tenantID, notificationID string) (*dispatch.Outcome, error)
}

type service struct {
	audience  audienceSource
	records   recordCreator
	dispatch  dispatcher
	batchSize int
	logger    *slog.Logger
}

func NewService(audience audienceSource, records recordCreator, dispatch dispatcher, batchSize int, logger *slog.Logger) Service {
	// A batch is one record, so the size can never exceed what record
	// creation accepts as a recipient list.
	if batchSize <= 0 || batchSize > domain.MaxRecipients {
		batchSize = domain.MaxRecipients
	}
	return &service{
		audience:  audience,
		records:   records,
		dispatch:  dispatch,
		batchSize: batchSize,
		logger:    logger.With("component", "broadcast"),
	}
}

// Broadcast resolves the audience, creates one record per batch of at most
// batchSize recipients, and dispatches the batches concurrently. A failing
// batch never blocks its siblings.
func (s *service) Broadcast(ctx context.Context, req domain.BroadcastRequest) (*Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBadRequest, err)
	}

	userIDs, err := s.audience.ScanAudience(ctx, req.TenantID, req.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users match target criteria", domain.ErrNotFound)
	}

	batchID := id.New()
	result := &Result{BatchID: batchID, Audience: len(userIDs)}

	for start := 0; start < len(userIDs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		n, err := s.records.Create(ctx, domain.CreateNotificationRequest{
			TenantID:   req.TenantID,
			Recipients: userIDs[start:end],
			Type:       req.Type,
			Category:   req.Category,
			Priority:   req.Priority,
			Title:      req.Title,
			Body:       req.Body,
			Data:       req.Data,
			ImageURL:   req.ImageURL,
			ActionURL:  req.ActionURL,
			BatchID:    batchID,
			CampaignID: req.CampaignID,
			ExpiresAt:  req.ExpiresAt,
			CreatedBy:  req.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create batch record: %w", err)
		}
		result.Records = append(result.Records, n.NotificationID)
	}
	result.Batches = len(result.Records)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, notificationID := range result.Records {
		wg.Add(1)
		go func(nid string) {
			defer wg.Done()
			if _, err := s.dispatch.Dispatch(ctx, req.TenantID, nid); err != nil {
				s.logger.Error("batch dispatch failed",
					"batch_id", batchID,
					"notification_id", nid,
					"error", err,
				)
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			result.Dispatched++
			mu.Unlock()
		}(notificationID)
	}
	wg.Wait()

	s.logger.Info("broadcast fanned out",
		"batch_id", batchID,
		"audience", result.Audience,
		"batches", result.Batches,
		"dispatched", result.Dispatched,
		"failed", result.Failed,
	)
	return result, nil
}
