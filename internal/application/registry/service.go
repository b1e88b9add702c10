// Package registry manages the device token registry: registration,
// preference updates, and the eligible-token lookups the dispatcher uses.
package registry

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
	Register(ctx context.Context, req domain.RegisterTokenRequest) (*domain.DeviceToken, error)
	Deactivate(ctx context.Context, tenantID, userID, deviceID string) error
	UpdatePreferences(ctx context.Context, tenantID, userID, deviceID string, prefs map[domain.Category]bool, enabled bool) error
	ListActiveFor(ctx context.Context, tenantID, userID string, criteria domain.TokenCriteria) ([]domain.DeviceToken, error)
	MarkInvalid(ctx context.Context, tenantID, token string) error
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.DeviceToken) error
	DeactivateByUserDevice(ctx context.Context, tenantID, userID, deviceID string) (bool, error)
	UpdatePreferences(ctx context.Context, tenantID, userID, deviceID string, prefs map[domain.Category]bool, enabled bool) (bool, error)
	ListActiveByUser(ctx context.Context, tenantID, userID string) ([]domain.DeviceToken, error)
	MarkInvalidByToken(ctx context.Context, tenantID, token string) error
}

// Cache is a read-aside cache over ListActiveByUser. Writes invalidate.
type Cache interface {
	Get(ctx context.Context, tenantID, userID string) ([]domain.DeviceToken, bool)
	Set(ctx context.Context, tenantID, userID string, tokens []domain.DeviceToken)
	Invalidate(ctx context.Context, tenantID, userID string)
}

type service struct {
	repo   tokenStore
	cache  Cache
	logger *slog.Logger
}

func NewService(repo tokenStore, cache Cache, logger *slog.Logger) Service {
	return &service{repo: repo, cache: cache, logger: logger.With("component", "registry")}
}

// Register upserts the token for (user, device). Re-registering the same
// device replaces the previous token so a device never carries two live
// registrations.
func (s *service) Register(ctx context.Context, req domain.RegisterTokenRequest) (*domain.DeviceToken, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBadRequest, err)
	}
	if !domain.ValidChannel(req.Channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", domain.ErrBadRequest, req.Channel)
	}
	if !domain.ValidPlatform(req.Platform) {
		return nil, fmt.Errorf("%w: unknown platform %q", domain.ErrBadRequest, req.Platform)
	}

	if _, err := s.repo.DeactivateByUserDevice(ctx, req.TenantID, req.UserID, req.DeviceID); err != nil {
		return nil, fmt.Errorf("retire previous token: %w", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := time.Now().UTC()
	token := &domain.DeviceToken{
		TokenID:       id.New(),
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		DeviceID:      req.DeviceID,
		UserDevice:    domain.UserDeviceKey(req.UserID, req.DeviceID),
		Token:         req.Token,
		Channel:       req.Channel,
		Platform:      req.Platform,
		Locale:        req.Locale,
		Timezone:      req.Timezone,
		UserRole:      req.UserRole,
		Enabled:       enabled,
		CategoryPrefs: req.CategoryPrefs,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Put(ctx, token); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, req.TenantID, req.UserID)
	}
	s.logger.Info("token registered",
		"user_id", req.UserID, "device_id", req.DeviceID,
		"channel", req.Channel, "platform", req.Platform,
	)
	return token, nil
}

func (s *service) Deactivate(ctx context.Context, tenantID, userID, deviceID string) error {
	found, err := s.repo.DeactivateByUserDevice(ctx, tenantID, userID, deviceID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no active token for device %q", domain.ErrNotFound, deviceID)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenantID, userID)
	}
	return nil
}

func (s *service) UpdatePreferences(ctx context.Context, tenantID, userID, deviceID string, prefs map[domain.Category]bool, enabled bool) error {
	for c := range prefs {
		if !domain.ValidCategory(c) {
			return fmt.Errorf("%w: unknown category %q", domain.ErrBadRequest, c)
		}
	}
	found, err := s.repo.UpdatePreferences(ctx, tenantID, userID, deviceID, prefs, enabled)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no active token for device %q", domain.ErrNotFound, deviceID)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenantID, userID)
	}
	return nil
}

// ListActiveFor returns the user's dispatchable tokens after applying the
// criteria and per-token preferences. The raw active set is cache-backed;
// filtering happens on the way out so one cache entry serves every category.
func (s *service) ListActiveFor(ctx context.Context, tenantID, userID string, criteria domain.TokenCriteria) ([]domain.DeviceToken, error) {
	var tokens []domain.DeviceToken
	hit := false
	if s.cache != nil {
		tokens, hit = s.cache.Get(ctx, tenantID, userID)
	}
	if !hit {
		var err error
		tokens, err = s.repo.ListActiveByUser(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, tenantID, userID, tokens)
		}
	}

	out := make([]domain.DeviceToken, 0, len(tokens))
	for _, t := range tokens {
		if !t.Active || !t.Enabled {
			continue
		}
		if criteria.Platform != "" && t.Platform != criteria.Platform {
			continue
		}
		if criteria.Locale != "" && t.Locale != "" && t.Locale != criteria.Locale {
			continue
		}
		if criteria.Category != "" && !t.AllowsCategory(criteria.Category) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// MarkInvalid retires a token the provider rejected permanently.
func (s *service) MarkInvalid(ctx context.Context, tenantID, token string) error {
	if err := s.repo.MarkInvalidByToken(ctx, tenantID, token); err != nil {
		return err
	}
	s.logger.Info("token invalidated by provider rejection", "tenant_id", tenantID)
	return nil
}
