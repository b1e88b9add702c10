// Package onesignal sends notifications through the OneSignal REST API in
// player-id style: one request per batch of addresses, an aggregate accepted
// count in the response, and invalid player ids listed for deregistration.
package onesignal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-push-engine/internal/domain"
)

// Adapter delivers to the onesignal channel.
type Adapter struct {
	appID    string
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewAdapter(appID, apiKey, endpoint string, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		appID:    appID,
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "onesignal-adapter"),
	}
}

func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelOneSignal
}

type createNotificationRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]string `json:"data,omitempty"`
	URL              string            `json:"url,omitempty"`
	BigPicture       string            `json:"big_picture,omitempty"`
	Priority         int               `json:"priority,omitempty"`
}

type createNotificationResponse struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
	Errors     struct {
		InvalidPlayerIDs []string `json:"invalid_player_ids"`
	} `json:"errors"`
}

// Send posts one batch to OneSignal. The raw response body is kept on the
// result for audit logging.
func (a *Adapter) Send(ctx context.Context, n *domain.Notification, tokens []domain.DeviceToken) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{Provider: domain.ChannelOneSignal}
	if len(tokens) == 0 {
		return result, nil
	}

	playerIDs := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Token != "" {
			playerIDs = append(playerIDs, t.Token)
		}
	}

	reqBody := createNotificationRequest{
		AppID:            a.appID,
		IncludePlayerIDs: playerIDs,
		Headings:         map[string]string{"en": n.Title},
		Contents:         map[string]string{"en": n.Body},
		Data:             n.Data,
		URL:              n.ActionURL,
		BigPicture:       n.ImageURL,
	}
	if n.Priority == domain.PriorityHigh || n.Priority == domain.PriorityUrgent {
		reqBody.Priority = 10
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return result, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/notifications", bytes.NewReader(body))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		// Transport failure: leave every player id for a later attempt.
		for _, pid := range playerIDs {
			result.Rejections = append(result.Rejections, domain.Rejection{
				Token: pid, Reason: err.Error(), Permanent: false,
			})
		}
		result.Rejected = len(playerIDs)
		return result, fmt.Errorf("onesignal transport: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("onesignal read response: %w", err)
	}
	result.Receipt = string(raw)

	if resp.StatusCode >= 400 {
		for _, pid := range playerIDs {
			result.Rejections = append(result.Rejections, domain.Rejection{
				Token: pid, Reason: fmt.Sprintf("status %d", resp.StatusCode), Permanent: false,
			})
		}
		result.Rejected = len(playerIDs)
		return result, fmt.Errorf("onesignal: received status %d", resp.StatusCode)
	}

	var parsed createNotificationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return result, fmt.Errorf("onesignal decode response: %w", err)
	}

	result.Accepted = parsed.Recipients
	for _, pid := range parsed.Errors.InvalidPlayerIDs {
		result.Rejections = append(result.Rejections, domain.Rejection{
			Token: pid, Reason: "invalid_player_id", Permanent: true,
		})
	}
	result.Rejected = len(result.Rejections)

	a.logger.Info("onesignal batch dispatched",
		"notification_id", n.NotificationID,
		"accepted", result.Accepted,
		"invalid", len(parsed.Errors.InvalidPlayerIDs),
	)
	return result, nil
}
