// Package fcm sends notifications through Firebase Cloud Messaging using
// token multicast. Per-token responses are classified into permanent and
// transient rejections so the dispatch layer can deregister dead tokens.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/go-push-engine/internal/domain"
	"google.golang.org/api/option"
)

// MessagingClient is the subset of the Firebase Messaging API the adapter
// uses. *messaging.Client satisfies it; tests substitute a mock.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Adapter delivers to the fcm channel.
type Adapter struct {
	client  MessagingClient
	timeout time.Duration
	logger  *slog.Logger
}

func NewAdapter(client MessagingClient, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		client:  client,
		timeout: timeout,
		logger:  logger.With("component", "fcm-adapter"),
	}
}

// NewMessagingClient builds the concrete Firebase client from a
// service-account credentials file.
func NewMessagingClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return client, nil
}

func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelFCM
}

// Send multicasts the notification to the given tokens. The returned result
// is non-nil even on transport failure so the router can aggregate partial
// outcomes across channels.
func (a *Adapter) Send(ctx context.Context, n *domain.Notification, tokens []domain.DeviceToken) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{Provider: domain.ChannelFCM}
	if len(tokens) == 0 {
		return result, nil
	}

	addrs := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Token != "" {
			addrs = append(addrs, t.Token)
		}
	}

	msg := a.buildMessage(n, addrs)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	br, err := a.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		// Whole-batch transport failure: every token is a transient reject.
		for _, addr := range addrs {
			result.Rejections = append(result.Rejections, domain.Rejection{
				Token: addr, Reason: err.Error(), Permanent: false,
			})
		}
		result.Rejected = len(addrs)
		return result, fmt.Errorf("fcm transport: %w", err)
	}

	result.Accepted = br.SuccessCount
	result.Rejected = br.FailureCount
	for idx, resp := range br.Responses {
		if resp.Success {
			continue
		}
		permanent := messaging.IsRegistrationTokenNotRegistered(resp.Error) ||
			messaging.IsInvalidArgument(resp.Error)
		reason := "unknown"
		if resp.Error != nil {
			reason = resp.Error.Error()
		}
		result.Rejections = append(result.Rejections, domain.Rejection{
			Token:     addrs[idx],
			Reason:    reason,
			Permanent: permanent,
		})
	}
	result.Receipt = fmt.Sprintf("success:%d failure:%d", br.SuccessCount, br.FailureCount)

	a.logger.Info("fcm batch dispatched",
		"notification_id", n.NotificationID,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return result, nil
}

func (a *Adapter) buildMessage(n *domain.Notification, addrs []string) *messaging.MulticastMessage {
	data := make(map[string]string, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	data["notification_id"] = n.NotificationID
	if n.ActionURL != "" {
		data["action_url"] = n.ActionURL
	}

	androidPriority := "normal"
	if n.Priority == domain.PriorityHigh || n.Priority == domain.PriorityUrgent {
		androidPriority = "high"
	}

	return &messaging.MulticastMessage{
		Tokens: addrs,
		Data:   data,
		Notification: &messaging.Notification{
			Title:    n.Title,
			Body:     n.Body,
			ImageURL: n.ImageURL,
		},
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
			Notification: &messaging.AndroidNotification{
				Sound: n.Sound,
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Body,
				Icon:  n.Icon,
			},
		},
	}
}
