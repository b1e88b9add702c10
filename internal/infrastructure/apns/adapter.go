// Package apns delivers notifications to iOS devices through AWS SNS
// platform endpoints. Each device token registers an SNS endpoint ARN,
// stored as the token value, and delivery is a per-endpoint Publish.
package apns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/go-push-engine/internal/domain"
)

// Publisher is the slice of the SNS client the adapter needs.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Adapter struct {
	client  Publisher
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(ctx context.Context, region string) (*sns.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(awsCfg), nil
}

func NewAdapter(client Publisher, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		client:  client,
		timeout: timeout,
		logger:  logger.With("component", "apns-adapter"),
	}
}

func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelAPNS
}

type apsPayload struct {
	Alert struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"alert"`
	Sound string `json:"sound,omitempty"`
}

type apnsMessage struct {
	APS       apsPayload        `json:"aps"`
	Data      map[string]string `json:"data,omitempty"`
	ActionURL string            `json:"action_url,omitempty"`
}

func buildMessage(n *domain.Notification) (string, error) {
	var msg apnsMessage
	msg.APS.Alert.Title = n.Title
	msg.APS.Alert.Body = n.Body
	if n.Priority == domain.PriorityHigh || n.Priority == domain.PriorityUrgent {
		msg.APS.Sound = "default"
	}
	msg.Data = n.Data
	msg.ActionURL = n.ActionURL

	inner, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	// SNS platform endpoints expect the APNS payload nested as a string
	// inside a protocol-keyed envelope.
	envelope := map[string]string{
		"default": n.Body,
		"APNS":    string(inner),
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Send publishes the notification to every endpoint in tokens. Disabled or
// malformed endpoints are rejected permanently so the registry can retire
// them; everything else stays retryable.
func (a *Adapter) Send(ctx context.Context, n *domain.Notification, tokens []domain.DeviceToken) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{Provider: domain.ChannelAPNS}
	if len(tokens) == 0 {
		return result, nil
	}

	message, err := buildMessage(n)
	if err != nil {
		for _, t := range tokens {
			result.Rejections = append(result.Rejections, domain.Rejection{
				Token: t.Token, Reason: err.Error(), Permanent: false,
			})
		}
		result.Rejected = len(tokens)
		return result, fmt.Errorf("apns build message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	structure := "json"
	for _, t := range tokens {
		endpoint := t.Token
		_, pubErr := a.client.Publish(ctx, &sns.PublishInput{
			TargetArn:        &endpoint,
			Message:          &message,
			MessageStructure: &structure,
		})
		if pubErr == nil {
			result.Accepted++
			continue
		}
		result.Rejections = append(result.Rejections, domain.Rejection{
			Token:     endpoint,
			Reason:    pubErr.Error(),
			Permanent: isPermanent(pubErr),
		})
	}
	result.Rejected = len(result.Rejections)
	result.Receipt = fmt.Sprintf("published:%d failed:%d", result.Accepted, result.Rejected)

	a.logger.Info("apns batch dispatched",
		"notification_id", n.NotificationID,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return result, nil
}

// isPermanent reports whether the publish failure means the endpoint will
// never accept a message again.
func isPermanent(err error) bool {
	var disabled *types.EndpointDisabledException
	if errors.As(err, &disabled) {
		return true
	}
	var invalid *types.InvalidParameterException
	if errors.As(err, &invalid) {
		return true
	}
	var notFound *types.NotFoundException
	return errors.As(err, &notFound)
}
