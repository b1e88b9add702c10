// Package s3archive persists dispatch delivery reports to S3 for audit.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/go-push-engine/internal/config"
	"github.com/go-push-engine/internal/domain"
)

// Store archives per-dispatch delivery reports as JSON objects.
type Store struct {
	client *s3.Client
	bucket string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(cfg *config.Config) *s3.Client {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}

	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		panic("failed to load AWS config for S3: " + err.Error())
	}

	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...)
}

func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

type report struct {
	NotificationID string                  `json:"notification_id"`
	TenantID       string                  `json:"tenant_id"`
	Status         domain.Status           `json:"status"`
	ArchivedAt     time.Time               `json:"archived_at"`
	Providers      []domain.ProviderReport `json:"providers"`
}

// Archive writes the delivery report for one dispatch attempt. The key layout
// keeps tenants in separate prefixes so lifecycle rules can apply per tenant.
func (s *Store) Archive(ctx context.Context, n *domain.Notification) (string, error) {
	rep := report{
		NotificationID: n.NotificationID,
		TenantID:       n.TenantID,
		Status:         n.Status,
		ArchivedAt:     time.Now().UTC(),
		Providers:      n.Details,
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("marshal delivery report: %w", err)
	}

	key := fmt.Sprintf("delivery-reports/%s/%s.json", n.TenantID, n.NotificationID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
