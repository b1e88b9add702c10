package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-push-engine/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the notifications
// table. All state mutations are row-scoped conditional updates so concurrent
// dispatches on the same id resolve to exactly one winner.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, tenantID, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	if n.TenantID != tenantID {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return &n, nil
}

// BeginSending performs the atomic draft|scheduled → sending compare-and-set.
// It returns false with no error when the row is not in a dispatchable state,
// which a concurrent caller must treat as "already being handled".
func (r *NotificationRepo) BeginSending(ctx context.Context, tenantID, notificationID string) (bool, error) {
	now := time.Now().UTC()
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("notification_id", notificationID),
		UpdateExpression: aws.String("SET #st = :sending, #ua = :now"),
		ConditionExpression: aws.String(
			"#tid = :tid AND (#st = :draft OR #st = :scheduled)",
		),
		ExpressionAttributeNames: map[string]string{
			"#st":  fieldStatus,
			"#ua":  fieldUpdatedAt,
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sending":   &types.AttributeValueMemberS{Value: string(domain.StatusSending)},
			":draft":     &types.AttributeValueMemberS{Value: string(domain.StatusDraft)},
			":scheduled": &types.AttributeValueMemberS{Value: string(domain.StatusScheduled)},
			":tid":       &types.AttributeValueMemberS{Value: tenantID},
			":now":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Transition moves the row along one lifecycle edge, guarded by a condition
// on the current status so a lost race surfaces as ErrConflict rather than a
// silent double write. It also stamps the timestamp that edge owns.
func (r *NotificationRepo) Transition(ctx context.Context, tenantID, notificationID string, from []domain.Status, to domain.Status, details []domain.ProviderReport, failReason string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		fieldStatus:    string(to),
		fieldUpdatedAt: now.Format(time.RFC3339Nano),
	}
	switch to {
	case domain.StatusSent:
		updates[fieldSentAt] = now.Format(time.RFC3339Nano)
	case domain.StatusDelivered:
		updates[fieldDeliveredAt] = now.Format(time.RFC3339Nano)
	case domain.StatusRead:
		updates[fieldReadAt] = now.Format(time.RFC3339Nano)
	}
	if details != nil {
		updates[fieldDetails] = details
	}
	if failReason != "" {
		updates[fieldFailReason] = failReason
	}

	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}

	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = string(s)
	}
	placeholders := statusList(ue.Values, fromStatuses...)
	ue.Names["#st"] = fieldStatus
	ue.Names["#tid"] = fieldTenantID
	ue.Values[":tid"] = &types.AttributeValueMemberS{Value: tenantID}
	cond := fmt.Sprintf("#tid = :tid AND #st IN (%s)", strings.Join(placeholders, ", "))

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("notification %s not in %v: %w", notificationID, from, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// MarkRead sets read_at once; repeat calls are no-ops so the first read
// timestamp survives. A read on a row still in `sent` implies delivery, so
// delivered_at is backfilled to keep sent_at ≤ delivered_at ≤ read_at. The
// condition also pins the row to the interacting user so one recipient can
// never mark another's notification.
func (r *NotificationRepo) MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error) {
	now := time.Now().UTC()
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("notification_id", notificationID),
		UpdateExpression:    aws.String("SET #ra = :now, #da = if_not_exists(#da, :now), #st = :read, #ua = :now"),
		ConditionExpression: aws.String("#tid = :tid AND (user_id = :uid OR contains(recipients, :uid)) AND attribute_not_exists(#ra) AND (#st = :sent OR #st = :delivered)"),
		ExpressionAttributeNames: map[string]string{
			"#ra":  fieldReadAt,
			"#da":  fieldDeliveredAt,
			"#st":  fieldStatus,
			"#ua":  fieldUpdatedAt,
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":read":      &types.AttributeValueMemberS{Value: string(domain.StatusRead)},
			":sent":      &types.AttributeValueMemberS{Value: string(domain.StatusSent)},
			":delivered": &types.AttributeValueMemberS{Value: string(domain.StatusDelivered)},
			":tid":       &types.AttributeValueMemberS{Value: tenantID},
			":uid":       &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RecordClick increments click_count and flags the row as clicked. Click
// tracking is independent of the read/delivery lifecycle. The condition pins
// the row to the interacting user, as in MarkRead.
func (r *NotificationRepo) RecordClick(ctx context.Context, tenantID, userID, notificationID string) (bool, error) {
	now := time.Now().UTC()
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("notification_id", notificationID),
		UpdateExpression:    aws.String("SET #cl = :true, #ua = :now ADD #cc :one"),
		ConditionExpression: aws.String("#tid = :tid AND (user_id = :uid OR contains(recipients, :uid))"),
		ExpressionAttributeNames: map[string]string{
			"#cl":  fieldClicked,
			"#cc":  fieldClickCount,
			"#ua":  fieldUpdatedAt,
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":now":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":tid":  &types.AttributeValueMemberS{Value: tenantID},
			":uid":  &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListByUser pages a user's notifications newest-first via the
// user_id-created_at GSI, optionally filtered by category and unread state.
func (r *NotificationRepo) ListByUser(ctx context.Context, tenantID, userID string, q domain.ListNotificationsQuery) ([]domain.Notification, string, error) {
	filter := "#tid = :tid"
	names := map[string]string{"#tid": fieldTenantID}
	values := map[string]types.AttributeValue{
		":uid": &types.AttributeValueMemberS{Value: userID},
		":tid": &types.AttributeValueMemberS{Value: tenantID},
	}
	if q.Category != "" {
		filter += " AND category = :cat"
		values[":cat"] = &types.AttributeValueMemberS{Value: string(q.Category)}
	}
	if q.UnreadOnly {
		filter += " AND attribute_not_exists(#ra)"
		names["#ra"] = fieldReadAt
	}

	limit := int32(q.Limit)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("user_id-created_at-index"),
		KeyConditionExpression:    aws.String("user_id = :uid"),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	}
	if q.Cursor != "" {
		startKey, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, "", err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, "", err
	}
	next := ""
	if out.LastEvaluatedKey != nil {
		next = encodeCursor(out.LastEvaluatedKey)
	}
	return notifications, next, nil
}

// DueForDispatch returns scheduled rows whose window has opened and not yet
// closed, via the status-scheduled_at GSI. The key comparison is lexicographic
// on the stored strings; schedule timestamps are written at whole-second
// precision, and now must be formatted the same way or fractional digits break
// the ordering at second boundaries.
func (r *NotificationRepo) DueForDispatch(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	nowStr := now.UTC().Truncate(time.Second).Format(time.RFC3339)
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("status-scheduled_at-index"),
		KeyConditionExpression: aws.String("#st = :scheduled AND scheduled_at <= :now"),
		FilterExpression:       aws.String("attribute_not_exists(expires_at) OR expires_at > :now"),
		ExpressionAttributeNames: map[string]string{
			"#st": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scheduled": &types.AttributeValueMemberS{Value: string(domain.StatusScheduled)},
			":now":       &types.AttributeValueMemberS{Value: nowStr},
		},
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListExpired returns scheduled rows whose delivery window closed before now.
// As in DueForDispatch, now is truncated to seconds to match the stored
// string format.
func (r *NotificationRepo) ListExpired(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	nowStr := now.UTC().Truncate(time.Second).Format(time.RFC3339)
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("status-scheduled_at-index"),
		KeyConditionExpression: aws.String("#st = :scheduled"),
		FilterExpression:       aws.String("attribute_exists(expires_at) AND expires_at <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#st": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scheduled": &types.AttributeValueMemberS{Value: string(domain.StatusScheduled)},
			":now":       &types.AttributeValueMemberS{Value: nowStr},
		},
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListByBatch returns every row sharing a broadcast batch id.
func (r *NotificationRepo) ListByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("batch_id-index"),
		KeyConditionExpression: aws.String("batch_id = :bid"),
		FilterExpression:       aws.String("#tid = :tid"),
		ExpressionAttributeNames: map[string]string{
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bid": &types.AttributeValueMemberS{Value: batchID},
			":tid": &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Cursors round-trip the LastEvaluatedKey through an opaque base64 token so
// clients can't forge or depend on its shape.
func encodeCursor(key map[string]types.AttributeValue) string {
	flat := make(map[string]string, len(key))
	for k, v := range key {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			flat[k] = s.Value
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	key := make(map[string]types.AttributeValue, len(flat))
	for k, v := range flat {
		key[k] = &types.AttributeValueMemberS{Value: v}
	}
	return key, nil
}
