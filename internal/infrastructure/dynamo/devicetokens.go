package dynamo

import (
	"context"
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

// DeviceTokenRepo provides typed DynamoDB operations for the device_tokens
// table. Rows are deactivated, never deleted, so superseded and invalidated
// tokens remain for audit.
type DeviceTokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewDeviceTokenRepo(client *dynamodb.Client, tableName string) *DeviceTokenRepo {
	return &DeviceTokenRepo{client: client, tableName: tableName}
}

func (r *DeviceTokenRepo) Put(ctx context.Context, t *domain.DeviceToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal device token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// GetActiveByUserDevice returns the single active token for a (user, device)
// pair via the user_device GSI, or ErrNotFound.
func (r *DeviceTokenRepo) GetActiveByUserDevice(ctx context.Context, tenantID, userID, deviceID string) (*domain.DeviceToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_device-index"),
		KeyConditionExpression: aws.String("user_device = :ud"),
		FilterExpression:       aws.String("#act = :true AND #tid = :tid"),
		ExpressionAttributeNames: map[string]string{
			"#act": fieldActive,
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ud":   &types.AttributeValueMemberS{Value: domain.UserDeviceKey(userID, deviceID)},
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":tid":  &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("active token for device %s: %w", deviceID, domain.ErrNotFound)
	}
	var t domain.DeviceToken
	if err := attributevalue.UnmarshalMap(out.Items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeactivateByUserDevice flips active=false on the current active token for
// the pair. Returns whether a row was changed.
func (r *DeviceTokenRepo) DeactivateByUserDevice(ctx context.Context, tenantID, userID, deviceID string) (bool, error) {
	current, err := r.GetActiveByUserDevice(ctx, tenantID, userID, deviceID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.deactivate(ctx, current.TokenID); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePreferences replaces the category preference map and the enabled flag
// on the active token for the pair.
func (r *DeviceTokenRepo) UpdatePreferences(ctx context.Context, tenantID, userID, deviceID string, prefs map[domain.Category]bool, enabled bool) (bool, error) {
	current, err := r.GetActiveByUserDevice(ctx, tenantID, userID, deviceID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	updates := map[string]interface{}{
		fieldEnabled:   enabled,
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if prefs != nil {
		updates[fieldCategoryPrefs] = prefs
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return false, err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("token_id", current.TokenID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListActiveByUser returns the user's active, notification-enabled tokens.
func (r *DeviceTokenRepo) ListActiveByUser(ctx context.Context, tenantID, userID string) ([]domain.DeviceToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("#act = :true AND #en = :true AND #tid = :tid"),
		ExpressionAttributeNames: map[string]string{
			"#act": fieldActive,
			"#en":  fieldEnabled,
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":  &types.AttributeValueMemberS{Value: userID},
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":tid":  &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return nil, err
	}
	var tokens []domain.DeviceToken
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// MarkInvalidByToken deactivates the row holding the given provider address
// and bumps its failure counter. Missing rows are ignored; the provider may
// report an address we already rotated out.
func (r *DeviceTokenRepo) MarkInvalidByToken(ctx context.Context, tenantID, token string) error {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("token-index"),
		KeyConditionExpression: aws.String("#tok = :tok"),
		FilterExpression:       aws.String("#tid = :tid"),
		ExpressionAttributeNames: map[string]string{
			"#tok": "token",
			"#tid": fieldTenantID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tok": &types.AttributeValueMemberS{Value: token},
			":tid": &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return err
	}
	for _, item := range out.Items {
		var t domain.DeviceToken
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return err
		}
		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        aws.String(r.tableName),
			Key:              strKey("token_id", t.TokenID),
			UpdateExpression: aws.String("SET #act = :false, #ua = :now ADD #fa :one"),
			ExpressionAttributeNames: map[string]string{
				"#act": fieldActive,
				"#ua":  fieldUpdatedAt,
				"#fa":  fieldFailedAttempts,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":false": &types.AttributeValueMemberBOOL{Value: false},
				":one":   &types.AttributeValueMemberN{Value: "1"},
				":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ScanAudience collects the distinct user ids holding an active, enabled
// token matching the targeting criteria. A scan is acceptable here: broadcast
// audience resolution is a rare, admin-triggered operation.
func (r *DeviceTokenRepo) ScanAudience(ctx context.Context, tenantID string, criteria domain.TargetCriteria) ([]string, error) {
	filter := "#act = :true AND #en = :true AND #tid = :tid"
	names := map[string]string{
		"#act": fieldActive,
		"#en":  fieldEnabled,
		"#tid": fieldTenantID,
	}
	values := map[string]types.AttributeValue{
		":true": &types.AttributeValueMemberBOOL{Value: true},
		":tid":  &types.AttributeValueMemberS{Value: tenantID},
	}
	if criteria.Platform != "" {
		filter += " AND platform = :plat"
		values[":plat"] = &types.AttributeValueMemberS{Value: string(criteria.Platform)}
	}
	if criteria.Locale != "" {
		filter += " AND locale = :loc"
		values[":loc"] = &types.AttributeValueMemberS{Value: criteria.Locale}
	}
	if criteria.LastActiveAfter != nil {
		filter += " AND #ua >= :cutoff"
		names["#ua"] = fieldUpdatedAt
		values[":cutoff"] = &types.AttributeValueMemberS{Value: criteria.LastActiveAfter.UTC().Format(time.RFC3339Nano)}
	}
	if len(criteria.Roles) > 0 {
		placeholders := make([]string, len(criteria.Roles))
		for i, role := range criteria.Roles {
			ph := fmt.Sprintf(":role%d", i)
			values[ph] = &types.AttributeValueMemberS{Value: role}
			placeholders[i] = ph
		}
		filter += fmt.Sprintf(" AND user_role IN (%s)", strings.Join(placeholders, ", "))
	}

	seen := make(map[string]struct{})
	var userIDs []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}
		var tokens []domain.DeviceToken
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &tokens); err != nil {
			return nil, err
		}
		for _, t := range tokens {
			if _, dup := seen[t.UserID]; dup {
				continue
			}
			seen[t.UserID] = struct{}{}
			userIDs = append(userIDs, t.UserID)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return userIDs, nil
}

func (r *DeviceTokenRepo) deactivate(ctx context.Context, tokenID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("token_id", tokenID),
		UpdateExpression: aws.String("SET #act = :false, #ua = :now"),
		ExpressionAttributeNames: map[string]string{
			"#act": fieldActive,
			"#ua":  fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	return err
}
