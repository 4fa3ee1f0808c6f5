package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStateStore stores the extension state in a DynamoDB table keyed by
// (profile, state_key). One table can hold several users' state.
type DynamoStateStore struct {
	client    *dynamodb.Client
	tableName string
	profile   string
}

// dynamoStateItem represents the DynamoDB item structure
type dynamoStateItem struct {
	Profile   string `dynamodbav:"profile"`
	StateKey  string `dynamodbav:"state_key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func NewDynamoStateStore(client *dynamodb.Client, tableName, profile string) *DynamoStateStore {
	return &DynamoStateStore{
		client:    client,
		tableName: tableName,
		profile:   profile,
	}
}

func (s *DynamoStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(key),
		// the editing surface must read its own writes
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	var item dynamoStateItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return []byte(item.Value), true, nil
}

// Set writes every entry in a single transaction so the snippet list and
// tier change together.
func (s *DynamoStateStore) Set(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().Format(time.RFC3339Nano)
	items := make([]types.TransactWriteItem, 0, len(entries))
	for k, v := range entries {
		av, err := attributevalue.MarshalMap(dynamoStateItem{
			Profile:   s.profile,
			StateKey:  k,
			Value:     string(v),
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", k, err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item:      av,
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

func (s *DynamoStateStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(k),
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	return nil
}

func (s *DynamoStateStore) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"profile":   &types.AttributeValueMemberS{Value: s.profile},
		"state_key": &types.AttributeValueMemberS{Value: k},
	}
}
