// Package dynamodb implements the persistence ports on a single DynamoDB
// table. Items share one key schema: PK partitions by owner, SK identifies
// the entity, and two GSIs cover category browsing and direct ID lookups.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "patchshare-backend/pkg/errors"
	"patchshare-backend/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// EntityConfig defines entity-specific behavior for the generic repository
type EntityConfig[T any] interface {
	// ParseItem converts a DynamoDB item to the entity type
	ParseItem(item map[string]types.AttributeValue) (T, error)
	// ToItem converts an entity to a DynamoDB item
	ToItem(entity T) (map[string]types.AttributeValue, error)
	// BuildKey creates the primary key from the partition owner and entity ID
	BuildKey(owner, entityID string) map[string]types.AttributeValue
	// EntityType returns the entity type name stored on each item
	EntityType() string
	// Version returns the entity's optimistic-lock version
	Version(entity T) int
}

// GenericRepository provides the CRUD operations shared by all entity types
type GenericRepository[T any] struct {
	client    *dynamodb.Client
	tableName string
	config    EntityConfig[T]
	logger    *zap.Logger
}

// NewGenericRepository creates a new generic repository instance
func NewGenericRepository[T any](
	client *dynamodb.Client,
	tableName string,
	config EntityConfig[T],
	logger *zap.Logger,
) *GenericRepository[T] {
	return &GenericRepository[T]{
		client:    client,
		tableName: tableName,
		config:    config,
		logger:    logger,
	}
}

// Save creates or updates an entity with optimistic locking. Version 1
// means create (the item must not exist); anything higher must replace
// exactly the previous version.
func (r *GenericRepository[T]) Save(ctx context.Context, entity T) error {
	item, err := r.config.ToItem(entity)
	if err != nil {
		return fmt.Errorf("failed to convert entity to item: %w", err)
	}

	item["UpdatedAt"] = &types.AttributeValueMemberS{Value: utils.NowRFC3339()}

	var condition expression.ConditionBuilder
	version := r.config.Version(entity)
	if version > 1 {
		condition = expression.Name("Version").Equal(expression.Value(version - 1))
	} else {
		condition = expression.Name("PK").AttributeNotExists()
	}

	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	_, err = r.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if version > 1 {
				return pkgerrors.NewConflictError("entity was modified concurrently").WithCause(err)
			}
			return pkgerrors.NewConflictError("entity already exists").WithCause(err)
		}
		return pkgerrors.NewDatabaseError("save", err)
	}

	r.logger.Debug("entity saved",
		zap.String("entityType", r.config.EntityType()),
		zap.Int("version", version),
	)

	return nil
}

// Get retrieves an entity by its key
func (r *GenericRepository[T]) Get(ctx context.Context, owner, entityID string) (T, error) {
	var zero T

	input := &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.config.BuildKey(owner, entityID),
	}

	result, err := r.client.GetItem(ctx, input)
	if err != nil {
		return zero, pkgerrors.NewDatabaseError("get", err)
	}

	if result.Item == nil {
		return zero, pkgerrors.NewNotFoundError(r.config.EntityType())
	}

	entity, err := r.config.ParseItem(result.Item)
	if err != nil {
		return zero, fmt.Errorf("failed to parse item: %w", err)
	}

	return entity, nil
}

// Delete removes an entity, failing when it does not exist
func (r *GenericRepository[T]) Delete(ctx context.Context, owner, entityID string) error {
	condition := expression.Name("PK").AttributeExists()
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.config.BuildKey(owner, entityID),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if _, err := r.client.DeleteItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError(r.config.EntityType())
		}
		return pkgerrors.NewDatabaseError("delete", err)
	}

	return nil
}

// CountByOwner counts the owner's entities of the configured type
func (r *GenericRepository[T]) CountByOwner(ctx context.Context, owner, skPrefix string) (int, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", owner))).
		And(expression.Key("SK").BeginsWith(skPrefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	total := 0
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Select:                    types.SelectCount,
			ExclusiveStartKey:         startKey,
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return 0, pkgerrors.NewDatabaseError("count", err)
		}
		total += int(result.Count)

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return total, nil
}
