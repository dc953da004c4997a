package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/medconnect-auth/internal/domain"
)

// table is a single-string-key DynamoDB table shared by the typed repos.
type table struct {
	client *dynamodb.Client
	name   string
	key    string // partition key attribute
	entity string // used in error messages
}

// put marshals v and writes it. A non-empty cond becomes the ConditionExpression
// and a failed condition is reported as ErrConflict.
func (t table) put(ctx context.Context, v interface{}, cond string) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", t.entity, err)
	}
	in := &dynamodb.PutItemInput{TableName: aws.String(t.name), Item: item}
	if cond != "" {
		in.ConditionExpression = aws.String(cond)
	}
	_, err = t.client.PutItem(ctx, in)
	if isConditionFailed(err) {
		return fmt.Errorf("%s exists: %w", t.entity, domain.ErrConflict)
	}
	return err
}

// get loads the item keyed by id into out. Missing items yield ErrNotFound.
func (t table) get(ctx context.Context, id string, consistent bool, out interface{}) error {
	res, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.name),
		Key:            strKey(t.key, id),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return err
	}
	if res.Item == nil {
		return fmt.Errorf("%s not found: %w", t.entity, domain.ErrNotFound)
	}
	return attributevalue.UnmarshalMap(res.Item, out)
}

// queryIndex returns the items whose attr equals value on a hash-only GSI.
// limit <= 0 means no limit.
func (t table) queryIndex(ctx context.Context, index, attr, value string, limit int32) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}
	res, err := t.client.Query(ctx, in)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// findOne unmarshals the first index match into out.
func (t table) findOne(ctx context.Context, index, attr, value string, out interface{}) error {
	items, err := t.queryIndex(ctx, index, attr, value, 1)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%s not found: %w", t.entity, domain.ErrNotFound)
	}
	return attributevalue.UnmarshalMap(items[0], out)
}

// update SETs the given fields, plus updated_at when stamp is true. If cond is
// set and does not hold, ErrConflict is returned.
func (t table) update(ctx context.Context, id string, updates map[string]interface{}, stamp bool, cond *condition) error {
	if stamp {
		updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       strKey(t.key, id),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	}
	if cond != nil {
		in.ConditionExpression = aws.String(cond.expr)
		for k, v := range cond.names {
			ue.Names[k] = v
		}
		for k, v := range cond.values {
			ue.Values[k] = v
		}
	}
	_, err = t.client.UpdateItem(ctx, in)
	if cond != nil && isConditionFailed(err) {
		return fmt.Errorf("%s %s: %w", t.entity, id, domain.ErrConflict)
	}
	return err
}

// condition guards an update.
type condition struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
