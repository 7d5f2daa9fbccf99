package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PaginatedScanResult struct {
	Items            []map[string]types.AttributeValue
	LastEvaluatedKey map[string]types.AttributeValue
	HasMore          bool
}

func attrString(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

const (
	defaultScanPage = 20
	maxScanPage     = 100
)

// ErrItemNotFound is returned by GetItemConsistent for a missing key.
var ErrItemNotFound = errors.New("dynamodb: item not found")

func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// PutItemConditional writes item only when condExpr holds for the stored
// version of the key.
func (c *DynamoDBClient) PutItemConditional(
	ctx context.Context,
	tableName string,
	item interface{},
	condExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(tableName),
		Item:                av,
		ConditionExpression: aws.String(condExpr),
	}
	if len(exprAttrValues) > 0 {
		input.ExpressionAttributeValues = exprAttrValues
	}
	if len(exprAttrNames) > 0 {
		input.ExpressionAttributeNames = exprAttrNames
	}

	_, err = c.svc.PutItem(ctx, input)
	if err != nil {
		return fmt.Errorf("put item %s: %w", tableName, err)
	}
	return nil
}

func (c *DynamoDBClient) GetItemConsistent(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	out interface{},
) error {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	}

	res, err := c.svc.GetItem(ctx, input)
	if err != nil {
		return fmt.Errorf("get item %s: %w", tableName, err)
	}
	if res.Item == nil {
		return fmt.Errorf("get item %s: %w", tableName, ErrItemNotFound)
	}

	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

// QueryAll drains every page of a query.
func (c *DynamoDBClient) QueryAll(
	ctx context.Context,
	tableName string,
	indexName *string,
	keyCondExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		IndexName:                 indexName,
		KeyConditionExpression:    aws.String(keyCondExpr),
		ExpressionAttributeValues: exprAttrValues,
	}
	if len(exprAttrNames) > 0 {
		input.ExpressionAttributeNames = exprAttrNames
	}

	var items []map[string]types.AttributeValue
	pages := dynamodb.NewQueryPaginator(c.svc, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s[%s]: %w", tableName, aws.ToString(indexName), err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// ScanAllWithFilter is the fallback when an index is missing. It reads the
// whole table with strong consistency.
func (c *DynamoDBClient) ScanAllWithFilter(
	ctx context.Context,
	tableName string,
	filterExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(tableName),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeValues: exprAttrValues,
		ConsistentRead:            aws.Bool(true),
	}
	if len(exprAttrNames) > 0 {
		input.ExpressionAttributeNames = exprAttrNames
	}

	var items []map[string]types.AttributeValue
	pages := dynamodb.NewScanPaginator(c.svc, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", tableName, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// BatchGetConsistent loads items by their string partition key in chunks of
// 100, re-requesting unprocessed keys until the batch drains.
func (c *DynamoDBClient) BatchGetConsistent(
	ctx context.Context,
	tableName string,
	keyField string,
	keyValues []string,
) ([]map[string]types.AttributeValue, error) {
	const batchSize = 100
	var allItems []map[string]types.AttributeValue

	seen := make(map[string]struct{}, len(keyValues))
	unique := make([]string, 0, len(keyValues))
	for _, v := range keyValues {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}

	for i := 0; i < len(unique); i += batchSize {
		end := i + batchSize
		if end > len(unique) {
			end = len(unique)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-i)
		for _, v := range unique[i:end] {
			keys = append(keys, map[string]types.AttributeValue{keyField: attrString(v)})
		}

		request := map[string]types.KeysAndAttributes{
			tableName: {Keys: keys, ConsistentRead: aws.Bool(true)},
		}
		for len(request) > 0 {
			res, err := c.svc.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get %s: %w", tableName, err)
			}
			allItems = append(allItems, res.Responses[tableName]...)
			request = res.UnprocessedKeys
		}
	}

	return allItems, nil
}

// ScanPaginated reads a single page starting after start. A nil
// LastEvaluatedKey in the result means the scan is complete.
func (c *DynamoDBClient) ScanPaginated(
	ctx context.Context,
	tableName string,
	pageSize int,
	start map[string]types.AttributeValue,
) (*PaginatedScanResult, error) {
	if pageSize < 1 || pageSize > maxScanPage {
		pageSize = defaultScanPage
	}

	result, err := c.svc.Scan(ctx, &dynamodb.ScanInput{
		TableName:         aws.String(tableName),
		Limit:             aws.Int32(int32(pageSize)),
		ExclusiveStartKey: start,
	})
	if err != nil {
		return nil, fmt.Errorf("scan page %s: %w", tableName, err)
	}

	return &PaginatedScanResult{
		Items:            result.Items,
		LastEvaluatedKey: result.LastEvaluatedKey,
		HasMore:          len(result.LastEvaluatedKey) > 0,
	}, nil
}

// CreateTable creates the table and waits until it is active. An existing
// table is left untouched.
func (c *DynamoDBClient) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput) (bool, error) {
	_, err := c.svc.CreateTable(ctx, input)
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return false, nil
		}
		return false, fmt.Errorf("create table %s: %w", aws.ToString(input.TableName), err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.svc)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, tableWaitTimeout); err != nil {
		return true, fmt.Errorf("wait for table %s: %w", aws.ToString(input.TableName), err)
	}
	return true, nil
}

func (c *DynamoDBClient) EnableTTL(ctx context.Context, tableName, attribute string) error {
	_, err := c.svc.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(attribute),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "TimeToLive is already enabled") {
			return nil
		}
		return fmt.Errorf("enable ttl %s: %w", tableName, err)
	}
	return nil
}
