package session

import (
	"context"

	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SessionsTableInput describes the sessions table: chatId as the key plus
// the byStatus and byEmployee indexes, both ordered by createdAt.
func SessionsTableInput(table string) *dynamodb.CreateTableInput {
	if table == "" {
		table = model.SessionsTable
	}
	keysOnly := &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly}

	return &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("chatId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("status"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("activeEmployeeId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("createdAt"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("chatId"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(model.SessionsByStatusIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("status"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("createdAt"), KeyType: types.KeyTypeRange},
				},
				Projection: keysOnly,
			},
			{
				IndexName: aws.String(model.SessionsByEmployeeIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("activeEmployeeId"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("createdAt"), KeyType: types.KeyTypeRange},
				},
				Projection: keysOnly,
			},
		},
	}
}

// EnsureTable creates the sessions table when missing and turns on TTL
// expiry. It reports whether the table was created.
func (r *DynamoRepository) EnsureTable(ctx context.Context) (bool, error) {
	created, err := r.db.CreateTable(ctx, SessionsTableInput(r.table))
	if err != nil {
		return created, err
	}
	if err := r.db.EnableTTL(ctx, r.table, model.SessionsTTLAttribute); err != nil {
		return created, err
	}
	return created, nil
}

// Page is one slice of a raw table dump.
type Page struct {
	Sessions []model.Session
	Next     map[string]types.AttributeValue
}

// Dump scans the table a page at a time, including expired items TTL has
// not collected yet. It is meant for operators, not for serving traffic.
func (r *DynamoRepository) Dump(ctx context.Context, pageSize int, start map[string]types.AttributeValue) (Page, error) {
	res, err := r.db.ScanPaginated(ctx, r.table, pageSize, start)
	if err != nil {
		return Page{}, err
	}

	page := Page{Sessions: make([]model.Session, 0, len(res.Items))}
	for _, raw := range res.Items {
		item, err := unmarshalItem(raw)
		if err != nil {
			return Page{}, err
		}
		s, err := decodeItem(item)
		if err != nil {
			return Page{}, err
		}
		page.Sessions = append(page.Sessions, s)
	}
	if res.HasMore {
		page.Next = res.LastEvaluatedKey
	}
	return page, nil
}
