package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// dynamoClient is the part of database.DynamoDBClient the repository uses.
type dynamoClient interface {
	PutItemConditional(ctx context.Context, tableName string, item interface{}, condExpr string, exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) error
	GetItemConsistent(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error
	QueryAll(ctx context.Context, tableName string, indexName *string, keyCondExpr string, exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) ([]map[string]types.AttributeValue, error)
	ScanAllWithFilter(ctx context.Context, tableName string, filterExpr string, exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) ([]map[string]types.AttributeValue, error)
	BatchGetConsistent(ctx context.Context, tableName string, keyField string, keyValues []string) ([]map[string]types.AttributeValue, error)
	ScanPaginated(ctx context.Context, tableName string, pageSize int, start map[string]types.AttributeValue) (*database.PaginatedScanResult, error)
	CreateTable(ctx context.Context, input *dynamodb.CreateTableInput) (bool, error)
	EnableTTL(ctx context.Context, tableName, attribute string) error
}

// DynamoRepository keeps one item per session. Writes are conditional on the
// item version; the status and employee GSIs are derived from the item, so
// they change together with it. GSIs are eventually consistent, listings
// re-read every hit with a consistent read before returning it.
type DynamoRepository struct {
	db    dynamoClient
	table string
	ttl   time.Duration
	now   func() time.Time
}

func NewDynamoRepository(db *database.Database, table string, ttl time.Duration, now func() time.Time) *DynamoRepository {
	return newDynamoRepository(db.Client, table, ttl, now)
}

func newDynamoRepository(client dynamoClient, table string, ttl time.Duration, now func() time.Time) *DynamoRepository {
	if table == "" {
		table = model.SessionsTable
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &DynamoRepository{db: client, table: table, ttl: ttl, now: now}
}

func sessionKey(chatID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"chatId": &types.AttributeValueMemberS{Value: chatID},
	}
}

func (r *DynamoRepository) CreateSession(ctx context.Context, s model.Session) error {
	item := model.NewSessionItem(s, 1, r.now().Add(r.ttl))
	err := r.db.PutItemConditional(
		ctx,
		r.table,
		item,
		"attribute_not_exists(#chatId)",
		nil,
		map[string]string{"#chatId": "chatId"},
	)
	if database.IsConditionalCheckFailed(err) {
		return ErrExists
	}
	return err
}

func (r *DynamoRepository) GetSession(ctx context.Context, chatID string) (model.Session, error) {
	item, err := r.load(ctx, chatID)
	if err != nil {
		return model.Session{}, err
	}
	return decodeItem(item)
}

func (r *DynamoRepository) load(ctx context.Context, chatID string) (model.SessionItem, error) {
	var item model.SessionItem
	err := r.db.GetItemConsistent(ctx, r.table, sessionKey(chatID), &item)
	if err != nil {
		if database.IsNotFound(err) {
			return model.SessionItem{}, ErrNotFound
		}
		return model.SessionItem{}, err
	}
	if r.expired(item) {
		return model.SessionItem{}, ErrNotFound
	}
	return item, nil
}

func (r *DynamoRepository) UpdateSession(ctx context.Context, chatID string, mutate func(*model.Session) error) (model.Session, error) {
	var result model.Session
	err := defaultContention.run(ctx, chatID, func() (bool, error) {
		item, err := r.load(ctx, chatID)
		if err != nil {
			return false, err
		}
		current, err := decodeItem(item)
		if err != nil {
			return false, err
		}

		next := current.Clone()
		if err := mutate(&next); err != nil {
			return false, err
		}

		updated := model.NewSessionItem(next, item.Version+1, r.now().Add(r.ttl))
		err = r.db.PutItemConditional(
			ctx,
			r.table,
			updated,
			"#version = :version",
			map[string]types.AttributeValue{
				":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.Version)},
			},
			map[string]string{"#version": "version"},
		)
		if database.IsConditionalCheckFailed(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		result = next
		return true, nil
	})
	if err != nil {
		return model.Session{}, err
	}
	return result, nil
}

func (r *DynamoRepository) ListSessions(ctx context.Context, index Index) ([]model.Session, error) {
	status := model.SessionStatusActive
	if index == IndexPending {
		status = model.SessionStatusPending
	}
	ids, err := r.queryIDs(ctx, model.SessionsByStatusIndex, "status", string(status))
	if err != nil {
		return nil, err
	}
	return r.reload(ctx, ids, index.Matches)
}

func (r *DynamoRepository) ListEmployeeSessions(ctx context.Context, employeeID string) ([]model.Session, error) {
	ids, err := r.queryIDs(ctx, model.SessionsByEmployeeIndex, "activeEmployeeId", employeeID)
	if err != nil {
		return nil, err
	}
	return r.reload(ctx, ids, func(s model.Session) bool { return ownedBy(employeeID, s) })
}

// queryIDs reads the GSI, falling back to a filtered scan on tables created
// without it.
func (r *DynamoRepository) queryIDs(ctx context.Context, indexName, attr, value string) ([]string, error) {
	values := map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberS{Value: value},
	}
	names := map[string]string{"#k": attr}

	items, err := r.db.QueryAll(ctx, r.table, aws.String(indexName), "#k = :v", values, names)
	if err != nil {
		if !isIndexNotFound(err) {
			return nil, err
		}
		items, err = r.db.ScanAllWithFilter(ctx, r.table, "#k = :v", values, names)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(items))
	for _, raw := range items {
		var key struct {
			ChatID string `dynamodbav:"chatId"`
		}
		if err := attributevalue.UnmarshalMap(raw, &key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if key.ChatID != "" {
			ids = append(ids, key.ChatID)
		}
	}
	return ids, nil
}

func (r *DynamoRepository) reload(ctx context.Context, ids []string, keep func(model.Session) bool) ([]model.Session, error) {
	raw, err := r.db.BatchGetConsistent(ctx, r.table, "chatId", ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Session, 0, len(raw))
	for _, av := range raw {
		item, err := unmarshalItem(av)
		if err != nil {
			return nil, err
		}
		if r.expired(item) {
			continue
		}
		s, err := decodeItem(item)
		if err != nil {
			return nil, err
		}
		if keep(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// expired hides items DynamoDB TTL has not collected yet.
func (r *DynamoRepository) expired(item model.SessionItem) bool {
	return item.ExpiresAt > 0 && item.ExpiresAt <= r.now().Unix()
}

func unmarshalItem(av map[string]types.AttributeValue) (model.SessionItem, error) {
	var item model.SessionItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return model.SessionItem{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return item, nil
}

func decodeItem(item model.SessionItem) (model.Session, error) {
	s, err := item.Session()
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: session %s: %v", ErrCorrupt, item.ChatID, err)
	}
	return s, nil
}

// isIndexNotFound recognises the ValidationException DynamoDB returns when
// a query names a GSI the table does not have.
func isIndexNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "specified index")
}
