package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"livechat-backend/internal/database"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// fakeDynamo keeps the sessions table in memory and understands the two
// condition expressions the repository writes with.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	// noIndexes answers index queries the way a table without GSIs does.
	noIndexes bool
	// conflicts fails that many version-conditioned puts, as if another
	// writer had just committed.
	conflicts int

	queries int
	scans   int
	created bool
	ttlAttr string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, bool) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) PutItemConditional(ctx context.Context, tableName string, item interface{}, condExpr string, exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	id, _ := stringAttr(av, "chatId")

	f.mu.Lock()
	defer f.mu.Unlock()
	existing, exists := f.items[id]

	switch condExpr {
	case "attribute_not_exists(#chatId)":
		if exists {
			return conditionFailed()
		}
	case "#version = :version":
		if f.conflicts > 0 {
			f.conflicts--
			return conditionFailed()
		}
		want := exprAttrValues[":version"].(*types.AttributeValueMemberN).Value
		got, ok := existing["version"].(*types.AttributeValueMemberN)
		if !exists || !ok || got.Value != want {
			return conditionFailed()
		}
	default:
		return fmt.Errorf("fake dynamo: unsupported condition %q", condExpr)
	}
	f.items[id] = av
	return nil
}

func (f *fakeDynamo) GetItemConsistent(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error {
	id, _ := stringAttr(key, "chatId")
	f.mu.Lock()
	item, ok := f.items[id]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("get item %s: %w", tableName, database.ErrItemNotFound)
	}
	return attributevalue.UnmarshalMap(item, out)
}

func (f *fakeDynamo) matching(exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) []map[string]types.AttributeValue {
	attr := exprAttrNames["#k"]
	want := exprAttrValues[":v"].(*types.AttributeValueMemberS).Value

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if v, ok := stringAttr(item, attr); ok && v == want {
			out = append(out, item)
		}
	}
	return out
}

func (f *fakeDynamo) QueryAll(ctx context.Context, tableName string, indexName *string, keyCondExpr string, exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) ([]map[string]types.AttributeValue, error) {
	f.mu.Lock()
	f.queries++
	missing := f.noIndexes
	f.mu.Unlock()
	if missing {
		return nil, fmt.Errorf("query %s[%s]: %w", tableName, aws.ToString(indexName), &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: "The table does not have the specified index: " + aws.ToString(indexName),
		})
	}

	// The indexes project keys only.
	var keys []map[string]types.AttributeValue
	for _, item := range f.matching(exprAttrValues, exprAttrNames) {
		keys = append(keys, map[string]types.AttributeValue{
			"chatId":            item["chatId"],
			exprAttrNames["#k"]: item[exprAttrNames["#k"]],
		})
	}
	return keys, nil
}

func (f *fakeDynamo) ScanAllWithFilter(ctx context.Context, tableName string, filterExpr string, exprAttrValues map[string]types.AttributeValue, exprAttrNames map[string]string) ([]map[string]types.AttributeValue, error) {
	f.mu.Lock()
	f.scans++
	f.mu.Unlock()
	return f.matching(exprAttrValues, exprAttrNames), nil
}

func (f *fakeDynamo) BatchGetConsistent(ctx context.Context, tableName string, keyField string, keyValues []string) ([]map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []map[string]types.AttributeValue
	for _, id := range keyValues {
		if seen[id] {
			continue
		}
		seen[id] = true
		if item, ok := f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) ScanPaginated(ctx context.Context, tableName string, pageSize int, start map[string]types.AttributeValue) (*database.PaginatedScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	after, _ := stringAttr(start, "chatId")
	res := &database.PaginatedScanResult{}
	for i, id := range ids {
		if after != "" && id <= after {
			continue
		}
		res.Items = append(res.Items, f.items[id])
		if len(res.Items) == pageSize && i < len(ids)-1 {
			res.LastEvaluatedKey = sessionKey(id)
			res.HasMore = true
			break
		}
	}
	return res, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created {
		return false, nil
	}
	f.created = true
	return true, nil
}

func (f *fakeDynamo) EnableTTL(ctx context.Context, tableName, attribute string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttlAttr = attribute
	return nil
}
