package s3

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryDDB is an in-memory DynamoDB double that honors the
// attribute_not_exists(version) condition.
type memoryDDB struct {
	mu    sync.Mutex
	items map[string][]map[string]types.AttributeValue // base_uri -> items
}

func newMemoryDDB() *memoryDDB {
	return &memoryDDB{items: make(map[string][]map[string]types.AttributeValue)}
}

func itemVersion(item map[string]types.AttributeValue) uint64 {
	attr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseUint(attr.Value, 10, 64)
	return v
}

func (m *memoryDDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := itemVersion(params.Item)

	if params.ConditionExpression != nil {
		for _, existing := range m.items[uri] {
			if itemVersion(existing) == version {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}

	m.items[uri] = append(m.items[uri], params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memoryDDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	items := make([]map[string]types.AttributeValue, len(m.items[uri]))
	copy(items, m.items[uri])

	// ScanIndexForward=false: newest first.
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if itemVersion(items[j]) > itemVersion(items[i]) {
				items[i], items[j] = items[j], items[i]
			}
		}
	}

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: items}, nil
}

// staleQueryDDB simulates two publishers reading the version log at the
// same moment: every Query comes back empty, so both try version 1.
type staleQueryDDB struct {
	*memoryDDB
}

func (s *staleQueryDDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func newTestPublishStore(ddb DynamoDBClient) *PublishStore {
	store := NewStore(new(MockS3Client), "test-bucket", "snapshots")
	return NewPublishStore(store, ddb, "test-table", "s3://test-bucket/snapshots")
}

func TestPublishStore_Sequence(t *testing.T) {
	ctx := context.Background()
	pub := newTestPublishStore(newMemoryDDB())

	v, err := pub.Publish(ctx, "snap-001.qms")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	v, err = pub.Publish(ctx, "snap-002.qms")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	current, err := pub.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, PublishedSnapshot{Version: 2, Key: "snap-002.qms"}, current)

	versions, err := pub.Versions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []PublishedSnapshot{
		{Version: 2, Key: "snap-002.qms"},
		{Version: 1, Key: "snap-001.qms"},
	}, versions)

	versions, err = pub.Versions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	assert.Equal(t, uint64(2), versions[0].Version)
}

func TestPublishStore_CurrentEmpty(t *testing.T) {
	pub := newTestPublishStore(newMemoryDDB())

	_, err := pub.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoPublishedSnapshot)
}

func TestPublishStore_ConcurrentConflict(t *testing.T) {
	ctx := context.Background()
	pub := newTestPublishStore(&staleQueryDDB{newMemoryDDB()})

	v, err := pub.Publish(ctx, "winner.qms")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	// The second publisher also saw an empty log and collides on version 1.
	_, err = pub.Publish(ctx, "loser.qms")
	assert.ErrorIs(t, err, ErrConcurrentPublish)
}

func TestPublishStore_DelegatesToStore(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "")
	pub := NewPublishStore(store, newMemoryDDB(), "test-table", "s3://test-bucket")

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Key == "snap.qms"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, pub.Put(context.Background(), "snap.qms", []byte("data")))
	mockClient.AssertExpectations(t)
}
