package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/quantmat/blobstore"
)

// ErrConcurrentPublish is returned when another writer published a version
// concurrently.
var ErrConcurrentPublish = errors.New("concurrent publish detected")

// ErrNoPublishedSnapshot is returned by Current when nothing has been
// published yet.
var ErrNoPublishedSnapshot = errors.New("no published snapshot")

// DynamoDBClient is the interface for the DynamoDB operations the publish
// store issues.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// PublishedSnapshot names one committed snapshot version.
type PublishedSnapshot struct {
	Version uint64
	Key     string
}

// PublishStore couples an S3 store with a DynamoDB version log so that a
// new snapshot can be promoted to "current" atomically. S3 alone offers no
// compare-and-swap; the conditional PutItem supplies it, letting several
// publishers race safely: exactly one wins each version number.
//
// Table schema:
//   - Partition key: base_uri (string) - the store's S3 location
//   - Sort key: version (number) - monotonically increasing version
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name quantmat-snapshots \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type PublishStore struct {
	store     *Store
	ddbClient DynamoDBClient
	tableName string
	baseURI   string
}

// NewPublishStore creates a publish store over an S3 store. baseURI should
// be the "s3://bucket/prefix" location; it is the partition key of the
// version log.
func NewPublishStore(store *Store, ddbClient DynamoDBClient, tableName, baseURI string) *PublishStore {
	return &PublishStore{
		store:     store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Publish commits snapshotKey as the next version and returns the version
// number it won. Returns ErrConcurrentPublish when another writer took the
// version first; the caller may re-read Current and retry.
func (p *PublishStore) Publish(ctx context.Context, snapshotKey string) (uint64, error) {
	latest, err := p.latest(ctx)
	if err != nil && !errors.Is(err, ErrNoPublishedSnapshot) {
		return 0, err
	}

	version := latest.Version + 1

	_, err = p.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":     &types.AttributeValueMemberS{Value: p.baseURI},
			"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"snapshot_key": &types.AttributeValueMemberS{Value: snapshotKey},
			"published_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentPublish
		}
		return 0, fmt.Errorf("publish version %d: %w", version, err)
	}

	return version, nil
}

// Current returns the most recently published snapshot.
func (p *PublishStore) Current(ctx context.Context) (PublishedSnapshot, error) {
	return p.latest(ctx)
}

// Versions returns up to limit published snapshots, newest first.
func (p *PublishStore) Versions(ctx context.Context, limit int32) ([]PublishedSnapshot, error) {
	resp, err := p.query(ctx, limit)
	if err != nil {
		return nil, err
	}

	snapshots := make([]PublishedSnapshot, 0, len(resp.Items))
	for _, item := range resp.Items {
		snap, err := decodeItem(item)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

// Open, Create, Put, Delete and List delegate to the underlying S3 store,
// so a PublishStore can stand in wherever a blobstore.Store is expected.

func (p *PublishStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return p.store.Open(ctx, name)
}

func (p *PublishStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return p.store.Create(ctx, name)
}

func (p *PublishStore) Put(ctx context.Context, name string, data []byte) error {
	return p.store.Put(ctx, name, data)
}

func (p *PublishStore) Delete(ctx context.Context, name string) error {
	return p.store.Delete(ctx, name)
}

func (p *PublishStore) List(ctx context.Context, prefix string) ([]string, error) {
	return p.store.List(ctx, prefix)
}

func (p *PublishStore) query(ctx context.Context, limit int32) (*dynamodb.QueryOutput, error) {
	return p.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: p.baseURI},
		},
		ScanIndexForward: aws.Bool(false), // newest first
		Limit:            aws.Int32(limit),
	})
}

func (p *PublishStore) latest(ctx context.Context) (PublishedSnapshot, error) {
	resp, err := p.query(ctx, 1)
	if err != nil {
		return PublishedSnapshot{}, fmt.Errorf("query version log: %w", err)
	}

	if len(resp.Items) == 0 {
		return PublishedSnapshot{}, ErrNoPublishedSnapshot
	}

	return decodeItem(resp.Items[0])
}

func decodeItem(item map[string]types.AttributeValue) (PublishedSnapshot, error) {
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return PublishedSnapshot{}, errors.New("version log item has no numeric version")
	}

	keyAttr, ok := item["snapshot_key"].(*types.AttributeValueMemberS)
	if !ok {
		return PublishedSnapshot{}, errors.New("version log item has no snapshot_key")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return PublishedSnapshot{}, fmt.Errorf("parse version: %w", err)
	}

	return PublishedSnapshot{Version: version, Key: keyAttr.Value}, nil
}
