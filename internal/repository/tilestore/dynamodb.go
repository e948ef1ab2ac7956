package tilestore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

const (
	dynamoPartitionKey = "p"
	dynamoBatchSize    = 25
	dynamoBatchRetries = 5
)

type dynamoItem struct {
	Data      []byte `dynamodbav:"data"`
	StoredAt  int64  `dynamodbav:"stored_at"`
	SourceURL string `dynamodbav:"source_url"`
}

// DynamoDBStore keeps one item per tile, partitioned by "{z}/{x}/{y}".
type DynamoDBStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

func NewDynamoDBStore(client dynamodbiface.DynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

var _ Store = (*DynamoDBStore)(nil)

func itemKey(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		dynamoPartitionKey: {S: aws.String(key)},
	}
}

func (d *DynamoDBStore) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       itemKey(c.Key()),
	})
	if err != nil {
		return CachedTile{}, false, fmt.Errorf("error calling GetItem: %w", err)
	}

	if out.Item == nil {
		return CachedTile{}, false, nil
	}

	var item dynamoItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return CachedTile{}, false, fmt.Errorf("%w %s: %v", ErrCorruptRecord, c, err)
	}

	tile, err := record(item).tile(c)
	if err != nil {
		return CachedTile{}, false, err
	}
	return tile, true, nil
}

func (d *DynamoDBStore) Put(ctx context.Context, t CachedTile) error {
	if err := checkTile(t); err != nil {
		return err
	}

	item, err := dynamodbattribute.MarshalMap(dynamoItem(newRecord(t)))
	if err != nil {
		return fmt.Errorf("error marshalling Dynamo item: %w", err)
	}
	item[dynamoPartitionKey] = &dynamodb.AttributeValue{S: aws.String(t.Coordinate.Key())}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("error calling PutItem: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) Delete(ctx context.Context, c tilemath.TileCoordinate) error {
	_, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       itemKey(c.Key()),
	})
	if err != nil {
		return fmt.Errorf("error calling DeleteItem: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) partitionKeys(ctx context.Context) ([]string, error) {
	var keys []string

	input := &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		ProjectionExpression: aws.String(dynamoPartitionKey),
	}
	err := d.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range page.Items {
			if av, ok := item[dynamoPartitionKey]; ok && av.S != nil {
				keys = append(keys, *av.S)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error calling Scan: %w", err)
	}

	return keys, nil
}

func (d *DynamoDBStore) Keys(ctx context.Context) ([]tilemath.TileCoordinate, error) {
	raw, err := d.partitionKeys(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]tilemath.TileCoordinate, 0, len(raw))
	for _, k := range raw {
		c, err := tilemath.ParseKey(k)
		if err != nil {
			continue
		}
		keys = append(keys, c)
	}
	return keys, nil
}

func (d *DynamoDBStore) Clear(ctx context.Context) error {
	raw, err := d.partitionKeys(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(raw); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(raw))

		requests := make([]*dynamodb.WriteRequest, 0, end-start)
		for _, k := range raw[start:end] {
			requests = append(requests, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: itemKey(k)},
			})
		}

		if err := d.batchWrite(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

func (d *DynamoDBStore) batchWrite(ctx context.Context, requests []*dynamodb.WriteRequest) error {
	pending := map[string][]*dynamodb.WriteRequest{d.tableName: requests}

	for attempt := 0; attempt < dynamoBatchRetries && len(pending[d.tableName]) > 0; attempt++ {
		out, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("error calling BatchWriteItem: %w", err)
		}
		pending = out.UnprocessedItems
	}

	if n := len(pending[d.tableName]); n > 0 {
		return fmt.Errorf("dynamodb clear left %d unprocessed deletes", n)
	}
	return nil
}
