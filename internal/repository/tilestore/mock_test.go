package tilestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type mockObject struct {
	body     []byte
	metadata map[string]*string
}

type mockS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string]mockObject
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string]mockObject)}
}

func (m *mockS3) PutObjectWithContext(_ aws.Context, i *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(i.Body)
	if err != nil {
		return nil, err
	}

	// S3 hands metadata back with canonical header casing.
	md := make(map[string]*string, len(i.Metadata))
	for k, v := range i.Metadata {
		md[http.CanonicalHeaderKey(k)] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*i.Key] = mockObject{body: body, metadata: md}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObjectWithContext(_ aws.Context, i *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[*i.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The key was not found.", fmt.Errorf("Not Found."))
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
	}, nil
}

func (m *mockS3) DeleteObjectWithContext(_ aws.Context, i *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *i.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) DeleteObjectsWithContext(_ aws.Context, i *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range i.Delete.Objects {
		delete(m.objects, *obj.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// ListObjectsV2PagesWithContext returns two keys per page to exercise paging.
func (m *mockS3) ListObjectsV2PagesWithContext(_ aws.Context, i *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	m.mu.Lock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.StringValue(i.Prefix)) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	for start := 0; start < len(keys) || start == 0; start += 2 {
		end := min(start+2, len(keys))
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		if !fn(page, end == len(keys)) || end == len(keys) {
			return nil
		}
	}
	return nil
}

type mockDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu    sync.Mutex
	items map[string]map[string]*dynamodb.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (m *mockDynamo) GetItemWithContext(_ aws.Context, i *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: m.items[*i.Key["p"].S]}, nil
}

func (m *mockDynamo) PutItemWithContext(_ aws.Context, i *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[*i.Item["p"].S] = i.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) DeleteItemWithContext(_ aws.Context, i *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, *i.Key["p"].S)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamo) ScanPagesWithContext(_ aws.Context, _ *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	m.mu.Lock()
	page := &dynamodb.ScanOutput{}
	for k := range m.items {
		page.Items = append(page.Items, map[string]*dynamodb.AttributeValue{"p": {S: aws.String(k)}})
	}
	m.mu.Unlock()

	fn(page, true)
	return nil
}

func (m *mockDynamo) BatchWriteItemWithContext(_ aws.Context, i *dynamodb.BatchWriteItemInput, _ ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reqs := range i.RequestItems {
		if len(reqs) > 25 {
			return nil, fmt.Errorf("batch of %d exceeds 25", len(reqs))
		}
		for _, r := range reqs {
			delete(m.items, *r.DeleteRequest.Key["p"].S)
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}
