package tilestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/imkira/go-interpol"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

const (
	s3MetaStoredAt  = "stored-at"
	s3MetaSourceURL = "source-url"
	s3DeleteBatch   = 1000
)

// S3Store keeps raw tile images as objects; the timestamp and source URL live
// in object metadata.
type S3Store struct {
	client     s3iface.S3API
	bucket     string
	keyPattern string
	prefix     string
	listPrefix string
	keyRe      *regexp.Regexp
}

// NewS3Store builds object keys from keyPattern, which must reference {z}, {x}
// and {y} and may reference {prefix}.
func NewS3Store(api s3iface.S3API, bucket, keyPattern, prefix string) (*S3Store, error) {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(keyPattern, p) {
			return nil, fmt.Errorf("s3 key pattern %q lacks %s", keyPattern, p)
		}
	}

	// Everything before the first coordinate placeholder is a fixed listing prefix.
	marked, err := interpol.WithMap(keyPattern, map[string]string{
		"prefix": prefix,
		"z":      "\x00",
		"x":      "\x00",
		"y":      "\x00",
	})
	if err != nil {
		return nil, fmt.Errorf("s3 key pattern %q: %w", keyPattern, err)
	}
	listPrefix, _, _ := strings.Cut(marked, "\x00")

	quoted := strings.NewReplacer(
		`\{z\}`, `(?P<z>\d+)`,
		`\{x\}`, `(?P<x>\d+)`,
		`\{y\}`, `(?P<y>\d+)`,
		`\{prefix\}`, regexp.QuoteMeta(prefix),
	).Replace(regexp.QuoteMeta(keyPattern))
	keyRe, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return nil, fmt.Errorf("s3 key pattern %q: %w", keyPattern, err)
	}

	return &S3Store{
		client:     api,
		bucket:     bucket,
		keyPattern: keyPattern,
		prefix:     prefix,
		listPrefix: listPrefix,
		keyRe:      keyRe,
	}, nil
}

var _ Store = (*S3Store)(nil)

func (s *S3Store) objectKey(c tilemath.TileCoordinate) (string, error) {
	m := map[string]string{
		"z":      strconv.Itoa(c.Z),
		"x":      strconv.Itoa(c.X),
		"y":      strconv.Itoa(c.Y),
		"prefix": s.prefix,
	}

	return interpol.WithMap(s.keyPattern, m)
}

func (s *S3Store) coordinateOf(key string) (tilemath.TileCoordinate, bool) {
	m := s.keyRe.FindStringSubmatch(key)
	if m == nil {
		return tilemath.TileCoordinate{}, false
	}

	var z, x, y string
	for i, name := range s.keyRe.SubexpNames() {
		switch name {
		case "z":
			z = m[i]
		case "x":
			x = m[i]
		case "y":
			y = m[i]
		}
	}

	c, err := tilemath.ParseKey(z + "/" + x + "/" + y)
	if err != nil {
		return tilemath.TileCoordinate{}, false
	}
	return c, true
}

func metadataValue(md map[string]*string, name string) string {
	for k, v := range md {
		if strings.EqualFold(k, name) && v != nil {
			return *v
		}
	}
	return ""
}

func (s *S3Store) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	key, err := s.objectKey(c)
	if err != nil {
		return CachedTile{}, false, err
	}

	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return CachedTile{}, false, nil
		}
		return CachedTile{}, false, fmt.Errorf("s3 get %s: %w", key, err)
	}

	var body []byte
	if output.Body != nil {
		defer output.Body.Close()
		body, err = io.ReadAll(output.Body)
		if err != nil {
			return CachedTile{}, false, fmt.Errorf("s3 read %s: %w", key, err)
		}
	}

	r := record{
		Data:      body,
		SourceURL: metadataValue(output.Metadata, s3MetaSourceURL),
	}
	if raw := metadataValue(output.Metadata, s3MetaStoredAt); raw != "" {
		r.StoredAt, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return CachedTile{}, false, fmt.Errorf("%w %s: stored-at %q", ErrCorruptRecord, c, raw)
		}
	}

	tile, err := r.tile(c)
	if err != nil {
		return CachedTile{}, false, err
	}
	return tile, true, nil
}

func (s *S3Store) Put(ctx context.Context, t CachedTile) error {
	if err := checkTile(t); err != nil {
		return err
	}

	key, err := s.objectKey(t.Coordinate)
	if err != nil {
		return err
	}

	r := newRecord(t)
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(r.Data),
		Metadata: map[string]*string{
			s3MetaStoredAt:  aws.String(strconv.FormatInt(r.StoredAt, 10)),
			s3MetaSourceURL: aws.String(r.SourceURL),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, c tilemath.TileCoordinate) error {
	key, err := s.objectKey(c)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// objectKeys lists the object keys under the listing prefix that parse as tiles.
func (s *S3Store) objectKeys(ctx context.Context) (map[string]tilemath.TileCoordinate, error) {
	keys := make(map[string]tilemath.TileCoordinate)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.listPrefix),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if c, ok := s.coordinateOf(key); ok {
				keys[key] = c
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("s3 list %s: %w", s.listPrefix, err)
	}

	return keys, nil
}

func (s *S3Store) Keys(ctx context.Context) ([]tilemath.TileCoordinate, error) {
	objects, err := s.objectKeys(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]tilemath.TileCoordinate, 0, len(objects))
	for _, c := range objects {
		keys = append(keys, c)
	}
	return keys, nil
}

func (s *S3Store) Clear(ctx context.Context) error {
	objects, err := s.objectKeys(ctx)
	if err != nil {
		return err
	}

	batch := make([]*s3.ObjectIdentifier, 0, s3DeleteBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = batch[:0]
		if err != nil {
			return fmt.Errorf("s3 delete objects: %w", err)
		}
		return nil
	}

	for key := range objects {
		batch = append(batch, &s3.ObjectIdentifier{Key: aws.String(key)})
		if len(batch) == s3DeleteBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
