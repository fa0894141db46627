package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3 is a Store backed by an S3 bucket. Keys map to object keys under an
// optional base prefix.
type S3 struct {
	client s3iface.S3API
	bucket string
	base   string
}

// NewS3 creates an S3-backed store using the default AWS credential chain.
func NewS3(bucket, base string) (*S3, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewS3WithClient(s3.New(sess), bucket, base), nil
}

// NewS3WithClient creates an S3-backed store with an injected client.
// Used by tests to substitute a mock s3iface.S3API.
func NewS3WithClient(client s3iface.S3API, bucket, base string) *S3 {
	return &S3{client: client, bucket: bucket, base: strings.Trim(base, "/")}
}

func (s *S3) objectKey(key string) string {
	if s.base == "" {
		return key
	}
	return s.base + "/" + key
}

// List returns the keys under prefix, sorted ascending.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.objectKey(prefix) + "/"

	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				k := aws.StringValue(obj.Key)
				if k == full {
					continue
				}
				keys = append(keys, strings.TrimPrefix(k, s.base+"/"))
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("list s3 %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns the object bytes stored under key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
				return nil, ErrNotFound
			}
		}
		return nil, fmt.Errorf("get s3 %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 %s: %w", key, err)
	}
	return data, nil
}

// Put uploads data verbatim under key.
func (s *S3) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put s3 %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every object under prefix using batched deletes.
func (s *S3) DeleteAll(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	// DeleteObjects accepts at most 1000 keys per request.
	for len(keys) > 0 {
		batch := keys
		if len(batch) > 1000 {
			batch = batch[:1000]
		}
		keys = keys[len(batch):]

		objects := make([]*s3.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(s.objectKey(k))})
		}
		_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: objects},
		})
		if err != nil {
			return fmt.Errorf("delete s3 %s: %w", prefix, err)
		}
	}
	return nil
}
