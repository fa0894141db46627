package blobstore

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	awsrequest "github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// fakeS3 implements the subset of s3iface.S3API the store uses, holding
// objects in a map.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input,
	fn func(*s3.ListObjectsV2Output, bool) bool, opts ...awsrequest.Option) error {
	var contents []*s3.Object
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		contents = append(contents, &s3.Object{Key: aws.String(k)})
	}
	fn(&s3.ListObjectsV2Output{Contents: contents}, true)
	return nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput,
	opts ...awsrequest.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(input.Key)]
	if !ok {
		return nil, awsNotFound{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput,
	opts ...awsrequest.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(input.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(ctx aws.Context, input *s3.DeleteObjectsInput,
	opts ...awsrequest.Option) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range input.Delete.Objects {
		delete(f.objects, aws.StringValue(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// awsNotFound mimics the awserr.Error returned for a missing key.
type awsNotFound struct{}

func (awsNotFound) Error() string   { return "NoSuchKey: not found" }
func (awsNotFound) Code() string    { return s3.ErrCodeNoSuchKey }
func (awsNotFound) Message() string { return "not found" }
func (awsNotFound) OrigErr() error  { return nil }

func TestS3PutGetList(t *testing.T) {
	fake := newFakeS3()
	store := NewS3WithClient(fake, "test-bucket", "raw")
	ctx := context.Background()

	if err := store.Put(ctx, "day=20231101/010000Z.json.gz", []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "day=20231101/000000Z.json.gz", []byte("zero")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, ok := fake.objects["raw/day=20231101/000000Z.json.gz"]; !ok {
		t.Fatalf("object not stored under base prefix: %v", fake.objects)
	}

	keys, err := store.List(ctx, "day=20231101")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"day=20231101/000000Z.json.gz", "day=20231101/010000Z.json.gz"}
	if len(keys) != len(want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	data, err := store.Get(ctx, "day=20231101/000000Z.json.gz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "zero" {
		t.Errorf("Get = %q, want %q", data, "zero")
	}
}

func TestS3GetMissing(t *testing.T) {
	store := NewS3WithClient(newFakeS3(), "test-bucket", "raw")

	_, err := store.Get(context.Background(), "day=20231101/nope.json.gz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing key: err = %v, want ErrNotFound", err)
	}
}

func TestS3DeleteAll(t *testing.T) {
	fake := newFakeS3()
	store := NewS3WithClient(fake, "test-bucket", "raw")
	ctx := context.Background()

	for _, key := range []string{"day=20231101/000000Z.json.gz", "day=20231101/010000Z.json.gz"} {
		if err := store.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := store.Put(ctx, "day=20231102/000000Z.json.gz", []byte("keep")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.DeleteAll(ctx, "day=20231101"); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	keys, err := store.List(ctx, "day=20231101")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys remain after DeleteAll: %v", keys)
	}

	other, err := store.List(ctx, "day=20231102")
	if err != nil {
		t.Fatalf("List other day: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("other partition affected by DeleteAll: %v", other)
	}
}
