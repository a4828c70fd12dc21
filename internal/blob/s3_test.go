package blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// fakeS3 implements s3API over a map, paging List results two at a time
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    []*s3.PutObjectInput
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string]fakeObject)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, in)
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"etag"`),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"etag"`),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k].body))),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	s := newS3WithClient(newFakeS3(), "results")
	assert.Equal(t, DriverS3, s.Driver())
	exerciseStore(t, s)
}

func TestS3StorePutForwardsOptions(t *testing.T) {
	fake := newFakeS3()
	s := newS3WithClient(fake, "results")

	info, err := s.Put(context.Background(), "runs/a.csv", strings.NewReader("v"), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"run_id": "abc"},
	})
	require.NoError(t, err)

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "results", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "text/csv", info.ContentType)
	assert.Equal(t, "abc", info.Metadata["run_id"])
	assert.Equal(t, "etag", info.ETag)
	assert.Equal(t, "s3://results/runs/a.csv", info.Location)
}

func TestS3StoreListPaginates(t *testing.T) {
	s := newS3WithClient(newFakeS3(), "results")
	ctx := context.Background()
	for _, k := range []string{"p/e", "p/a", "p/c", "p/b", "p/d", "q/a"} {
		_, err := s.Put(ctx, k, strings.NewReader(k), PutOptions{})
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "p/")
	require.NoError(t, err)
	keys := make([]string, 0, len(list))
	for _, info := range list {
		keys = append(keys, info.Key)
	}
	assert.Equal(t, []string{"p/a", "p/b", "p/c", "p/d", "p/e"}, keys)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}
