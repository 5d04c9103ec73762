package assetstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client/metadata"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
)

// fakeS3 serves the object calls used by S3Store from a map.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return b, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	b, err := f.get(aws.StringValue(in.Key))
	if err != nil {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	b, err := f.get(aws.StringValue(in.Key))
	if err != nil {
		return nil, err
	}
	if in.Range != nil {
		var start, end int
		if _, err := fmt.Sscanf(aws.StringValue(in.Range), "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if end >= len(b) {
			end = len(b) - 1
		}
		b = b[start : end+1]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

// PutObjectRequest is used by s3manager for single part uploads.
// The object is stored when the request is sent.
func (f *fakeS3) PutObjectRequest(in *s3.PutObjectInput) (*request.Request, *s3.PutObjectOutput) {
	out := &s3.PutObjectOutput{}
	handlers := request.Handlers{}
	handlers.Send.PushBack(func(r *request.Request) {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			r.Error = err
			return
		}
		f.mu.Lock()
		f.objects[aws.StringValue(in.Key)] = b
		f.mu.Unlock()
	})
	op := &request.Operation{Name: "PutObject", HTTPMethod: "PUT", HTTPPath: "/"}
	return request.New(aws.Config{}, metadata.ClientInfo{}, handlers, nil, op, in, out), out
}

func (f *fakeS3) CopyObjectWithContext(ctx aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	copySource, err := url.PathUnescape(aws.StringValue(in.CopySource))
	if err != nil {
		return nil, err
	}
	b, err := f.get(strings.SplitN(copySource, "/", 2)[1])
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.StringValue(in.Key)] = b
	f.mu.Unlock()
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.StringValue(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreSuite(t *testing.T) {
	s3Store := NewS3Store(newFakeS3(), "bucket", "assets", "")
	t.Cleanup(func() {
		s3Store.Close()
	})
	testAssetStore(t, s3Store)
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	client.objects["thumbs/a"] = []byte("0123456789")

	store := NewS3Store(client, "bucket", "thumbs", "https://cdn.example.com/")

	t.Run("Download", func(t *testing.T) {
		b, err := download(ctx, store, "a", BytesRange{})
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("0123456789"), b)
		}
	})

	t.Run("Download range", func(t *testing.T) {
		b, err := download(ctx, store, "a", NewBytesRange(3, 4))
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("3456"), b)
		}
		b, err = download(ctx, store, "a", LastBytes(2))
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("89"), b)
		}
	})

	t.Run("Download not found", func(t *testing.T) {
		_, err := download(ctx, store, "missing", BytesRange{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Upload without overwrite onto existing", func(t *testing.T) {
		err := store.Upload(ctx, "a", bytes.NewReader([]byte("x")), false)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("Copy", func(t *testing.T) {
		err := store.Copy(ctx, "a", "b")
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("0123456789"), client.objects["thumbs/b"])
		}
		assert.ErrorIs(t, store.Copy(ctx, "a", "b"), ErrAlreadyExists)
		assert.ErrorIs(t, store.Copy(ctx, "missing", "c"), ErrNotFound)
	})

	t.Run("Upload", func(t *testing.T) {
		err := store.Upload(ctx, "up", bytes.NewReader([]byte("uploaded")), false)
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("uploaded"), client.objects["thumbs/up"])
		}
	})

	t.Run("Object names are not cleaned", func(t *testing.T) {
		for _, key := range []string{"x/y", "x//y/", "../x"} {
			assert.NoError(t, store.Upload(ctx, key, bytes.NewReader([]byte(key)), false))
		}
		assert.Equal(t, []byte("x/y"), client.objects["thumbs/x/y"])
		assert.Equal(t, []byte("x//y/"), client.objects["thumbs/x//y/"])
		assert.Equal(t, []byte("../x"), client.objects["thumbs/../x"])
		_, ok := client.objects["x"]
		assert.False(t, ok, "keys must not escape the prefix")
	})

	t.Run("Prefix is trimmed", func(t *testing.T) {
		trimmed := NewS3Store(client, "bucket", "/thumbs/", "")
		b, err := download(ctx, trimmed, "a", BytesRange{})
		if assert.NoError(t, err) {
			assert.Equal(t, []byte("0123456789"), b)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "b"))
		_, err := download(ctx, store, "b", BytesRange{})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, store.Delete(ctx, "b"))
	})

	t.Run("PublicURL", func(t *testing.T) {
		u, ok := store.PublicURL("app 1_abc_Resized")
		assert.True(t, ok)
		assert.Equal(t, "https://cdn.example.com/thumbs/app%201_abc_Resized", u)

		_, ok = NewS3Store(client, "bucket", "", "").PublicURL("a")
		assert.False(t, ok)

		// dot segments would be resolved by URL clients
		_, ok = store.PublicURL("../x")
		assert.False(t, ok)
	})
}
