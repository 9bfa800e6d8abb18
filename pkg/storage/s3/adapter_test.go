package s3

import (
	"bytes"
	"context"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"regsweep/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. 内存版 S3 (Fake Client)
// 只实现 Adapter 用到的三个调用，足以覆盖 Delimiter 语义
// -----------------------------------------------------------------------------

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes int
}

func newFakeS3(keys ...string) *fakeS3 {
	f := &fakeS3{objects: make(map[string][]byte)}
	for _, k := range keys {
		f.objects[k] = []byte("content of " + k)
	}
	return f
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes++
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// -----------------------------------------------------------------------------
// 2. 单元测试
// -----------------------------------------------------------------------------

func TestAdapter_ListReadDelete(t *testing.T) {
	fake := newFakeS3(
		"docker/registry/v2/blobs/sha256/aa/aa11/data",
		"docker/registry/v2/blobs/sha256/aa/aa22/data",
		"docker/registry/v2/blobs/sha256/bb/bb11/data",
		"docker/registry/v2/repositories/app/_manifests/tags/v1/current/link",
	)
	store := NewWithClient(fake, "registry", "/docker/registry/v2/")
	ctx := context.Background()

	// 1. 目录语义
	names, err := store.List(ctx, "blobs/sha256")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aa", "bb"}, names)

	names, err = store.List(ctx, "blobs/sha256/aa")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aa11", "aa22"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"blobs", "repositories"}, names)

	// 2. 文件读取
	data, err := store.Read(ctx, "blobs/sha256/aa/aa11/data")
	require.NoError(t, err)
	assert.Equal(t, "content of docker/registry/v2/blobs/sha256/aa/aa11/data", string(data))

	// 3. 递归删除，不能误删同前缀的兄弟 (aa1 vs aa11)
	require.NoError(t, store.Delete(ctx, "blobs/sha256/aa/aa11"))
	names, err = store.List(ctx, "blobs/sha256/aa")
	require.NoError(t, err)
	assert.Equal(t, []string{"aa22"}, names)
}

func TestAdapter_NotFound(t *testing.T) {
	store := NewWithClient(newFakeS3(), "registry", "")
	ctx := context.Background()

	_, err := store.List(ctx, "repositories")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Read(ctx, "blobs/sha256/ff/ff/data")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdapter_DeleteBatches(t *testing.T) {
	keys := make([]string, 0, 2500)
	for i := 0; i < 2500; i++ {
		keys = append(keys, "repositories/big/_layers/sha256/x/"+strings.Repeat("k", i%7+1)+"-"+time.Duration(i).String())
	}
	fake := newFakeS3(keys...)
	store := NewWithClient(fake, "registry", "")

	require.NoError(t, store.Delete(context.Background(), "repositories/big"))
	assert.Empty(t, fake.objects)
	// 2500 个子对象 + path 本身 => 3 批
	assert.Equal(t, 3, fake.deletes)
}

func TestAdapter_RefusesRoot(t *testing.T) {
	store := NewWithClient(newFakeS3("blobs/x"), "registry", "")
	assert.Error(t, store.Delete(context.Background(), ""))
	assert.Error(t, store.Delete(context.Background(), "/"))
}

// -----------------------------------------------------------------------------
// 3. 集成测试 (需要本地 MinIO)
// -----------------------------------------------------------------------------

func TestAdapter_MinIOIntegration(t *testing.T) {
	conn, err := net.DialTimeout("tcp", "localhost:9000", 1*time.Second)
	if err != nil {
		t.Skipf("Skipping S3 integration tests (MinIO down): %v", err)
	}
	conn.Close()

	ctx := context.Background()
	store, err := NewAdapter(ctx, Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "registry",
		Prefix:          "regsweep-it",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	})
	require.NoError(t, err)

	_, err = store.List(ctx, "does-not-exist")
	if err != nil && !storage.IsNotFound(err) {
		t.Skipf("bucket not usable: %v", err)
	}
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
