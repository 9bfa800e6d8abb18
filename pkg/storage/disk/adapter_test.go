package disk

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"regsweep/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	writeFile(t, tmpDir, "blobs/sha256/aa/aa11/data", "hello world")
	writeFile(t, tmpDir, "blobs/sha256/aa/aa22/data", "bye")

	// 2. 测试 List
	names, err := store.List(ctx, "blobs/sha256/aa")
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"aa11", "aa22"}, names)

	// 3. 测试 Read
	data, err := store.Read(ctx, "blobs/sha256/aa/aa11/data")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	// 4. 测试 Delete (递归)
	require.NoError(t, store.Delete(ctx, "blobs/sha256/aa/aa11"))
	_, err = os.Stat(filepath.Join(tmpDir, "blobs/sha256/aa/aa11"))
	assert.True(t, os.IsNotExist(err), "目录应该被整体删除")

	// 重复删除不是错误
	assert.NoError(t, store.Delete(ctx, "blobs/sha256/aa/aa11"))
}

func TestDiskAdapter_NotFound(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.List(ctx, "repositories")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Read(ctx, "blobs/sha256/ff/ffff/data")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, storage.IsNotFound(err))
}

func TestDiskAdapter_ReadError(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	locked := filepath.Join(tmpDir, "blobs")
	require.NoError(t, os.MkdirAll(locked, 0755))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	_, err = store.List(context.Background(), "blobs")
	var readErr *storage.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "list", readErr.Op)
	assert.False(t, storage.IsNotFound(err))
}

func TestDiskAdapter_RefusesRoot(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	assert.Error(t, store.Delete(context.Background(), ""))
	assert.Error(t, store.Delete(context.Background(), "."))
	_, err = os.Stat(tmpDir)
	assert.NoError(t, err)
}

func TestNewAdapter_MissingRoot(t *testing.T) {
	_, err := NewAdapter(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDiskAdapter_CancelledContext(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
