package commands

import (
	"bytes"
	"testing"

	"regsweep/pkg/fixture"
	"regsweep/pkg/layout"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute 在一个真实的存储树上运行 CLI
// flag 在多次 Execute 之间会保留，所以每次都显式传入所有相关参数
func execute(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Chdir(t.TempDir()) // 避免读到工作目录里的 regsweep.yaml

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	full := append([]string{"--storage-root", root, "--log-level", "error"}, args...)
	rootCmd.SetArgs(full)
	err := rootCmd.Execute()
	return out.String(), err
}

// setupRegistry: app:v1 可达，另有一个孤立的 blob
func setupRegistry(t *testing.T) (*fixture.Registry, string) {
	reg := fixture.New(t)
	reg.Push("app", "v1", reg.Blob([]byte("config")), reg.Blob([]byte("layer")))
	orphan := reg.Blob([]byte("orphan"))
	return reg, orphan.String()
}

func TestIndexCommand(t *testing.T) {
	reg, orphan := setupRegistry(t)

	out, err := execute(t, reg.Root, "index", "--list=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Digests:")
	assert.Contains(t, out, "layer-link")

	out, err = execute(t, reg.Root, "index", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, orphan)
}

func TestReachableAndGarbageCommands(t *testing.T) {
	reg, orphan := setupRegistry(t)

	out, err := execute(t, reg.Root, "reachable", "--by-tag=false")
	require.NoError(t, err)
	assert.Contains(t, out, fixture.DigestOf([]byte("layer")).String())
	assert.NotContains(t, out, orphan)

	out, err = execute(t, reg.Root, "reachable", "--by-tag")
	require.NoError(t, err)
	assert.Contains(t, out, "app:v1")

	out, err = execute(t, reg.Root, "garbage")
	require.NoError(t, err)
	assert.Contains(t, out, orphan)
	assert.Contains(t, out, "1 of 4 digests are unreachable")
	assert.True(t, reg.Exists(layout.BlobDir(fixture.DigestOf([]byte("orphan")))), "garbage 只读")
}

func TestRunCommand(t *testing.T) {
	reg, _ := setupRegistry(t)
	orphan := fixture.DigestOf([]byte("orphan"))

	// 1. dry-run 不删除
	out, err := execute(t, reg.Root, "run", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")
	assert.True(t, reg.Exists(layout.BlobDir(orphan)))

	// 2. 真正执行
	out, err = execute(t, reg.Root, "run", "--dry-run=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Garbage:")
	assert.False(t, reg.Exists(layout.BlobDir(orphan)))
	assert.True(t, reg.Exists(layout.BlobDir(fixture.DigestOf([]byte("layer")))))
}

func TestRunCommand_AbortsOnBrokenTag(t *testing.T) {
	reg, _ := setupRegistry(t)
	reg.RemoveCurrentLink("app", "v1")

	out, err := execute(t, reg.Root, "run", "--dry-run=false")
	require.Error(t, err)
	assert.Contains(t, out, "aborted in walk phase")
	assert.True(t, reg.Exists(layout.BlobDir(fixture.DigestOf([]byte("orphan")))))
}
