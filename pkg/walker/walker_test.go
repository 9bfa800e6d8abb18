package walker

import (
	"context"
	"testing"

	"regsweep/pkg/fixture"
	"regsweep/pkg/index"
	"regsweep/pkg/manifest"
	"regsweep/pkg/refs"
	"regsweep/pkg/storage/disk"
	"regsweep/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWalker(t *testing.T, reg *fixture.Registry) *Walker {
	t.Helper()
	driver, err := disk.NewAdapter(reg.Root)
	require.NoError(t, err)
	refMgr := refs.NewManager(driver)
	idx, err := index.NewBuilder(driver, refMgr, nil).Build(context.Background())
	require.NoError(t, err)
	return New(refMgr, manifest.NewResolver(driver, idx), nil)
}

// fakeResolver 用于构造磁盘上无法出现的结构 (例如引用环)
type fakeResolver map[types.Digest]*manifest.Content

func (f fakeResolver) Resolve(_ context.Context, d types.Digest) (*manifest.Content, error) {
	c, ok := f[d]
	if !ok {
		return nil, &manifest.NotFoundError{Digest: d}
	}
	return c, nil
}

func TestWalkTag_ManifestListFanOut(t *testing.T) {
	// 1 个 list -> 3 个 image，每个 image 有自己的 config，共享 2 个 layer
	// 1 + 3 + 3 + 2 = 9，共享 layer 只计一次
	reg := fixture.New(t)
	base := reg.Blob([]byte("layer-base"))
	app := reg.Blob([]byte("layer-app"))

	var images, configs []types.Digest
	for _, arch := range []string{"amd64", "arm64", "s390x"} {
		cfg := reg.Blob([]byte("config-" + arch))
		configs = append(configs, cfg)
		images = append(images, reg.Image(cfg, base, app))
	}
	list := reg.Index(images...)
	reg.Tag("app", "latest", list)

	set, err := newWalker(t, reg).WalkTag(context.Background(), "app", "latest")
	require.NoError(t, err)
	assert.Equal(t, 9, set.Len())

	want := append([]types.Digest{list, base, app}, images...)
	want = append(want, configs...)
	assert.ElementsMatch(t, want, set.Sorted())
}

func TestWalkTag_ManifestListDistinctLayers(t *testing.T) {
	// 1 个 list -> 2 个 image，每个 image 1 config + 2 个独立 layer => 1 + 2*4 = 9
	reg := fixture.New(t)
	var images []types.Digest
	for _, arch := range []string{"amd64", "arm64"} {
		cfg := reg.Blob([]byte("config-" + arch))
		l1 := reg.Blob([]byte("layer-1-" + arch))
		l2 := reg.Blob([]byte("layer-2-" + arch))
		images = append(images, reg.Image(cfg, l1, l2))
	}
	list := reg.Index(images...)
	reg.Tag("app", "latest", list)

	set, err := newWalker(t, reg).WalkTag(context.Background(), "app", "latest")
	require.NoError(t, err)
	assert.Equal(t, 9, set.Len())
	assert.True(t, set.Has(list))
	for _, img := range images {
		assert.True(t, set.Has(img))
	}
}

func TestWalkTag_SignedSchema1(t *testing.T) {
	reg := fixture.New(t)
	l1 := reg.Blob([]byte("legacy-1"))
	l2 := reg.Blob([]byte("legacy-2"))
	m := reg.SignedSchema1("legacy", "v1", l1, l2)
	reg.Tag("legacy", "v1", m)

	set, err := newWalker(t, reg).WalkTag(context.Background(), "legacy", "v1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Digest{m, l1, l2}, set.Sorted())
}

func TestWalkTag_CycleTerminates(t *testing.T) {
	reg := fixture.New(t)
	a := fixture.DigestOf([]byte("a"))
	b := fixture.DigestOf([]byte("b"))
	leaf := fixture.DigestOf([]byte("leaf"))
	reg.Tag("app", "loop", a)

	driver, err := disk.NewAdapter(reg.Root)
	require.NoError(t, err)
	w := New(refs.NewManager(driver), fakeResolver{
		a: {Digest: a, Kind: manifest.KindList, Children: []types.Digest{b}},
		b: {Digest: b, Kind: manifest.KindList, Children: []types.Digest{a}, Layers: []types.Digest{leaf}},
	}, nil)

	set, err := w.WalkTag(context.Background(), "app", "loop")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Digest{a, b, leaf}, set.Sorted())
}

func TestWalkTag_MissingCurrentLinkFails(t *testing.T) {
	reg := fixture.New(t)
	reg.Push("app", "v1", reg.Blob([]byte("config")))
	reg.RemoveCurrentLink("app", "v1")

	_, err := newWalker(t, reg).WalkTag(context.Background(), "app", "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, refs.ErrMissingLink)
}

func TestWalkTag_MissingChildFails(t *testing.T) {
	reg := fixture.New(t)
	ghost := fixture.DigestOf([]byte("never pushed"))
	list := reg.Index(ghost)
	reg.Tag("app", "v1", list)

	_, err := newWalker(t, reg).WalkTag(context.Background(), "app", "v1")
	assert.ErrorIs(t, err, manifest.ErrNotFound)
}

func TestWalkAll_MalformedManifestFailsPhase(t *testing.T) {
	reg := fixture.New(t)
	reg.Push("good", "v1", reg.Blob([]byte("config")))
	bad := reg.Blob([]byte(`{"schemaVersion":2}`))
	reg.Tag("bad", "v1", bad)

	_, err := newWalker(t, reg).WalkAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrMalformed)
}

func TestWalkAll_CollectsEveryFailure(t *testing.T) {
	reg := fixture.New(t)
	reg.Push("one", "v1", reg.Blob([]byte("config-1")))
	reg.Push("two", "v1", reg.Blob([]byte("config-2")))
	reg.RemoveCurrentLink("one", "v1")
	reg.Tag("two", "broken", reg.Blob([]byte(`{}`)))

	_, err := newWalker(t, reg).WalkAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, refs.ErrMissingLink)
	assert.ErrorIs(t, err, manifest.ErrMalformed)
}

func TestWalkAll_CrossRepositoryDedup(t *testing.T) {
	reg := fixture.New(t)
	shared := reg.Blob([]byte("shared-layer"))
	m1 := reg.Push("team-a/app", "v1", reg.Blob([]byte("config-a")), shared)
	m2 := reg.Push("team-b/app", "v1", reg.Blob([]byte("config-b")), shared)

	w := newWalker(t, reg)
	res, err := w.WalkAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Reachable.Has(shared))
	assert.Len(t, res.Tags, 2)
	assert.True(t, res.Tags[TagRef{Repository: "team-a/app", Tag: "v1"}].Has(m1))

	// 去掉一个仓库的 tag，共享 layer 依然可达
	w.Exclude = func(repo, _ string) bool { return repo == "team-a/app" }
	res, err = w.WalkAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Reachable.Has(shared))
	assert.True(t, res.Reachable.Has(m2))
	assert.False(t, res.Reachable.Has(m1))
}

func TestWalkAll_NoTags(t *testing.T) {
	reg := fixture.New(t)
	reg.Blob([]byte("orphan"))

	res, err := newWalker(t, reg).WalkAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Reachable.Len())
	assert.Empty(t, res.Tags)
}
