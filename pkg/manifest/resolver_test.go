package manifest

import (
	"context"
	"errors"
	"testing"

	"regsweep/pkg/fixture"
	"regsweep/pkg/index"
	"regsweep/pkg/refs"
	"regsweep/pkg/storage/disk"
	"regsweep/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, reg *fixture.Registry) *Resolver {
	t.Helper()
	driver, err := disk.NewAdapter(reg.Root)
	require.NoError(t, err)
	idx, err := index.NewBuilder(driver, refs.NewManager(driver), nil).Build(context.Background())
	require.NoError(t, err)
	return NewResolver(driver, idx)
}

func TestResolve_Image(t *testing.T) {
	reg := fixture.New(t)
	cfg := reg.Blob([]byte("config"))
	l1 := reg.Blob([]byte("layer-1"))
	l2 := reg.Blob([]byte("layer-2"))
	m := reg.Image(cfg, l1, l2)

	c, err := newResolver(t, reg).Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, KindImage, c.Kind)
	assert.Equal(t, cfg, c.Config)
	assert.Equal(t, []types.Digest{l1, l2}, c.Layers)
	assert.Empty(t, c.Children)
}

func TestResolve_List(t *testing.T) {
	reg := fixture.New(t)
	a := reg.Image(reg.Blob([]byte("cfg-a")))
	b := reg.Image(reg.Blob([]byte("cfg-b")))
	list := reg.Index(a, b)

	c, err := newResolver(t, reg).Resolve(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, KindList, c.Kind)
	assert.Equal(t, []types.Digest{a, b}, c.Children)
	assert.True(t, c.Config.IsZero())
}

func TestResolve_NotFound(t *testing.T) {
	reg := fixture.New(t)
	ghost := fixture.DigestOf([]byte("ghost"))
	// 只有链接，没有 canonical blob
	reg.RevisionLink("app", ghost)

	_, err := newResolver(t, reg).Resolve(context.Background(), ghost)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, ghost, nf.Digest)
}

func TestResolve_DigestMismatch(t *testing.T) {
	reg := fixture.New(t)
	d := fixture.DigestOf([]byte(`{"config":{}}`))
	reg.RawBlob(d, []byte(`{"manifests":[]}`))

	_, err := newResolver(t, reg).Resolve(context.Background(), d)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestResolve_SignedSchema1(t *testing.T) {
	// 存储的内容带签名，digest 只覆盖 payload，不能拿整段内容去校验
	reg := fixture.New(t)
	l1 := reg.Blob([]byte("layer-1"))
	l2 := reg.Blob([]byte("layer-2"))
	m := reg.SignedSchema1("legacy/app", "v1", l1, l2)

	c, err := newResolver(t, reg).Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, KindImage, c.Kind)
	assert.Equal(t, []types.Digest{l1, l2}, c.Layers)
	assert.True(t, c.Config.IsZero())
}

func TestSignedSchema1(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"signatures field", `{"schemaVersion":1,"signatures":[{"signature":"x"}]}`, true},
		{"prettyjws media type", `{"mediaType":"` + MediaTypeSignedSchema1 + `"}`, true},
		{"unsigned schema 1", `{"schemaVersion":1,"fsLayers":[]}`, false},
		{"image manifest", `{"schemaVersion":2,"config":{}}`, false},
		{"not json", `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, signedSchema1([]byte(tt.payload)))
		})
	}
}

func TestParse(t *testing.T) {
	owner := fixture.DigestOf([]byte("owner"))
	a := fixture.DigestOf([]byte("a"))
	b := fixture.DigestOf([]byte("b"))

	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		wantKind  Kind
		children  int
		layers    int
		hasConfig bool
	}{
		{
			name:     "empty manifest list",
			payload:  `{"schemaVersion":2,"manifests":[]}`,
			wantKind: KindList,
		},
		{
			name:      "image without layers",
			payload:   `{"schemaVersion":2,"config":{"digest":"` + a.String() + `"}}`,
			wantKind:  KindImage,
			hasConfig: true,
		},
		{
			name: "both fields keep both reference sets",
			payload: `{"manifests":[{"digest":"` + a.String() + `"}],` +
				`"config":{"digest":"` + b.String() + `"},"layers":[{"digest":"` + a.String() + `"}]}`,
			wantKind:  KindList,
			children:  1,
			layers:    1,
			hasConfig: true,
		},
		{
			name:     "schema 1 fsLayers",
			payload:  `{"schemaVersion":1,"fsLayers":[{"blobSum":"` + a.String() + `"},{"blobSum":"` + b.String() + `"}]}`,
			wantKind: KindImage,
			layers:   2,
		},
		{
			name:    "no reference fields",
			payload: `{"schemaVersion":2,"layers":[{"digest":"` + a.String() + `"}]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `not json`,
			wantErr: true,
		},
		{
			name:    "bad child reference",
			payload: `{"manifests":[{"digest":"sha256:nothex"}]}`,
			wantErr: true,
		},
		{
			name:    "bad blobSum",
			payload: `{"fsLayers":[{"blobSum":"abc"}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(owner, []byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformed)
				var me *MalformedManifestError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, owner, me.Digest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Len(t, c.Children, tt.children)
			assert.Len(t, c.Layers, tt.layers)
			assert.Equal(t, tt.hasConfig, !c.Config.IsZero())
		})
	}
}
