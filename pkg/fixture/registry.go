// Package fixture writes registry v2 storage trees to a temporary directory.
// It is shared by the tests of the index, walker, sweep and gc packages.
package fixture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"regsweep/pkg/layout"
	"regsweep/pkg/types"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

// Registry 是一棵正在构造中的存储树
type Registry struct {
	t    *testing.T
	Root string
}

// New 在 t.TempDir() 下创建空的 blobs/ 与 repositories/
func New(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, layout.BlobsDir), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, layout.RepositoriesDir), 0755))
	return &Registry{t: t, Root: root}
}

// DigestOf 计算内容的 sha256 digest
func DigestOf(data []byte) types.Digest {
	sum := sha256.Sum256(data)
	return types.NewDigest("sha256", hex.EncodeToString(sum[:]))
}

// Abs 返回相对路径对应的物理路径
func (r *Registry) Abs(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// Exists 检查相对路径是否还在磁盘上
func (r *Registry) Exists(rel string) bool {
	_, err := os.Stat(r.Abs(rel))
	return err == nil
}

func (r *Registry) write(rel string, data []byte) {
	r.t.Helper()
	p := r.Abs(rel)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(r.t, os.WriteFile(p, data, 0644))
}

// Blob 写入一个 canonical blob，返回它的 digest
func (r *Registry) Blob(data []byte) types.Digest {
	r.t.Helper()
	d := DigestOf(data)
	r.write(layout.BlobData(types.BlobLocation{Path: layout.BlobDir(d)}), data)
	return d
}

// RawBlob 以指定 digest 写入内容 (用于构造损坏的数据)
func (r *Registry) RawBlob(d types.Digest, data []byte) {
	r.t.Helper()
	r.write(layout.BlobData(types.BlobLocation{Path: layout.BlobDir(d)}), data)
}

func descriptor(mediaType string, d types.Digest) ocispec.Descriptor {
	return ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.Digest(d.String()),
		Size:      1,
	}
}

// Image 写入 config + layers 以及引用它们的 image manifest
func (r *Registry) Image(config types.Digest, layers ...types.Digest) types.Digest {
	r.t.Helper()
	m := ocispec.Manifest{
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    descriptor(ocispec.MediaTypeImageConfig, config),
	}
	m.SchemaVersion = 2
	for _, l := range layers {
		m.Layers = append(m.Layers, descriptor(ocispec.MediaTypeImageLayerGzip, l))
	}
	data, err := json.Marshal(m)
	require.NoError(r.t, err)
	return r.Blob(data)
}

// Index 写入引用 children 的 manifest list
func (r *Registry) Index(children ...types.Digest) types.Digest {
	r.t.Helper()
	idx := ocispec.Index{MediaType: ocispec.MediaTypeImageIndex}
	idx.SchemaVersion = 2
	idx.Manifests = []ocispec.Descriptor{}
	for _, c := range children {
		idx.Manifests = append(idx.Manifests, descriptor(ocispec.MediaTypeImageManifest, c))
	}
	data, err := json.Marshal(idx)
	require.NoError(r.t, err)
	return r.Blob(data)
}

// SignedSchema1 写入带 JWS 签名的 schema 1 manifest
// 与 registry 一致：digest 按去掉签名后的 payload 计算，存储的内容带着签名
func (r *Registry) SignedSchema1(name, tag string, layers ...types.Digest) types.Digest {
	r.t.Helper()
	fsLayers := make([]string, 0, len(layers))
	for _, l := range layers {
		fsLayers = append(fsLayers, `{"blobSum":"`+l.String()+`"}`)
	}
	payload := `{"schemaVersion":1,"name":"` + name + `","tag":"` + tag + `","architecture":"amd64",` +
		`"fsLayers":[` + strings.Join(fsLayers, ",") + `]}`
	d := DigestOf([]byte(payload))

	signed := strings.TrimSuffix(payload, "}") +
		`,"signatures":[{"header":{"alg":"ES256"},"signature":"c2ln","protected":"cHJvdGVjdGVk"}]}`
	r.RawBlob(d, []byte(signed))
	return d
}

func link(d types.Digest) []byte { return []byte(d.String()) }

// LayerLink 写入 repositories/<repo>/_layers/<alg>/<hex>/link
func (r *Registry) LayerLink(repo string, d types.Digest) string {
	r.t.Helper()
	rel := layout.Layers(repo) + "/" + d.Algorithm + "/" + d.Hex
	r.write(rel+"/"+layout.LinkFile, link(d))
	return rel
}

// RevisionLink 写入 repositories/<repo>/_manifests/revisions/<alg>/<hex>/link
func (r *Registry) RevisionLink(repo string, d types.Digest) string {
	r.t.Helper()
	rel := layout.Revisions(repo) + "/" + d.Algorithm + "/" + d.Hex
	r.write(rel+"/"+layout.LinkFile, link(d))
	return rel
}

// TagIndexLink 写入 repositories/<repo>/_manifests/tags/<tag>/index/<alg>/<hex>/link
func (r *Registry) TagIndexLink(repo, tag string, d types.Digest) string {
	r.t.Helper()
	rel := layout.TagIndex(repo, tag) + "/" + d.Algorithm + "/" + d.Hex
	r.write(rel+"/"+layout.LinkFile, link(d))
	return rel
}

// Tag 像 registry 推送一样写入 tag：current 指针 + index 链接 + revision 链接
func (r *Registry) Tag(repo, tag string, manifest types.Digest) {
	r.t.Helper()
	r.write(layout.TagCurrentLink(repo, tag), link(manifest))
	r.TagIndexLink(repo, tag, manifest)
	r.RevisionLink(repo, manifest)
}

// Push 写入一个完整镜像并打 tag，返回 manifest digest
// 会为 config 和 layers 写入仓库级的 layer 链接
func (r *Registry) Push(repo, tag string, config types.Digest, layers ...types.Digest) types.Digest {
	r.t.Helper()
	m := r.Image(config, layers...)
	r.LayerLink(repo, config)
	for _, l := range layers {
		r.LayerLink(repo, l)
	}
	r.Tag(repo, tag, m)
	return m
}

// RemoveTag 删除整个 tag 目录 (模拟用户删除 tag)
func (r *Registry) RemoveTag(repo, tag string) {
	r.t.Helper()
	require.NoError(r.t, os.RemoveAll(r.Abs(layout.Tag(repo, tag))))
}

// RemoveCurrentLink 只删除 current 指针，留下损坏的 tag
func (r *Registry) RemoveCurrentLink(repo, tag string) {
	r.t.Helper()
	require.NoError(r.t, os.Remove(r.Abs(layout.TagCurrentLink(repo, tag))))
}
