package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"regsweep/pkg/index"
	"regsweep/pkg/layout"
	"regsweep/pkg/storage"
	"regsweep/pkg/types"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Resolver 从 Location Index 读取 manifest 内容并分类
type Resolver struct {
	driver storage.Driver
	index  *index.Index
}

func NewResolver(driver storage.Driver, idx *index.Index) *Resolver {
	return &Resolver{driver: driver, index: idx}
}

// Resolve 读取并解析 d 对应的 manifest
// 任何失败都必须上抛：把无法解析的 manifest 当成“没有引用”会让它的子节点看起来像垃圾
func (r *Resolver) Resolve(ctx context.Context, d types.Digest) (*Content, error) {
	// 1. 只从 canonical 位置读取内容
	loc, ok := r.index.Canonical(d)
	if !ok {
		return nil, &NotFoundError{Digest: d}
	}

	data, err := r.driver.Read(ctx, layout.BlobData(loc))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, &MalformedManifestError{Digest: d, Reason: "canonical location has no data", Err: err}
		}
		return nil, fmt.Errorf("read manifest %s: %w", d, err)
	}

	// 2. 校验内容确实对应这个 digest
	// 带签名的 schema 1 manifest 的 digest 是对去掉 JWS 签名后的 payload 计算的，存储的字节无法直接校验
	if !signedSchema1(data) {
		if err := verify(d, data); err != nil {
			return nil, err
		}
	}

	return Parse(d, data)
}

func signedSchema1(data []byte) bool {
	var h struct {
		MediaType  string          `json:"mediaType"`
		Signatures json.RawMessage `json:"signatures"`
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return false
	}
	return h.MediaType == MediaTypeSignedSchema1 || len(h.Signatures) > 0
}

func verify(d types.Digest, data []byte) error {
	dg := d.OCI()
	if err := dg.Validate(); err != nil {
		return &MalformedManifestError{Digest: d, Reason: "invalid digest", Err: err}
	}
	v := dg.Verifier()
	if _, err := v.Write(data); err != nil {
		return &MalformedManifestError{Digest: d, Reason: "verify content", Err: err}
	}
	if !v.Verified() {
		return &MalformedManifestError{Digest: d, Reason: "content does not match digest"}
	}
	return nil
}

// Parse 解析 manifest JSON，按字段是否存在进行分类
//   - manifests => manifest list
//   - config    => image manifest
//   - fsLayers  => schema 1 image manifest (没有 config)
//
// 两种字段同时存在时两边的引用都保留，宁可多保留也不误删
func Parse(d types.Digest, data []byte) (*Content, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &MalformedManifestError{Digest: d, Reason: "invalid json", Err: err}
	}

	c := &Content{Digest: d}

	if p.Manifests != nil {
		c.Kind = KindList
		for _, desc := range *p.Manifests {
			child, err := ref(d, "manifests", desc)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
	}

	if p.Config != nil {
		if c.Kind == 0 {
			c.Kind = KindImage
		}
		cfg, err := ref(d, "config", *p.Config)
		if err != nil {
			return nil, err
		}
		c.Config = cfg
	}

	if p.FSLayers != nil {
		if c.Kind == 0 {
			c.Kind = KindImage
		}
		for _, l := range *p.FSLayers {
			layer, err := types.ParseDigest(l.BlobSum)
			if err != nil {
				return nil, &MalformedManifestError{Digest: d, Reason: "fsLayers reference", Err: err}
			}
			c.Layers = append(c.Layers, layer)
		}
	}

	if c.Kind == 0 {
		return nil, &MalformedManifestError{Digest: d, Reason: "no manifests, config or fsLayers field"}
	}

	for _, desc := range p.Layers {
		layer, err := ref(d, "layers", desc)
		if err != nil {
			return nil, err
		}
		c.Layers = append(c.Layers, layer)
	}

	return c, nil
}

func ref(owner types.Digest, field string, desc ocispec.Descriptor) (types.Digest, error) {
	d, err := types.ParseDigest(desc.Digest.String())
	if err != nil {
		return types.Digest{}, &MalformedManifestError{Digest: owner, Reason: field + " reference", Err: err}
	}
	return d, nil
}
