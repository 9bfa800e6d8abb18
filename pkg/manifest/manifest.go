package manifest

import (
	"errors"
	"fmt"

	"regsweep/pkg/types"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var (
	ErrNotFound  = errors.New("manifest not found in blob store")
	ErrMalformed = errors.New("malformed manifest")
)

// MediaTypeSignedSchema1 是带 JWS 签名的 Docker schema 1 manifest
const MediaTypeSignedSchema1 = "application/vnd.docker.distribution.manifest.v1+prettyjws"

// Kind 是 manifest 的分类
type Kind int

const (
	KindImage Kind = iota + 1 // 引用一个 config 和若干 layer
	KindList                  // 引用若干子 manifest (多平台)
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Content 是解析后的 manifest，只保留引用信息
type Content struct {
	Digest   types.Digest
	Kind     Kind
	Children []types.Digest // manifests[].digest
	Config   types.Digest   // config.digest，可能为空 (schema 1)
	Layers   []types.Digest // layers[].digest
}

// payload 只声明我们关心的字段，其余字段忽略
// 使用指针区分“字段不存在”和“字段为空”
type payload struct {
	MediaType string                `json:"mediaType,omitempty"`
	Config    *ocispec.Descriptor   `json:"config,omitempty"`
	Layers    []ocispec.Descriptor  `json:"layers,omitempty"`
	Manifests *[]ocispec.Descriptor `json:"manifests,omitempty"`

	// Docker schema 1 (legacy)
	FSLayers *[]struct {
		BlobSum string `json:"blobSum"`
	} `json:"fsLayers,omitempty"`
}

// NotFoundError: digest 不在索引中，或者只有链接没有 canonical 位置
type NotFoundError struct {
	Digest types.Digest
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("manifest %s: no canonical blob location", e.Digest)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// MalformedManifestError: 内容无法解析、校验失败或缺少可识别的引用字段
type MalformedManifestError struct {
	Digest types.Digest
	Reason string
	Err    error
}

func (e *MalformedManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest %s: %s: %v", e.Digest, e.Reason, e.Err)
	}
	return fmt.Sprintf("manifest %s: %s", e.Digest, e.Reason)
}

func (e *MalformedManifestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformed}
	}
	return []error{ErrMalformed, e.Err}
}
