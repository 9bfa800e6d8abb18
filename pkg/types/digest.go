// pkg/types/digest.go
package types

import (
	_ "crypto/sha256" // 注册 sha256/sha512，go-digest 校验时需要
	_ "crypto/sha512"
	"fmt"
	"sort"

	"github.com/opencontainers/go-digest"
)

// Digest 代表一段内容的唯一标识 (算法 + 十六进制哈希)
// 这是一个“值对象”，可比较，可直接作为 map key。
type Digest struct {
	Algorithm string
	Hex       string
}

// NewDigest 直接由目录名构造 Digest
// 磁盘上出现的任何名字都要被索引，所以这里不做校验
func NewDigest(algorithm, hex string) Digest {
	return Digest{Algorithm: algorithm, Hex: hex}
}

// ParseDigest 解析带算法前缀的引用 (例如 "sha256:abcd...")
// 取代到处 strings.Replace("sha256:", "") 的字符串手术
func ParseDigest(ref string) (Digest, error) {
	d, err := digest.Parse(ref)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid digest reference %q: %w", ref, err)
	}
	return Digest{Algorithm: d.Algorithm().String(), Hex: d.Encoded()}, nil
}

func (d Digest) String() string { return d.Algorithm + ":" + d.Hex }

func (d Digest) IsZero() bool { return d.Algorithm == "" && d.Hex == "" }

// OCI 返回 go-digest 的表示，用于内容校验
func (d Digest) OCI() digest.Digest {
	return digest.NewDigestFromEncoded(digest.Algorithm(d.Algorithm), d.Hex)
}

// DigestSet 是一组 Digest (可达集合 / 垃圾集合)
// 非并发安全，由调用方负责加锁
type DigestSet map[Digest]struct{}

func NewDigestSet(ds ...Digest) DigestSet {
	s := make(DigestSet, len(ds))
	for _, d := range ds {
		s.Add(d)
	}
	return s
}

func (s DigestSet) Add(d Digest) { s[d] = struct{}{} }

func (s DigestSet) Has(d Digest) bool {
	_, ok := s[d]
	return ok
}

func (s DigestSet) Len() int { return len(s) }

// Union 把 other 并入 s
func (s DigestSet) Union(other DigestSet) {
	for d := range other {
		s[d] = struct{}{}
	}
}

// Sorted 返回按字符串排序的切片，保证输出稳定
func (s DigestSet) Sorted() []Digest {
	out := make([]Digest, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	SortDigests(out)
	return out
}

func SortDigests(ds []Digest) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].String() < ds[j].String() })
}
