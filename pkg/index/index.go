// pkg/index/index.go
package index

import (
	"errors"
	"sort"
	"sync"

	"regsweep/pkg/types"
)

// Index 是一次回收周期内的 Location Index：digest -> 位置集合
// 每个周期都重新构建，绝不跨周期复用 (防止残留的旧位置)
type Index struct {
	mu      sync.RWMutex
	entries map[types.Digest]map[string]types.BlobLocation

	// 单个仓库子树的扫描失败不会中止构建，但要记录下来
	repoErrs []error
}

// New 返回一个空索引
func New() *Index {
	return &Index{entries: make(map[types.Digest]map[string]types.BlobLocation)}
}

// Add 记录一个位置；同一路径重复添加是幂等的
func (i *Index) Add(d types.Digest, loc types.BlobLocation) {
	i.mu.Lock()
	defer i.mu.Unlock()

	locs, ok := i.entries[d]
	if !ok {
		locs = make(map[string]types.BlobLocation)
		i.entries[d] = locs
	}
	locs[loc.Path] = loc
}

func (i *Index) recordRepoError(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.repoErrs = append(i.repoErrs, err)
}

// RepositoryErrors 返回扫描仓库子树时遇到的全部错误 (errors.Join)
func (i *Index) RepositoryErrors() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return errors.Join(i.repoErrs...)
}

func (i *Index) RepositoryErrorCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.repoErrs)
}

// Has 检查 digest 是否出现在任意位置
func (i *Index) Has(d types.Digest) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.entries[d]
	return ok
}

// Locations 返回 digest 的所有位置，按路径排序
func (i *Index) Locations(d types.Digest) []types.BlobLocation {
	i.mu.RLock()
	defer i.mu.RUnlock()

	locs := make([]types.BlobLocation, 0, len(i.entries[d]))
	for _, l := range i.entries[d] {
		locs = append(locs, l)
	}
	sort.Slice(locs, func(a, b int) bool { return locs[a].Path < locs[b].Path })
	return locs
}

// Canonical 返回 digest 在 blob 存储中的内容位置
// 链接位置永远不会作为内容来源
func (i *Index) Canonical(d types.Digest) (types.BlobLocation, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, l := range i.entries[d] {
		if l.IsCanonical() {
			return l, true
		}
	}
	return types.BlobLocation{}, false
}

// Digests 返回所有 key，按字符串排序
func (i *Index) Digests() []types.Digest {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]types.Digest, 0, len(i.entries))
	for d := range i.entries {
		out = append(out, d)
	}
	types.SortDigests(out)
	return out
}

// Len 返回 digest 数量
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// LocationCount 返回所有位置的总数
func (i *Index) LocationCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	n := 0
	for _, locs := range i.entries {
		n += len(locs)
	}
	return n
}

// CountByKind 按位置类型统计，用于报告
func (i *Index) CountByKind() map[types.LocationKind]int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make(map[types.LocationKind]int)
	for _, locs := range i.entries {
		for _, l := range locs {
			out[l.Kind]++
		}
	}
	return out
}
