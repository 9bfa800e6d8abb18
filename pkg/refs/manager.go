package refs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"regsweep/pkg/fanout"
	"regsweep/pkg/layout"
	"regsweep/pkg/storage"
	"regsweep/pkg/types"
)

var ErrMissingLink = errors.New("tag current link missing or unreadable")

// MissingLinkError 表示 tag 的 current 指针不存在或无法解析
// 按安全策略，这会让整个回收周期中止
type MissingLinkError struct {
	Repository string
	Tag        string
	Path       string
	Err        error
}

func (e *MissingLinkError) Error() string {
	return fmt.Sprintf("tag %s:%s: %s: %v", e.Repository, e.Tag, e.Path, e.Err)
}

func (e *MissingLinkError) Unwrap() []error { return []error{ErrMissingLink, e.Err} }

// Manager 负责读取引用 (仓库、tag 以及 tag 的 current 指针)
type Manager struct {
	driver storage.Driver
}

func NewManager(driver storage.Driver) *Manager {
	return &Manager{driver: driver}
}

// Repositories 递归发现 repositories/ 下的所有仓库
// 含有 _manifests 或 _layers 的目录是一个仓库；其余目录继续向下找 (例如 library/ubuntu)
// repositories/ 本身不存在视为错误：在那种情况下所有 blob 都会被当成垃圾
func (m *Manager) Repositories(ctx context.Context) ([]string, error) {
	top, err := m.driver.List(ctx, layout.RepositoriesDir)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	var (
		mu    sync.Mutex
		repos []string
		g     fanout.Group
	)

	var discover func(name string)
	discover = func(name string) {
		g.Go(func() error {
			children, err := m.driver.List(ctx, layout.Repository(name))
			if err != nil {
				return fmt.Errorf("discover repository %s: %w", name, err)
			}

			isRepo := false
			for _, c := range children {
				if c == layout.ManifestsDir || c == layout.LayersDir {
					isRepo = true
					break
				}
			}
			if isRepo {
				mu.Lock()
				repos = append(repos, name)
				mu.Unlock()
			}

			// 以 "_" 开头的是仓库内部目录 (_layers/_manifests/_uploads)
			for _, c := range children {
				if strings.HasPrefix(c, "_") {
					continue
				}
				discover(path.Join(name, c))
			}
			return nil
		})
	}

	for _, name := range top {
		if strings.HasPrefix(name, "_") {
			continue
		}
		discover(name)
	}

	err = g.Wait()
	sort.Strings(repos)
	return repos, err
}

// Tags 返回仓库下的所有 tag；没有 tags 目录的仓库返回空
func (m *Manager) Tags(ctx context.Context, repo string) ([]string, error) {
	tags, err := m.driver.List(ctx, layout.Tags(repo))
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", repo, err)
	}
	sort.Strings(tags)
	return tags, nil
}

// ResolveTag 读取 tag 的 current 指针，返回它指向的 manifest digest
func (m *Manager) ResolveTag(ctx context.Context, repo, tag string) (types.Digest, error) {
	linkPath := layout.TagCurrentLink(repo, tag)

	data, err := m.driver.Read(ctx, linkPath)
	if storage.IsNotFound(err) {
		return types.Digest{}, &MissingLinkError{Repository: repo, Tag: tag, Path: linkPath, Err: err}
	}
	if err != nil {
		return types.Digest{}, err
	}

	// 清理换行符 (手工编辑时可能会自动加 \n)
	d, err := types.ParseDigest(strings.TrimSpace(string(data)))
	if err != nil {
		return types.Digest{}, &MissingLinkError{Repository: repo, Tag: tag, Path: linkPath, Err: err}
	}
	return d, nil
}
