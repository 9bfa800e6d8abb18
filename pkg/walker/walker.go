// Package walker computes the set of digests reachable from repository tags.
package walker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"regsweep/pkg/fanout"
	"regsweep/pkg/manifest"
	"regsweep/pkg/refs"
	"regsweep/pkg/types"
)

// Resolver 是 Walker 对 manifest 解析的依赖
type Resolver interface {
	Resolve(ctx context.Context, d types.Digest) (*manifest.Content, error)
}

// TagRef 标识一个 tag
type TagRef struct {
	Repository string
	Tag        string
}

func (r TagRef) String() string { return r.Repository + ":" + r.Tag }

// Result 是一次完整遍历的结果
type Result struct {
	Reachable types.DigestSet
	Tags      map[TagRef]types.DigestSet // 每个 tag 的闭包，用于报告
}

// Walker 从 tag 出发计算可达闭包
type Walker struct {
	refs     *refs.Manager
	resolver Resolver
	logger   *slog.Logger

	// Exclude 返回 true 的 tag 不作为可达性的起点
	Exclude func(repo, tag string) bool
}

func New(refMgr *refs.Manager, resolver Resolver, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{refs: refMgr, resolver: resolver, logger: logger}
}

// WalkTag 返回 tag 的可达闭包：current 指向的 manifest 及其递归引用的所有 digest
func (w *Walker) WalkTag(ctx context.Context, repo, tag string) (types.DigestSet, error) {
	root, err := w.refs.ResolveTag(ctx, repo, tag)
	if err != nil {
		return nil, err
	}

	reachable := types.NewDigestSet()
	if err := w.visit(ctx, root, types.NewDigestSet(), reachable); err != nil {
		return nil, fmt.Errorf("walk %s:%s: %w", repo, tag, err)
	}
	return reachable, nil
}

// visit 递归展开 manifest；visited 只记录已展开的 manifest，引用环必然终止
// 同一个 digest 先作为叶子出现、后作为 manifest 被引用时依然会被展开
func (w *Walker) visit(ctx context.Context, d types.Digest, visited, reachable types.DigestSet) error {
	if visited.Has(d) {
		return nil
	}
	visited.Add(d)
	reachable.Add(d)

	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := w.resolver.Resolve(ctx, d)
	if err != nil {
		return err
	}

	for _, child := range c.Children {
		if err := w.visit(ctx, child, visited, reachable); err != nil {
			return err
		}
	}

	// config 和 layers 是叶子节点，不再解析
	if !c.Config.IsZero() {
		reachable.Add(c.Config)
	}
	for _, l := range c.Layers {
		reachable.Add(l)
	}
	return nil
}

// WalkAll 并发遍历所有仓库的所有 tag，合并可达集合
// 任意一个 tag 失败都会让整个阶段失败 (在所有兄弟任务结束之后)
func (w *Walker) WalkAll(ctx context.Context) (*Result, error) {
	start := time.Now()

	repos, err := w.refs.Repositories(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		res = &Result{
			Reachable: types.NewDigestSet(),
			Tags:      make(map[TagRef]types.DigestSet),
		}
		g fanout.Group
	)

	for _, repo := range repos {
		g.Go(func() error {
			tags, err := w.refs.Tags(ctx, repo)
			if err != nil {
				return err
			}

			var tg fanout.Group
			for _, tag := range tags {
				if w.Exclude != nil && w.Exclude(repo, tag) {
					w.logger.Debug("walker: tag excluded", slog.String("repo", repo), slog.String("tag", tag))
					continue
				}
				tg.Go(func() error {
					set, err := w.WalkTag(ctx, repo, tag)
					if err != nil {
						return err
					}
					mu.Lock()
					res.Tags[TagRef{Repository: repo, Tag: tag}] = set
					res.Reachable.Union(set)
					mu.Unlock()
					return nil
				})
			}
			return tg.Wait()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reachability walk: %w", err)
	}

	w.logger.Info("walker: done",
		slog.Int("repositories", len(repos)),
		slog.Int("tags", len(res.Tags)),
		slog.Int("reachable", res.Reachable.Len()),
		slog.Duration("dur", time.Since(start)),
	)
	return res, nil
}
