package index

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"regsweep/pkg/fanout"
	"regsweep/pkg/layout"
	"regsweep/pkg/refs"
	"regsweep/pkg/storage"
	"regsweep/pkg/types"
)

// Builder 并发扫描存储树，构建 Index
type Builder struct {
	driver storage.Driver
	refs   *refs.Manager
	logger *slog.Logger
}

func NewBuilder(driver storage.Driver, refMgr *refs.Manager, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{driver: driver, refs: refMgr, logger: logger}
}

// Build 从一个空索引开始扫描 blobs/ 和 repositories/
//
// blobs/ 下的任何错误都会让构建失败：没有完整的 blob 清单，任何删除决定都不安全。
// 单个仓库子树的错误只被记录 (Index.RepositoryErrors)，因为缺失的链接只会少删，不会误删。
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	start := time.Now()
	idx := New()

	var g fanout.Group
	g.Go(func() error { return b.scanBlobs(ctx, idx) })
	g.Go(func() error {
		b.scanRepositories(ctx, idx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build location index: %w", err)
	}

	if repoErr := idx.RepositoryErrors(); repoErr != nil {
		b.logger.Warn("index: some repository subtrees could not be scanned", slog.String("err", repoErr.Error()))
	}
	b.logger.Info("index: built",
		slog.Int("digests", idx.Len()),
		slog.Int("locations", idx.LocationCount()),
		slog.Duration("dur", time.Since(start)),
	)
	return idx, nil
}

// -----------------------------------------------------------------------------
// 1. Blob 存储: blobs/<alg>/<shard>/<hex>
// -----------------------------------------------------------------------------

func (b *Builder) scanBlobs(ctx context.Context, idx *Index) error {
	algs, err := b.driver.List(ctx, layout.BlobsDir)
	if err != nil {
		return fmt.Errorf("blob store unreadable: %w", err)
	}

	var g fanout.Group
	for _, alg := range algs {
		g.Go(func() error {
			shards, err := b.driver.List(ctx, layout.BlobAlgorithm(alg))
			if err != nil {
				return fmt.Errorf("blob store unreadable: %w", err)
			}

			var sg fanout.Group
			for _, shard := range shards {
				sg.Go(func() error {
					dir := layout.BlobShard(alg, shard)
					names, err := b.driver.List(ctx, dir)
					if err != nil {
						return fmt.Errorf("blob store unreadable: %w", err)
					}
					for _, name := range names {
						idx.Add(types.NewDigest(alg, name), types.BlobLocation{
							Path: path.Join(dir, name),
							Kind: types.Canonical,
						})
					}
					return nil
				})
			}
			return sg.Wait()
		})
	}
	return g.Wait()
}

// -----------------------------------------------------------------------------
// 2. 仓库: _layers, _manifests/revisions, _manifests/tags/<tag>/index
// -----------------------------------------------------------------------------

func (b *Builder) scanRepositories(ctx context.Context, idx *Index) {
	repos, err := b.refs.Repositories(ctx)
	if err != nil {
		// 发现阶段的失败同样只记录；遍历阶段会重新发现并在失败时中止
		idx.recordRepoError(err)
	}

	var g fanout.Group
	for _, repo := range repos {
		g.Go(func() error {
			if err := b.scanRepository(ctx, idx, repo); err != nil {
				idx.recordRepoError(fmt.Errorf("repository %s: %w", repo, err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Builder) scanRepository(ctx context.Context, idx *Index, repo string) error {
	var g fanout.Group
	g.Go(func() error { return b.scanLinks(ctx, idx, repo, layout.Layers(repo), types.LayerLink) })
	g.Go(func() error { return b.scanLinks(ctx, idx, repo, layout.Revisions(repo), types.RevisionLink) })
	g.Go(func() error {
		tags, err := b.refs.Tags(ctx, repo)
		if err != nil {
			return err
		}
		var tg fanout.Group
		for _, tag := range tags {
			tg.Go(func() error {
				return b.scanLinks(ctx, idx, repo, layout.TagIndex(repo, tag), types.TagIndexLink)
			})
		}
		return tg.Wait()
	})
	return g.Wait()
}

// scanLinks 扫描 <dir>/<alg>/<hex>；目录不存在视为空
func (b *Builder) scanLinks(ctx context.Context, idx *Index, repo, dir string, kind types.LocationKind) error {
	algs, err := b.driver.List(ctx, dir)
	if storage.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var g fanout.Group
	for _, alg := range algs {
		g.Go(func() error {
			algDir := path.Join(dir, alg)
			names, err := b.driver.List(ctx, algDir)
			if storage.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			for _, name := range names {
				idx.Add(types.NewDigest(alg, name), types.BlobLocation{
					Path:       path.Join(algDir, name),
					Kind:       kind,
					Repository: repo,
				})
			}
			return nil
		})
	}
	return g.Wait()
}
