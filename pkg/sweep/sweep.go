// Package sweep deletes every storage location of unreachable digests.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"regsweep/pkg/fanout"
	"regsweep/pkg/ignore"
	"regsweep/pkg/index"
	"regsweep/pkg/storage"
	"regsweep/pkg/types"
)

// DeletionError 记录一个未能删除的位置；删除阶段不会因此停止
type DeletionError struct {
	Digest   types.Digest
	Location types.BlobLocation
	Err      error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("delete %s (%s): %v", e.Location.Path, e.Digest, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// Result 是一次删除阶段的结果
type Result struct {
	Garbage   []types.Digest       // 不可达的 digest
	Deleted   []types.BlobLocation // 已删除 (dry-run 时是“将会删除”) 的位置
	Failed    []*DeletionError
	Protected []types.BlobLocation // 命中保护规则而保留的位置
	DryRun    bool
}

// Garbage 返回出现在索引中但不在可达集合中的 digest (已排序)
func Garbage(idx *index.Index, reachable types.DigestSet) []types.Digest {
	var out []types.Digest
	for _, d := range idx.Digests() {
		if !reachable.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

type Executor struct {
	driver  storage.Driver
	protect *ignore.Matcher
	dryRun  bool
	logger  *slog.Logger
}

type Option func(*Executor)

// WithDryRun 只报告，不删除
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

// WithProtect 设置保护规则
func WithProtect(m *ignore.Matcher) Option {
	return func(e *Executor) { e.protect = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func NewExecutor(driver storage.Driver, opts ...Option) *Executor {
	e := &Executor{driver: driver, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sweep 并发删除所有垃圾 digest 的所有位置
// 单个位置删除失败只记录到 Result.Failed，其余位置照常删除
func (e *Executor) Sweep(ctx context.Context, idx *index.Index, reachable types.DigestSet) *Result {
	start := time.Now()
	res := &Result{
		Garbage: Garbage(idx, reachable),
		DryRun:  e.dryRun,
	}

	var (
		mu sync.Mutex
		g  fanout.Group
	)

	for _, d := range res.Garbage {
		for _, loc := range idx.Locations(d) {
			if e.protect.Protects(loc) {
				mu.Lock()
				res.Protected = append(res.Protected, loc)
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				if !e.dryRun {
					if err := e.driver.Delete(ctx, loc.Path); err != nil {
						de := &DeletionError{Digest: d, Location: loc, Err: err}
						e.logger.Warn("sweep: delete failed", slog.String("path", loc.Path), slog.String("err", err.Error()))
						mu.Lock()
						res.Failed = append(res.Failed, de)
						mu.Unlock()
						return de
					}
				}
				mu.Lock()
				res.Deleted = append(res.Deleted, loc)
				mu.Unlock()
				return nil
			})
		}
	}
	// 错误已经逐个记录在 res.Failed 里
	_ = g.Wait()

	sortLocations(res.Deleted)
	sortLocations(res.Protected)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Location.Path < res.Failed[j].Location.Path })

	e.logger.Info("sweep: done",
		slog.Bool("dry_run", e.dryRun),
		slog.Int("garbage", len(res.Garbage)),
		slog.Int("deleted", len(res.Deleted)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("protected", len(res.Protected)),
		slog.Duration("dur", time.Since(start)),
	)
	return res
}

func sortLocations(locs []types.BlobLocation) {
	sort.Slice(locs, func(i, j int) bool { return locs[i].Path < locs[j].Path })
}
