// Package gc runs mark-and-sweep collection cycles over a registry blob store.
package gc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"regsweep/pkg/ignore"
	"regsweep/pkg/index"
	"regsweep/pkg/manifest"
	"regsweep/pkg/refs"
	"regsweep/pkg/report"
	"regsweep/pkg/storage"
	"regsweep/pkg/sweep"
	"regsweep/pkg/walker"
)

// AbortError 表示周期在某个阶段中止；此时不会删除任何东西
type AbortError struct {
	Phase report.Phase
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("gc cycle aborted in %s phase: %v", e.Phase, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

type Options struct {
	DryRun  bool
	Protect *ignore.Matcher
	Sink    report.Sink
	Logger  *slog.Logger

	// Exclude 返回 true 的 tag 不参与可达性计算
	Exclude func(repo, tag string) bool
}

// Collector 执行一个完整的回收周期：建索引 -> 遍历 -> 删除
type Collector struct {
	driver storage.Driver
	refs   *refs.Manager
	opts   Options
	logger *slog.Logger

	// 周期之间互斥，绝不重叠
	mu sync.Mutex
}

func NewCollector(driver storage.Driver, opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		driver: driver,
		refs:   refs.NewManager(driver),
		opts:   opts,
		logger: logger,
	}
}

// Mark 是回收周期的前两个阶段：构建 Location Index 并计算可达集合
// 每次调用都从空状态开始
func (c *Collector) Mark(ctx context.Context) (*index.Index, *walker.Result, error) {
	idx, err := c.Index(ctx)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.walk(ctx, idx)
	if err != nil {
		return idx, nil, &AbortError{Phase: report.PhaseWalk, Err: err}
	}
	return idx, res, nil
}

// Index 只执行第一阶段
func (c *Collector) Index(ctx context.Context) (*index.Index, error) {
	idx, err := c.buildIndex(ctx)
	if err != nil {
		return nil, &AbortError{Phase: report.PhaseIndex, Err: err}
	}
	return idx, nil
}

func (c *Collector) buildIndex(ctx context.Context) (*index.Index, error) {
	return index.NewBuilder(c.driver, c.refs, c.logger).Build(ctx)
}

func (c *Collector) walk(ctx context.Context, idx *index.Index) (*walker.Result, error) {
	w := walker.New(c.refs, manifest.NewResolver(c.driver, idx), c.logger)
	w.Exclude = c.opts.Exclude
	return w.WalkAll(ctx)
}

// RunCycle 执行一个周期并把报告发布到 sink
// 中止时返回 *AbortError，报告同样会返回和发布；删除失败只记录在报告里
func (c *Collector) RunCycle(ctx context.Context) (*report.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := report.New(c.opts.DryRun)
	c.logger.Info("gc: cycle started", slog.String("id", rep.ID), slog.Bool("dry_run", c.opts.DryRun))

	err := c.run(ctx, rep)
	if err != nil {
		rep.Abort(err)
	} else {
		rep.Finish()
	}

	c.publish(ctx, rep)
	return rep, err
}

func (c *Collector) run(ctx context.Context, rep *report.Report) error {
	// 1. 建索引 (屏障：所有扫描结束后才进入下一阶段)
	phaseStart := time.Now()
	idx, err := c.buildIndex(ctx)
	if err != nil {
		return &AbortError{Phase: report.PhaseIndex, Err: err}
	}
	rep.Digests = idx.Len()
	rep.Locations = idx.LocationCount()
	rep.RepositoryErrors = idx.RepositoryErrorCount()

	// 2. 遍历所有 tag
	phaseStart = rep.Enter(report.PhaseWalk, phaseStart)
	res, err := c.walk(ctx, idx)
	if err != nil {
		return &AbortError{Phase: report.PhaseWalk, Err: err}
	}
	rep.Tags = len(res.Tags)
	rep.Reachable = res.Reachable.Len()

	// 3. 删除；遍历之后被取消的周期不能再开始删除
	phaseStart = rep.Enter(report.PhaseSweep, phaseStart)
	if err := ctx.Err(); err != nil {
		return &AbortError{Phase: report.PhaseSweep, Err: err}
	}

	sweepOpts := []sweep.Option{
		sweep.WithDryRun(c.opts.DryRun),
		sweep.WithProtect(c.opts.Protect),
		sweep.WithLogger(c.logger),
	}
	result := sweep.NewExecutor(c.driver, sweepOpts...).Sweep(ctx, idx, res.Reachable)
	rep.Enter(report.PhaseDone, phaseStart)

	rep.Garbage = len(result.Garbage)
	rep.Deleted = len(result.Deleted)
	rep.Protected = len(result.Protected)
	for _, f := range result.Failed {
		rep.Failures = append(rep.Failures, f.Error())
	}
	return nil
}

// publish 发布报告；sink 的失败只记录日志
// 即使周期因为 ctx 取消而中止，报告依然要发出去
func (c *Collector) publish(ctx context.Context, rep *report.Report) {
	if c.opts.Sink == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.opts.Sink.Publish(pubCtx, rep); err != nil {
		c.logger.Warn("gc: publish report failed", slog.String("id", rep.ID), slog.String("err", err.Error()))
	}
}
