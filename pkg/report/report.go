// Package report describes the outcome of one collection cycle and publishes it to sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Phase 标识回收周期的阶段
type Phase string

const (
	PhaseIndex Phase = "index"
	PhaseWalk  Phase = "walk"
	PhaseSweep Phase = "sweep"
	PhaseDone  Phase = "done"
)

// Report 是一次回收周期的完整记录
// 中止的周期同样产生报告：Aborted=true，Phase 是失败的阶段
type Report struct {
	ID         string    `cbor:"id" json:"id"`
	StartedAt  time.Time `cbor:"started_at" json:"started_at"`
	FinishedAt time.Time `cbor:"finished_at" json:"finished_at"`
	DryRun     bool      `cbor:"dry_run" json:"dry_run"`

	Phase   Phase  `cbor:"phase" json:"phase"`
	Aborted bool   `cbor:"aborted" json:"aborted"`
	Error   string `cbor:"error,omitempty" json:"error,omitempty"`

	// 每个阶段的耗时 (毫秒)
	Timings map[Phase]int64 `cbor:"timings" json:"timings"`

	Digests          int `cbor:"digests" json:"digests"`
	Locations        int `cbor:"locations" json:"locations"`
	RepositoryErrors int `cbor:"repository_errors" json:"repository_errors"`
	Tags             int `cbor:"tags" json:"tags"`
	Reachable        int `cbor:"reachable" json:"reachable"`
	Garbage          int `cbor:"garbage" json:"garbage"`
	Deleted          int `cbor:"deleted" json:"deleted"`
	Protected        int `cbor:"protected" json:"protected"`

	// 删除失败的位置 (路径: 错误)
	Failures []string `cbor:"failures,omitempty" json:"failures,omitempty"`
}

// New 开始一份新报告
func New(dryRun bool) *Report {
	return &Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
		Phase:     PhaseIndex,
		Timings:   make(map[Phase]int64),
	}
}

// Enter 记录上一阶段的耗时并进入下一阶段
func (r *Report) Enter(p Phase, phaseStart time.Time) time.Time {
	r.Timings[r.Phase] = time.Since(phaseStart).Milliseconds()
	r.Phase = p
	return time.Now()
}

// Abort 把报告标记为中止
func (r *Report) Abort(err error) {
	r.Aborted = true
	r.Error = err.Error()
	r.FinishedAt = time.Now().UTC()
}

// Finish 标记周期完成
func (r *Report) Finish() {
	r.Phase = PhaseDone
	r.FinishedAt = time.Now().UTC()
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded 周期完成且没有删除失败
func (r *Report) Succeeded() bool {
	return !r.Aborted && r.Phase == PhaseDone && len(r.Failures) == 0
}

// Sink 接收每一份报告 (成功或中止)
type Sink interface {
	Publish(ctx context.Context, r *Report) error
}

type multi []Sink

// Multi 把报告发布到所有 sink，返回全部错误
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Publish(ctx context.Context, r *Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink 把报告写入结构化日志
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, r *Report) error {
	attrs := []slog.Attr{
		slog.String("id", r.ID),
		slog.String("phase", string(r.Phase)),
		slog.Bool("dry_run", r.DryRun),
		slog.Duration("dur", r.Duration()),
		slog.Int("digests", r.Digests),
		slog.Int("reachable", r.Reachable),
		slog.Int("garbage", r.Garbage),
		slog.Int("deleted", r.Deleted),
		slog.Int("failed", len(r.Failures)),
		slog.Int("protected", r.Protected),
	}
	if r.Aborted {
		attrs = append(attrs, slog.String("err", r.Error))
		s.logger.LogAttrs(ctx, slog.LevelError, "gc: cycle aborted", attrs...)
		return nil
	}
	level := slog.LevelInfo
	if len(r.Failures) > 0 {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "gc: cycle finished", attrs...)
	return nil
}
