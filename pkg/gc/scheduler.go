package gc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"regsweep/pkg/report"
)

// Cycler 执行一个回收周期 (*Collector)
type Cycler interface {
	RunCycle(ctx context.Context) (*report.Report, error)
}

// Scheduler 周期性地执行回收，并支持手动触发
// 同一时间只有一个周期在运行；运行期间的多次触发合并为一次
type Scheduler struct {
	cycler     Cycler
	interval   time.Duration
	runOnStart bool
	observers  []func(*report.Report, error)
	logger     *slog.Logger

	trigger chan struct{}

	mu   sync.RWMutex
	last *report.Report
}

type SchedulerOption func(*Scheduler)

// WithRunOnStart 启动后立即执行一次
func WithRunOnStart(b bool) SchedulerOption {
	return func(s *Scheduler) { s.runOnStart = b }
}

// WithObserver 在每个周期结束后回调 (例如更新健康状态)
func WithObserver(fn func(*report.Report, error)) SchedulerOption {
	return func(s *Scheduler) { s.observers = append(s.observers, fn) }
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler interval <= 0 表示只响应手动触发
func NewScheduler(c Cycler, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cycler:   c,
		interval: interval,
		logger:   slog.Default(),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger 请求尽快执行一个周期
// 已经有一个待执行的请求时返回 false (请求被合并)
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastReport 返回最近一个周期的报告；还没有运行过时返回 nil
func (s *Scheduler) LastReport() *report.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run 阻塞直到 ctx 结束
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.Info("gc: scheduler started", slog.Duration("interval", s.interval))
	if s.runOnStart {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("gc: scheduler stopped")
			return nil
		case <-tick:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.cycler.RunCycle(ctx)
	if err != nil {
		s.logger.Error("gc: cycle failed", slog.String("err", err.Error()))
	}

	if rep != nil {
		s.mu.Lock()
		s.last = rep
		s.mu.Unlock()
	}
	for _, fn := range s.observers {
		fn(rep, err)
	}
}
