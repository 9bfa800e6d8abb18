// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"regsweep/pkg/config"
	"regsweep/pkg/gc"
	"regsweep/pkg/ignore"
	"regsweep/pkg/metrics"
	"regsweep/pkg/report"
	"regsweep/pkg/storage"
	"regsweep/pkg/storage/disk"
	"regsweep/pkg/storage/s3"
	"regsweep/pkg/storage/throttle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Driver    storage.Driver
	Collector *gc.Collector
	Sink      report.Sink
	Registry  *prometheus.Registry
	Logger    *slog.Logger

	closers []func() error
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	a := &App{Logger: newLogger()}

	// 1. 初始化存储层
	driver, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Driver = throttle.New(driver, viper.GetInt("storage.max_inflight"))

	// 2. 初始化报告 sink (日志、指标、Redis、数据库)
	a.Registry = prometheus.NewRegistry()
	if err := a.initSinks(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	// 3. 保护规则
	protect, err := ignore.NewMatcher(viper.GetStringSlice("sweep.protect"), viper.GetString("sweep.protect_file"))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to load protect rules: %w", err)
	}

	// 4. 组装回收器
	a.Collector = gc.NewCollector(a.Driver, gc.Options{
		DryRun:  viper.GetBool("gc.dry_run"),
		Protect: protect,
		Sink:    a.Sink,
		Logger:  a.Logger,
		Exclude: excludeFunc(viper.GetStringSlice("gc.exclude")),
	})

	return a, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.LogLevel()}))
}

// initStore 根据 storage.type 选择存储驱动
func initStore(ctx context.Context) (storage.Driver, error) {
	switch t := viper.GetString("storage.type"); t {
	case "disk", "":
		root := viper.GetString("storage.root")
		if root == "" {
			return nil, fmt.Errorf("storage root not set")
		}
		store, err := disk.NewAdapter(root)
		if err != nil {
			return nil, fmt.Errorf("failed to init storage: %w", err)
		}
		return store, nil

	case "s3":
		store, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Prefix:          viper.GetString("s3.prefix"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init storage: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", t)
	}
}

func (a *App) initSinks(ctx context.Context) error {
	sinks := []report.Sink{
		report.NewLogSink(a.Logger),
		metrics.NewSink(a.Registry),
	}

	if url := viper.GetString("report.redis.url"); url != "" {
		rs, err := report.NewRedisSink(ctx, report.RedisConfig{
			URL:     url,
			Key:     viper.GetString("report.redis.key"),
			History: viper.GetInt("report.redis.history"),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, rs)
		a.closers = append(a.closers, rs.Close)
	}

	switch driver := viper.GetString("report.database.driver"); driver {
	case "", "none":
	default:
		ds, err := report.NewDBSink(ctx, report.DBConfig{
			Driver: driver,
			DSN:    viper.GetString("report.database.dsn"),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, ds)
		a.closers = append(a.closers, ds.Close)
	}

	a.Sink = report.Multi(sinks...)
	return nil
}

// excludeFunc 解析 "<repo>[:<tag>]" 形式的排除规则，两部分都支持 path.Match 通配
// 被排除的 tag 只是不再作为可达性的起点：它的 current/link 保留，但 manifest 与链接会被回收。
// 之后如果去掉排除规则，该 tag 会让遍历以 manifest.ErrNotFound 中止，需要先删除这个 tag。
func excludeFunc(patterns []string) func(repo, tag string) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(repo, tag string) bool {
		for _, p := range patterns {
			repoPat, tagPat, hasTag := strings.Cut(p, ":")
			if ok, _ := path.Match(repoPat, repo); !ok {
				continue
			}
			if !hasTag {
				return true
			}
			if ok, _ := path.Match(tagPat, tag); ok {
				return true
			}
		}
		return false
	}
}

// Close 释放外部连接 (Redis、数据库)
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
