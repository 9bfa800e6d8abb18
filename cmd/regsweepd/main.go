package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regsweep/pkg/app"
	"regsweep/pkg/config"
	"regsweep/pkg/gc"
	"regsweep/pkg/metrics"
	"regsweep/pkg/server"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("regsweepd: exited with error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is ./regsweep.yaml, /etc/regsweep or $HOME/.regsweep)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application
	application, err := app.NewApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	logger := application.Logger
	slog.SetDefault(logger)

	// 3. Scheduler + health
	health := server.NewHealth(logger)
	sched := gc.NewScheduler(application.Collector, viper.GetDuration("gc.interval"),
		gc.WithRunOnStart(viper.GetBool("gc.run_on_start")),
		gc.WithObserver(health.Observe),
		gc.WithSchedulerLogger(logger),
	)

	// 4. Setup Network
	grpcAddr := viper.GetString("server.grpc_addr")
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}
	grpcServer := server.NewGRPCServer(health, logger)

	httpServer := &http.Server{
		Addr:              viper.GetString("server.http_addr"),
		Handler:           server.NewRouter(sched, metrics.Handler(application.Registry), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Start everything; the first failure or a signal stops all of them
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		logger.Info("regsweepd: grpc listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("regsweepd: http listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 6. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("regsweepd: shutting down")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("regsweepd: stopped")
	return nil
}
