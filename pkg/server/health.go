package server

import (
	"log/slog"

	"regsweep/pkg/report"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GCService 是健康检查中回收器的服务名
const GCService = "regsweep.gc"

// Health 把回收周期的结果映射到 gRPC 健康状态
//   - 进程存活: "" 始终 SERVING
//   - GCService: 最近一个周期中止时 NOT_SERVING，成功后恢复 SERVING
type Health struct {
	srv    *health.Server
	logger *slog.Logger
}

func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	// 还没有运行过周期：不知道存储是否健康
	srv.SetServingStatus(GCService, healthpb.HealthCheckResponse_UNKNOWN)
	return &Health{srv: srv, logger: logger}
}

// Observe 是 gc.Scheduler 的观察者
func (h *Health) Observe(rep *report.Report, err error) {
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil || (rep != nil && rep.Aborted) {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus(GCService, st)
	h.logger.Debug("health: gc status updated", slog.String("status", st.String()))
}

// Shutdown 把所有服务置为 NOT_SERVING (优雅退出前调用)
func (h *Health) Shutdown() { h.srv.Shutdown() }

// Server 返回 grpc 健康服务实现
func (h *Health) Server() healthpb.HealthServer { return h.srv }

// NewGRPCServer 创建带拦截器、健康检查和反射的 gRPC server
func NewGRPCServer(h *Health, logger *slog.Logger) *grpc.Server {
	s := grpc.NewServer(ServerOptions(logger)...)
	healthpb.RegisterHealthServer(s, h.srv)

	// Enable Reflection for debugging tools (grpcurl)
	reflection.Register(s)
	return s
}
