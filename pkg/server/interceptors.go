package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// =============================================================================
// 1. Logging Interceptor (结构化日志)
// =============================================================================

// rpcLogger 记录每一次 RPC (健康检查、反射)
type rpcLogger struct {
	logger *slog.Logger
}

func (l rpcLogger) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	l.log(ctx, "unary", info.FullMethod, time.Since(start), err)
	return resp, err
}

// stream 拦截流式请求 (Health/Watch)
func (l rpcLogger) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	l.log(ss.Context(), "stream", info.FullMethod, time.Since(start), err)
	return err
}

func (l rpcLogger) log(ctx context.Context, kind, method string, duration time.Duration, err error) {
	code := status.Code(err)

	// 健康探针很频繁，成功的只打 Debug
	level := slog.LevelDebug
	switch code {
	case codes.OK, codes.Canceled:
	case codes.Internal, codes.Unknown:
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("kind", kind),
		slog.String("method", method),
		slog.String("code", code.String()),
		slog.Duration("dur", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	l.logger.LogAttrs(ctx, level, "grpc: request", attrs...)
}

// =============================================================================
// 2. Recovery Interceptor
// =============================================================================

func (l rpcLogger) unaryRecovery(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = l.recovered(info.FullMethod, r)
		}
	}()
	return handler(ctx, req)
}

func (l rpcLogger) streamRecovery(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = l.recovered(info.FullMethod, r)
		}
	}()
	return handler(srv, ss)
}

func (l rpcLogger) recovered(method string, p any) error {
	l.logger.Error("grpc: panic recovered",
		slog.String("method", method),
		slog.Any("panic", p),
		slog.String("stack", string(debug.Stack())),
	)
	// 返回 Internal 错误，而不是直接断开连接
	return status.Errorf(codes.Internal, "internal server error: panic recovered")
}

// ServerOptions 返回日志 + panic 恢复拦截器链
func ServerOptions(logger *slog.Logger) []grpc.ServerOption {
	if logger == nil {
		logger = slog.Default()
	}
	l := rpcLogger{logger: logger}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(l.unary, l.unaryRecovery),
		grpc.ChainStreamInterceptor(l.stream, l.streamRecovery),
	}
}
