package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"regsweep/pkg/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Scheduler 是 HTTP 管理接口对调度器的依赖
type Scheduler interface {
	Trigger() bool
	LastReport() *report.Report
}

// NewRouter creates the admin HTTP router.
//
// Routes:
//   - GET  /healthz   - Liveness probe
//   - GET  /metrics   - Prometheus metrics
//   - POST /gc/run    - Request an immediate collection cycle
//   - GET  /gc/last   - Report of the most recent cycle
func NewRouter(sched Scheduler, metrics http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/gc", func(r chi.Router) {
		r.Post("/run", func(w http.ResponseWriter, r *http.Request) {
			// 已经有一个待执行的请求时同样返回 202：请求被合并，不会丢失
			queued := sched.Trigger()
			writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
		})
		r.Get("/last", func(w http.ResponseWriter, r *http.Request) {
			rep := sched.LastReport()
			if rep == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle has run yet"})
				return
			}
			writeJSON(w, http.StatusOK, rep)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http: request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("dur", time.Since(start)),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
