package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fresch-tutor/internal/presentation/di"
	"fresch-tutor/internal/presentation/http/middleware"
)

// NewRouter 新しいルーターを作成
func NewRouter(container *di.Container) http.Handler {
	mux := http.NewServeMux()

	// Tutor API ハンドラー
	tutorHandler := container.TutorHandler()
	mux.HandleFunc("/api/v1/tutor/analyze", tutorHandler.HandleAnalyze)
	mux.HandleFunc("/api/v1/tutor/strategies", tutorHandler.HandleStrategies)

	// Health check
	mux.Handle("/health", container.HealthHandler())

	// Prometheus
	mux.Handle("/metrics", promhttp.Handler())

	// ミドルウェアの適用
	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.LoggerWithHealthCheck(h)
	h = middleware.CORS(h)

	return h
}
