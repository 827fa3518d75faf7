package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// quietPaths 正常時はログを出さないパス
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// responseWriter ステータスコードと書き込みバイト数をキャプチャするラッパー
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggerWithHealthCheck ヘルスチェックとメトリクス取得を除外するロギングミドルウェア
func LoggerWithHealthCheck(next http.Handler) http.Handler {
	return accessLog(next, quietPaths)
}

func accessLog(next http.Handler, quiet map[string]bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(rw, r)

		if quiet[r.URL.Path] {
			// 異常時のみログ出力
			if rw.statusCode != http.StatusOK {
				slog.Error("Probe request failed",
					"path", r.URL.Path,
					"status", rw.statusCode,
				)
			}
			return
		}

		slog.Log(r.Context(), levelFor(rw.statusCode), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"bytes", rw.written,
			"duration", time.Since(start),
		)
	})
}

// levelFor ステータスコードに応じたログレベル
func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
