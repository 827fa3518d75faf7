package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// ErrorResponse パニック時のレスポンス
//
// 解析APIのエラー応答と同じフィールド名を使う。
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// Recovery パニックリカバリーミドルウェア
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("Panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", p,
					"stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(ErrorResponse{
					Success:   false,
					Error:     "Internal server error",
					ErrorKind: "Internal",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
