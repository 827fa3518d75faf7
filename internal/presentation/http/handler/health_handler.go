package handler

import (
	"encoding/json"
	"net/http"
)

// Version APIのバージョン
const Version = "1.0.0"

// HealthHandler ヘルスチェックのハンドラー
type HealthHandler struct {
	providers    string
	cacheBackend string
}

// NewHealthHandler 新しいHealthHandlerを作成
func NewHealthHandler(providers, cacheBackend string) *HealthHandler {
	return &HealthHandler{
		providers:    providers,
		cacheBackend: cacheBackend,
	}
}

// HealthResponse ヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Providers string `json:"providers,omitempty"`
	Cache     string `json:"cache,omitempty"`
}

// ServeHTTP ヘルスチェックを処理
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "ok",
		Version:   Version,
		Providers: h.providers,
		Cache:     h.cacheBackend,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
