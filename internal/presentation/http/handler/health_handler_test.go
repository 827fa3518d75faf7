package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		wantStatusCode int
		wantStatus     string
	}{
		{
			name:           "正常系: GETはOK",
			method:         http.MethodGet,
			wantStatusCode: http.StatusOK,
			wantStatus:     "ok",
		},
		{
			name:           "異常系: POSTは405",
			method:         http.MethodPost,
			wantStatusCode: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler("Anthropic Claude / OpenAI gpt-4o-mini", "memory")
			req := httptest.NewRequest(tt.method, "/health", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatusCode)
			}
			if tt.wantStatus == "" {
				return
			}

			var response HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
			if response.Version != Version {
				t.Errorf("version = %s, want %s", response.Version, Version)
			}
			if response.Cache != "memory" {
				t.Errorf("cache = %s, want memory", response.Cache)
			}
			if response.Providers == "" {
				t.Error("providers should not be empty")
			}
		})
	}
}
