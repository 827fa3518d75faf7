package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fresch-tutor/internal/config"
	"fresch-tutor/internal/modules/tutor/domain"
)

const (
	// systemPromptTranscribe 手書き文字起こし用プロンプト
	systemPromptTranscribe = `Du liest handgeschriebene Texte von Grundschulkindern.
Schreibe den Text auf dem Foto GENAU so ab, wie er geschrieben wurde.

Regeln:
1. Korrigiere KEINE Rechtschreibfehler.
2. Behalte Zeilenumbrüche bei.
3. Unleserliche Wörter schreibst du als [?].
4. Gib NUR den abgeschriebenen Text zurück, ohne Erklärungen.
5. Wenn auf dem Foto kein Text steht, gib eine leere Antwort zurück.`

	userPromptTranscribe = "Schreibe den Text auf diesem Foto ab."

	anthropicVersion = "2023-06-01"
)

// ClaudeRepository Claude APIによる文字起こし
type ClaudeRepository struct {
	apiKey      string
	model       string
	maxTokens   int
	httpClient  *http.Client
	apiEndpoint string // テスト用にエンドポイントを差し替え可能に
}

// NewClaudeRepository 新しいClaudeRepositoryを作成
//
// HTTPクライアントにはタイムアウトを設定しない。期限は呼び出し側のcontextで決める。
func NewClaudeRepository(cfg *config.AnthropicConfig) *ClaudeRepository {
	return &ClaudeRepository{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{},
		apiEndpoint: "https://api.anthropic.com/v1/messages",
	}
}

// setHTTPClient テスト用にHTTPクライアントを設定
func (r *ClaudeRepository) setHTTPClient(client *http.Client) {
	r.httpClient = client
}

// Transcribe 画像から手書き文字を読み取る
func (r *ClaudeRepository) Transcribe(ctx context.Context, imageData []byte) (string, error) {
	format, err := domain.ValidateImageData(imageData)
	if err != nil {
		return "", err
	}
	if r.apiKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY is empty")
	}

	// 画像をbase64エンコード
	imageBase64 := base64.StdEncoding.EncodeToString(imageData)

	requestBody := map[string]interface{}{
		"model":      r.model,
		"max_tokens": r.maxTokens,
		"system":     systemPromptTranscribe,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "image",
						"source": map[string]string{
							"type":       "base64",
							"media_type": domain.MediaType(format),
							"data":       imageBase64,
						},
					},
					{
						"type": "text",
						"text": userPromptTranscribe,
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", r.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError("claude", resp.StatusCode, body)
	}

	// 応答エンベロープからテキストを抽出
	text, err := domain.ExtractText(body)
	if err != nil {
		return "", fmt.Errorf("claude transcribe: %w", err)
	}
	return text, nil
}

// ProviderName プロバイダー名を返す
func (r *ClaudeRepository) ProviderName() string {
	return "Anthropic Claude"
}

// statusError HTTPステータスをエラーに変換
//
// 429と529（過負荷）はレート制限として扱う。
func statusError(provider string, statusCode int, body []byte) error {
	msg := strings.TrimSpace(truncate(string(body), 512))
	if statusCode == http.StatusTooManyRequests || statusCode == 529 {
		return fmt.Errorf("%s: %w: status %d: %s", provider, domain.ErrRateLimited, statusCode, msg)
	}
	return fmt.Errorf("%s: API returned status %d: %s", provider, statusCode, msg)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
