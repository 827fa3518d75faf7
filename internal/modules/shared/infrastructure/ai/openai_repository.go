package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"fresch-tutor/internal/config"
	"fresch-tutor/internal/modules/tutor/domain"
)

// OpenAIRepository OpenAI Chat Completionsによる誤り分類
type OpenAIRepository struct {
	client      oai.Client
	model       string
	temperature float64
}

// NewOpenAIRepository 新しいOpenAIRepositoryを作成
//
// 再試行はRetrierが行うため、SDK側のリトライは無効にする。
// 期限は呼び出し側のcontextで決め、HTTPクライアントにはタイムアウトを設定しない。
func NewOpenAIRepository(cfg *config.OpenAIConfig, opts ...option.RequestOption) *OpenAIRepository {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{}),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIRepository{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Classify プロンプトを送り、応答テキストを返す
func (r *OpenAIRepository) Classify(ctx context.Context, prompt string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(r.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(r.temperature),
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("openai: %w: %v", domain.ErrRateLimited, err)
		}
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}

	// 応答エンベロープからテキストを抽出
	text, err := domain.ExtractText([]byte(resp.RawJSON()))
	if err != nil {
		return "", fmt.Errorf("openai classify: %w", err)
	}
	return text, nil
}

// ProviderName プロバイダー名を返す
func (r *OpenAIRepository) ProviderName() string {
	return "OpenAI " + r.model
}
