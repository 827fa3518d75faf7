package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"fresch-tutor/internal/config"
	"fresch-tutor/internal/modules/tutor/domain"
)

// GeminiRepository Gemini APIによる文字起こし
type GeminiRepository struct {
	apiKey string
	model  string
	opts   []option.ClientOption
}

// NewGeminiRepository 新しいGeminiRepositoryを作成
func NewGeminiRepository(cfg *config.GeminiConfig, opts ...option.ClientOption) *GeminiRepository {
	return &GeminiRepository{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		opts:   opts,
	}
}

// Transcribe 画像から手書き文字を読み取る
func (r *GeminiRepository) Transcribe(ctx context.Context, imageData []byte) (string, error) {
	format, err := domain.ValidateImageData(imageData)
	if err != nil {
		return "", err
	}
	if r.apiKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(r.apiKey)}, r.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini: new client: %w", err)
	}
	defer func() {
		_ = cl.Close()
	}()

	m := cl.GenerativeModel(r.model)
	m.SetTemperature(0)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPromptTranscribe)},
	}

	parts := []genai.Part{
		genai.Text(userPromptTranscribe),
		genai.Blob{MIMEType: domain.MediaType(format), Data: imageData},
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		if isGeminiRateLimited(err) {
			return "", fmt.Errorf("gemini: %w: %v", domain.ErrRateLimited, err)
		}
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	text, ok := domain.Extract(geminiReply(resp))
	if !ok {
		return "", fmt.Errorf("gemini transcribe: %w", domain.ErrNoTextFound)
	}
	return text, nil
}

// ProviderName プロバイダー名を返す
func (r *GeminiRepository) ProviderName() string {
	return "Google Gemini"
}

// geminiReply 候補のテキスト断片を出力項目に変換
//
// 各候補が1つの出力項目になる。テキスト以外の断片は種類だけ残す。
func geminiReply(resp *genai.GenerateContentResponse) domain.Reply {
	if resp == nil || len(resp.Candidates) == 0 {
		return domain.Reply{Shape: domain.ReplyEmpty}
	}

	outputs := make([]domain.ReplyOutput, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var out domain.ReplyOutput
		for _, p := range c.Content.Parts {
			switch v := p.(type) {
			case genai.Text:
				out.Fragments = append(out.Fragments, domain.Fragment{Type: "text", Text: string(v), HasText: true})
			case genai.Blob:
				out.Fragments = append(out.Fragments, domain.Fragment{Type: "inline_data"})
			case genai.FunctionCall:
				out.Fragments = append(out.Fragments, domain.Fragment{Type: "function_call"})
			}
		}
		outputs = append(outputs, out)
	}

	if len(outputs) == 0 {
		return domain.Reply{Shape: domain.ReplyEmpty}
	}
	return domain.Reply{Shape: domain.ReplyOutputs, Outputs: outputs}
}

// isGeminiRateLimited レート制限エラーかどうかを判定
func isGeminiRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}

	if ae, ok := apierror.FromError(err); ok {
		if ae.HTTPCode() == http.StatusTooManyRequests {
			return true
		}
		if st := ae.GRPCStatus(); st != nil && st.Code() == codes.ResourceExhausted {
			return true
		}
	}
	return false
}
