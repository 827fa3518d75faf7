package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"fresch-tutor/internal/modules/tutor/domain"
)

// maxUploadSize 画像上限にフォーム項目の余裕を足したサイズ
const maxUploadSize = domain.MaxImageSize + 1<<20

// 表示モード
const (
	ViewChild   = "child"
	ViewTeacher = "teacher"
)

// TutorUseCaseInterface 画像を解析するユースケース
type TutorUseCaseInterface interface {
	Process(ctx context.Context, imageData []byte) (*domain.Analysis, error)
	GetProviderName() string
}

// TutorHandler 手書き解析APIのハンドラー
type TutorHandler struct {
	tutorUseCase TutorUseCaseInterface
	teacherPIN   string
}

// NewTutorHandler 新しいTutorHandlerを作成
func NewTutorHandler(tutorUseCase TutorUseCaseInterface, teacherPIN string) *TutorHandler {
	return &TutorHandler{
		tutorUseCase: tutorUseCase,
		teacherPIN:   teacherPIN,
	}
}

// AnalyzeResponse 解析APIのレスポンス
type AnalyzeResponse struct {
	Success    bool                        `json:"success"`
	Transcript string                      `json:"transcript,omitempty"`
	Items      []domain.ClassificationItem `json:"items,omitempty"`
	Hints      []domain.ChildHint          `json:"hints,omitempty"`
	Stats      []domain.StrategyCount      `json:"stats,omitempty"`
	View       string                      `json:"view,omitempty"`
	Error      string                      `json:"error,omitempty"`
	ErrorKind  string                      `json:"error_kind,omitempty"`
}

// StrategyResponse ストラテジー一覧の1項目
type StrategyResponse struct {
	Label  string `json:"label"`
	Symbol string `json:"symbol"`
}

// HandleAnalyze 手書き画像の解析ハンドラー
//
// フォーム項目: image（必須）、focus（ストラテジー名、任意）、pin（教員用、任意）
func (h *TutorHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "Method not allowed", "", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.sendError(w, "Failed to parse form", "", http.StatusBadRequest)
		return
	}

	// 絞り込むストラテジー
	var focus domain.Strategy
	if label := r.FormValue("focus"); label != "" {
		s, ok := domain.ParseStrategy(label)
		if !ok {
			h.sendError(w, "Unknown strategy: "+label, "", http.StatusBadRequest)
			return
		}
		focus = s
	}

	// 教員用ビューはPINが一致した場合のみ
	view := ViewChild
	if pin := r.FormValue("pin"); pin != "" {
		if !h.checkPIN(pin) {
			h.sendError(w, "Invalid PIN", "", http.StatusForbidden)
			return
		}
		view = ViewTeacher
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		h.sendError(w, "Image file is required", "", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, "Failed to read image", "", http.StatusInternalServerError)
		return
	}

	analysis, err := h.tutorUseCase.Process(r.Context(), imageData)
	if err != nil {
		h.sendFailure(w, err)
		return
	}

	response := AnalyzeResponse{
		Success:    true,
		Transcript: analysis.Transcript,
		Items:      analysis.Items,
		Hints:      domain.ChildHints(analysis.Items, focus),
		View:       view,
	}
	if view == ViewTeacher {
		response.Stats = domain.TeacherStats(analysis.Items)
	}

	h.sendJSON(w, http.StatusOK, response)
}

// HandleStrategies ストラテジー一覧のハンドラー
func (h *TutorHandler) HandleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", "", http.StatusMethodNotAllowed)
		return
	}

	strategies := make([]StrategyResponse, 0, len(domain.Strategies))
	for _, s := range domain.Strategies {
		strategies = append(strategies, StrategyResponse{Label: s.String(), Symbol: s.Symbol()})
	}
	h.sendJSON(w, http.StatusOK, strategies)
}

func (h *TutorHandler) checkPIN(pin string) bool {
	return h.teacherPIN != "" && subtle.ConstantTimeCompare([]byte(pin), []byte(h.teacherPIN)) == 1
}

// sendFailure 処理失敗をHTTPステータスに対応付けて返す
func (h *TutorHandler) sendFailure(w http.ResponseWriter, err error) {
	f, ok := domain.AsFailure(err)
	if !ok {
		slog.Error("Unexpected tutor error", "error", err)
		h.sendError(w, domain.UserMessage(domain.FailureTranscriptionError), string(domain.FailureTranscriptionError), http.StatusInternalServerError)
		return
	}

	h.sendError(w, f.Message, string(f.Kind), failureStatus(f))
}

// failureStatus 失敗の種類に対応するHTTPステータス
func failureStatus(f *domain.Failure) int {
	switch f.Kind {
	case domain.FailureRateLimited:
		return http.StatusTooManyRequests
	case domain.FailureNoTextDetected:
		return http.StatusUnprocessableEntity
	case domain.FailureMalformedClassification:
		return http.StatusBadGateway
	default:
		if errors.Is(f.Err, domain.ErrInvalidImage) {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
}

func (h *TutorHandler) sendError(w http.ResponseWriter, message, kind string, statusCode int) {
	h.sendJSON(w, statusCode, AnalyzeResponse{
		Success:   false,
		Error:     message,
		ErrorKind: kind,
	})
}

func (h *TutorHandler) sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
