package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"fresch-tutor/internal/modules/tutor/domain"
	"fresch-tutor/internal/observe"
)

// TutorUseCase 文字起こしから分類までを順に実行するユースケース
//
// 共有する可変状態はキャッシュのみで、並行に呼び出してよい。
type TutorUseCase struct {
	transcriber domain.TranscriberRepository
	classifier  domain.ClassifierRepository
	cache       *TranscriptCache
	retrier     *Retrier
	metrics     *observe.Metrics
}

// NewTutorUseCase 新しいTutorUseCaseを作成
func NewTutorUseCase(
	transcriber domain.TranscriberRepository,
	classifier domain.ClassifierRepository,
	cache *TranscriptCache,
	retrier *Retrier,
	metrics *observe.Metrics,
) *TutorUseCase {
	return &TutorUseCase{
		transcriber: transcriber,
		classifier:  classifier,
		cache:       cache,
		retrier:     retrier,
		metrics:     metrics,
	}
}

// Process 画像を文字起こしし、綴りの誤りを分類する
//
// 失敗は常に*domain.Failureとして返す。
func (uc *TutorUseCase) Process(ctx context.Context, imageData []byte) (*domain.Analysis, error) {
	if _, err := domain.ValidateImageData(imageData); err != nil {
		return nil, uc.fail(ctx, domain.NewFailure(domain.FailureTranscriptionError, 1, err))
	}

	req := domain.NewRemoteCallRequest(domain.CallTranscribe, imageData)

	// 文字起こし（キャッシュ + リトライ）
	// computeはキャッシュ側のgoroutineで動くため、試行回数はatomicで受け取る
	var attempts atomic.Int32
	transcript, err := uc.cache.GetOrCompute(ctx, req.Fingerprint(), func(ctx context.Context) (string, error) {
		res := uc.retrier.Do(ctx, domain.CallTranscribe, func(ctx context.Context) (string, error) {
			return uc.transcriber.Transcribe(ctx, req.Payload())
		})
		attempts.Store(int32(res.Attempts))
		return res.Text, res.Err
	})
	if err != nil {
		n := int(attempts.Load())
		if errors.Is(err, domain.ErrNoTextFound) {
			return nil, uc.fail(ctx, domain.NewFailure(domain.FailureNoTextDetected, n, err))
		}
		return nil, uc.fail(ctx, toFailure(err, n))
	}

	slog.Debug("Transcription finished",
		"provider", uc.transcriber.ProviderName(),
		"fingerprint", req.Fingerprint(),
		"chars", len(transcript),
	)

	// 分類（キャッシュしない）
	prompt := BuildClassificationPrompt(transcript)
	res := uc.retrier.Do(ctx, domain.CallClassify, func(ctx context.Context) (string, error) {
		return uc.classifier.Classify(ctx, prompt)
	})
	if !res.Succeeded() {
		if errors.Is(res.Err, domain.ErrNoTextFound) {
			return nil, uc.fail(ctx, domain.NewFailure(domain.FailureMalformedClassification, res.Attempts, res.Err))
		}
		return nil, uc.fail(ctx, toFailure(res.Err, res.Attempts))
	}

	items, err := domain.ParseClassification(res.Text)
	if err != nil {
		return nil, uc.fail(ctx, domain.NewFailure(domain.FailureMalformedClassification, res.Attempts, err))
	}

	return &domain.Analysis{
		Transcript: transcript,
		Items:      items,
	}, nil
}

// GetProviderName 文字起こしと分類のプロバイダー名
func (uc *TutorUseCase) GetProviderName() string {
	return uc.transcriber.ProviderName() + " / " + uc.classifier.ProviderName()
}

func (uc *TutorUseCase) fail(ctx context.Context, f *domain.Failure) *domain.Failure {
	uc.metrics.RecordFailure(ctx, string(f.Kind))
	slog.Warn("Tutor processing failed",
		"kind", f.Kind,
		"attempts", f.Attempts,
		"error", f.Err,
	)
	return f
}

// toFailure リトライ後のエラーをFailureに変換
func toFailure(err error, attempts int) *domain.Failure {
	if f, ok := domain.AsFailure(err); ok {
		return f
	}
	return domain.NewFailure(domain.FailureTranscriptionError, attempts, err)
}
