package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fresch-tutor/internal/modules/tutor/domain"
	"fresch-tutor/internal/observe"
)

// デフォルトのリトライ設定
const (
	defaultMaxAttempts    = 3
	defaultInitialDelay   = 2 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// RetryConfig リトライ設定
type RetryConfig struct {
	// MaxAttempts 試行回数の上限（初回を含む）
	MaxAttempts int
	// InitialDelay 1回目の再試行前の待ち時間。以降は倍々になる
	InitialDelay time.Duration
	// AttemptTimeout 1回の試行のタイムアウト。0以下なら無制限
	AttemptTimeout time.Duration
}

// Sleeper 待機処理（テスト用のSeam）
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier レート制限時に指数バックオフで再試行する
type Retrier struct {
	cfg     RetryConfig
	sleep   Sleeper
	metrics *observe.Metrics
}

// NewRetrier 新しいRetrierを作成
func NewRetrier(cfg RetryConfig, metrics *observe.Metrics) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	return &Retrier{
		cfg:     cfg,
		sleep:   sleepContext,
		metrics: metrics,
	}
}

// SetSleeper テスト用に待機処理を差し替え
func (r *Retrier) SetSleeper(s Sleeper) {
	r.sleep = s
}

// MaxAttempts 試行回数の上限
func (r *Retrier) MaxAttempts() int {
	return r.cfg.MaxAttempts
}

// Backoff n回目（1始まり）の再試行前の待ち時間
func (r *Retrier) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return r.cfg.InitialDelay << (n - 1)
}

// Do opを実行し、レート制限なら再試行する
//
// レート制限以外のエラーは即座に返す。上限まで失敗した場合はErrに
// FailureRateLimitedの*domain.Failureが入る。panicは発生しない。
func (r *Retrier) Do(ctx context.Context, kind domain.CallKind, op func(ctx context.Context) (string, error)) domain.RemoteCallResult {
	result := domain.RemoteCallResult{Kind: kind}

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		text, err := r.attempt(ctx, kind, op)
		if err == nil {
			result.Text = text
			return result
		}

		if !r.retryable(ctx, err) {
			result.Err = err
			return result
		}

		if attempt == r.cfg.MaxAttempts {
			slog.Warn("Remote call rate limited, giving up",
				"kind", kind,
				"attempts", attempt,
				"error", err,
			)
			result.Err = domain.NewFailure(domain.FailureRateLimited, attempt, err)
			return result
		}

		delay := r.Backoff(attempt)
		slog.Warn("Remote call rate limited, retrying",
			"kind", kind,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		r.metrics.RecordRetry(ctx, string(kind))

		if err := r.sleep(ctx, delay); err != nil {
			result.Err = fmt.Errorf("backoff interrupted: %w", err)
			return result
		}
	}

	// MaxAttemptsは1以上なのでここには来ない
	result.Err = domain.NewFailure(domain.FailureRateLimited, result.Attempts, nil)
	return result
}

// attempt 1回分の呼び出し
func (r *Retrier) attempt(ctx context.Context, kind domain.CallKind, op func(ctx context.Context) (string, error)) (text string, err error) {
	attemptCtx := ctx
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("remote call panicked: %v", p)
		}
		r.metrics.RecordRemoteCall(ctx, string(kind), callStatus(err), time.Since(start).Seconds())
	}()

	text, err = op(attemptCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: attempt timed out: %v", domain.ErrRateLimited, err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrNoTextFound
	}
	return text, nil
}

// retryable 再試行すべきエラーかどうか
func (r *Retrier) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, domain.ErrRateLimited)
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNoTextFound):
		return "no_text"
	default:
		return "error"
	}
}

// sleepContext コンテキストがキャンセルされるまで待機
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
