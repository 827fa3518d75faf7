package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"fresch-tutor/internal/modules/tutor/domain"
	"fresch-tutor/internal/observe"
)

// keyPrefix キャッシュキーの接頭辞
const keyPrefix = "fresch:transcript:"

// noTextMarker 「文字なし」を表す保存値
//
// 文字起こし結果は前後の空白を除去済みなので、この値と衝突しない。
var noTextMarker = []byte("\x00no-text")

// TranscriptCache 画像の指紋をキーにした文字起こしキャッシュ
//
// 同じ指紋への同時ミスはsingleflightで1回の計算にまとめる。
// 失敗は保存しないので、次回は再びリモートサービスを呼ぶ。
type TranscriptCache struct {
	store   domain.CacheRepository
	ttl     time.Duration
	group   singleflight.Group
	metrics *observe.Metrics
}

// NewTranscriptCache 新しいTranscriptCacheを作成
//
// ttlが0なら期限なし。
func NewTranscriptCache(store domain.CacheRepository, ttl time.Duration, metrics *observe.Metrics) *TranscriptCache {
	return &TranscriptCache{
		store:   store,
		ttl:     ttl,
		metrics: metrics,
	}
}

// GetOrCompute 保存済みなら返し、なければcomputeを呼んで成功時のみ保存する
//
// computeがdomain.ErrNoTextFoundを返した場合も成功として保存し、
// 以後のヒットでは同じエラーを返す。
//
// 共有の計算はどの呼び出し元のキャンセルにも影響されない。各呼び出し元は
// 自分のctxが終わった時点でctx.Err()を返して待機をやめ、計算は続行して
// 結果を保存する。computeは別のgoroutineで実行される。
func (c *TranscriptCache) GetOrCompute(ctx context.Context, fingerprint string, compute func(ctx context.Context) (string, error)) (string, error) {
	key := keyPrefix + fingerprint

	if text, hit := c.lookup(ctx, key); hit {
		c.metrics.RecordCacheLookup(ctx, true)
		return hitResult(text)
	}
	c.metrics.RecordCacheLookup(ctx, false)

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// 待機中に別の呼び出しが保存した可能性がある
		if text, hit := c.lookup(shared, key); hit {
			return hitResult(text)
		}

		text, err := compute(shared)
		switch {
		case err == nil:
			c.save(shared, key, []byte(text))
		case errors.Is(err, domain.ErrNoTextFound):
			c.save(shared, key, noTextMarker)
		}
		return text, err
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// lookup ストアを参照する。読み取りエラーはミスとして扱う
func (c *TranscriptCache) lookup(ctx context.Context, key string) (string, bool) {
	cached, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			slog.Warn("Transcript cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	if len(cached) == 0 {
		return "", false
	}
	return string(cached), true
}

// hitResult 保存値を戻り値に変換
func hitResult(cached string) (string, error) {
	if cached == string(noTextMarker) {
		return "", domain.ErrNoTextFound
	}
	return cached, nil
}

func (c *TranscriptCache) save(ctx context.Context, key string, value []byte) {
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		slog.Warn("Transcript cache write failed", "key", key, "error", err)
	}
}
