// Package observe はOpenTelemetryのメトリクス計装をまとめる。
//
// メトリクスはOpenTelemetry Metrics APIで記録し、InitProviderで
// Prometheusエクスポーターに接続する。テストではNewMetricsに
// ManualReaderを持つMeterProviderを渡して値を検証する。
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName 計装スコープ名
const meterName = "fresch-tutor"

// latencyBuckets リモートAI呼び出し向けのバケット（秒）
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// Metrics アプリケーションのメトリクス計器
//
// nilのMetricsに対する記録メソッドは何もしない。
type Metrics struct {
	// RemoteCalls リモート呼び出しの試行回数（kind, status）
	RemoteCalls metric.Int64Counter

	// RemoteCallDuration 1回の試行のレイテンシ（kind）
	RemoteCallDuration metric.Float64Histogram

	// Retries バックオフ後の再試行回数（kind）
	Retries metric.Int64Counter

	// CacheLookups キャッシュ参照（result=hit|miss）
	CacheLookups metric.Int64Counter

	// Failures 利用者に返した失敗（kind）
	Failures metric.Int64Counter
}

// NewMetrics 指定したMeterProviderで計器を作成
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RemoteCalls, err = m.Int64Counter("fresch.remote.calls",
		metric.WithDescription("Remote AI call attempts by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.RemoteCallDuration, err = m.Float64Histogram("fresch.remote.duration",
		metric.WithDescription("Latency of a single remote AI call attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("fresch.remote.retries",
		metric.WithDescription("Retries issued after a rate-limited attempt."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("fresch.cache.lookups",
		metric.WithDescription("Transcript cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("fresch.failures",
		metric.WithDescription("Failures returned to the presentation layer by kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics グローバルMeterProviderを使うMetricsを返す
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordRemoteCall 1回の試行を記録
func (m *Metrics) RecordRemoteCall(ctx context.Context, kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RemoteCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.RemoteCallDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordRetry 再試行を記録
func (m *Metrics) RecordRetry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCacheLookup キャッシュ参照を記録
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordFailure 失敗を記録
func (m *Metrics) RecordFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
