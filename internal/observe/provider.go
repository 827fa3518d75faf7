package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider Prometheusエクスポーター付きのMeterProviderを登録する
//
// 戻り値のshutdownはmainでdeferして呼ぶ。
func InitProvider() (shutdown func(context.Context) error, err error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
