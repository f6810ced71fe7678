package telemetry

import (
	"context"
	"fmt"

	"github.com/ogurasousui/revenue-claims/internal/platform/config"
	"github.com/ogurasousui/revenue-claims/internal/platform/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Provider はトレーサープロバイダと、その終了処理をまとめます。
type Provider struct {
	*sdktrace.TracerProvider
}

// Shutdown は未送信のスパンを flush してからプロバイダを停止します。
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	return nil
}

// NewTracerProvider は設定に従って SDK のトレーサープロバイダを構築し、グローバルに登録します。
// 無効化されている場合はエクスポーターを持たないプロバイダを返します。
func NewTracerProvider(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	logger = logging.OrNop(logger)

	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(sdkresource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	if cfg.Enabled {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
		}
		base = append(base, sdktrace.WithBatcher(exporter))
		logger.Info("trace export enabled",
			zap.String("endpoint", cfg.CollectorEndpoint),
			zap.Float64("sample_ratio", cfg.SampleRatio),
		)
	} else {
		logger.Warn("trace export disabled")
	}

	tp := sdktrace.NewTracerProvider(append(base, opts...)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Provider{TracerProvider: tp}, nil
}
