package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics メトリクス定義
type Metrics struct {
	// STK Push要求数（結果別）
	STKPushCount metric.Int64Counter

	// コールバック受信数（決済結果別）
	CallbackCount metric.Int64Counter

	// アクセストークンキャッシュのヒット/ミス
	TokenCacheCount metric.Int64Counter

	// M-Pesa API呼び出し時間
	ProviderLatency metric.Float64Histogram

	// リクエスト数
	RequestCount metric.Int64Counter

	// レスポンス時間
	ResponseTime metric.Float64Histogram

	// エラー数
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	stkPushCount, err := meter.Int64Counter(
		"mpesa_stk_push_total",
		metric.WithDescription("Total number of STK push initiations by result"),
	)
	if err != nil {
		return nil, err
	}

	callbackCount, err := meter.Int64Counter(
		"mpesa_callbacks_total",
		metric.WithDescription("Total number of STK callbacks received by outcome"),
	)
	if err != nil {
		return nil, err
	}

	tokenCacheCount, err := meter.Int64Counter(
		"mpesa_token_cache_total",
		metric.WithDescription("Access token cache lookups by result"),
	)
	if err != nil {
		return nil, err
	}

	providerLatency, err := meter.Float64Histogram(
		"mpesa_provider_request_seconds",
		metric.WithDescription("Latency of calls to the M-Pesa API in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestCount, err := meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of requests"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"response_time_seconds",
		metric.WithDescription("Response time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		STKPushCount:    stkPushCount,
		CallbackCount:   callbackCount,
		TokenCacheCount: tokenCacheCount,
		ProviderLatency: providerLatency,
		RequestCount:    requestCount,
		ResponseTime:    responseTime,
		ErrorCount:      errorCount,
	}, nil
}

// RecordSTKPush STK Pushの結果を記録（accepted, rejected, error）
func (m *Metrics) RecordSTKPush(ctx context.Context, result string) {
	m.STKPushCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("result", result),
		),
	)
}

// RecordCallback コールバックの決済結果を記録
func (m *Metrics) RecordCallback(ctx context.Context, outcome string) {
	m.CallbackCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
}

// RecordTokenCache トークンキャッシュのヒット/ミスを記録
func (m *Metrics) RecordTokenCache(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TokenCacheCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("result", result),
		),
	)
}

// RecordProviderLatency M-Pesa API呼び出し時間を記録
func (m *Metrics) RecordProviderLatency(ctx context.Context, operation string, statusCode int, duration float64) {
	m.ProviderLatency.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.Int("status_code", statusCode),
		),
	)
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.ResponseTime.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error_type", errorType),
		),
	)
}
