package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"tip-server/internal/domain/mpesa_transaction"
	mpesainfra "tip-server/internal/infrastructure/mpesa"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
)

// MockGateway モックDarajaゲートウェイ
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetAccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) STKPush(ctx context.Context, accessToken string, body *mpesainfra.STKPushRequest) (*mpesainfra.STKPushResponse, error) {
	args := m.Called(ctx, accessToken, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesainfra.STKPushResponse), args.Error(1)
}

// MockPendingTransactionRepository モックPendingTransactionリポジトリ
type MockPendingTransactionRepository struct {
	mock.Mock
}

func (m *MockPendingTransactionRepository) Save(ctx context.Context, tx *mpesa_transaction.PendingTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPendingTransactionRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*mpesa_transaction.PendingTransaction, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa_transaction.PendingTransaction), args.Error(1)
}

func (m *MockPendingTransactionRepository) Update(ctx context.Context, tx *mpesa_transaction.PendingTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPendingTransactionRepository) List(ctx context.Context, filter mpesa_transaction.ListFilter) ([]*mpesa_transaction.PendingTransaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mpesa_transaction.PendingTransaction), args.Error(1)
}

func (m *MockPendingTransactionRepository) Count(ctx context.Context, status mpesa_transaction.Status) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

// MockOutcomePublisher モック結果イベントPublisher
type MockOutcomePublisher struct {
	mock.Mock
}

func (m *MockOutcomePublisher) Publish(ctx context.Context, event *mpesa_transaction.PaymentOutcomeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutcomePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestLogger() *otelinfra.Logger {
	return otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"))
}

func newTestMetrics(t *testing.T) *otelinfra.Metrics {
	t.Helper()
	metrics, err := otelinfra.NewMetrics("test")
	require.NoError(t, err)
	return metrics
}
