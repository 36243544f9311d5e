package history

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tip-server/internal/domain/mpesa_transaction"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// HistoryApplicationService 決済履歴アプリケーションサービス（管理画面向け）
type HistoryApplicationService struct {
	repo   mpesa_transaction.PendingTransactionRepository
	logger *otelinfra.Logger
	tracer trace.Tracer
}

// NewHistoryApplicationService 新しいHistoryApplicationServiceを作成
func NewHistoryApplicationService(
	repo mpesa_transaction.PendingTransactionRepository,
	logger *otelinfra.Logger,
) *HistoryApplicationService {
	return &HistoryApplicationService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("history-service"),
	}
}

// ListPayments STK Push決済の一覧を新しい順に取得
func (s *HistoryApplicationService) ListPayments(ctx context.Context, req *ListPaymentsRequest) (*ListPaymentsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "HistoryApplicationService.ListPayments")
	defer span.End()

	// バリデーション
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	var status mpesa_transaction.Status
	if req.Status != "" {
		st, err := mpesa_transaction.NewStatus(req.Status)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		status = st
	}

	span.SetAttributes(
		attribute.String("status", status.String()),
		attribute.Int("limit", req.Limit),
		attribute.Int("offset", req.Offset),
	)

	s.logger.Info(ctx, "Listing payments", map[string]interface{}{
		"status": req.Status,
		"limit":  req.Limit,
		"offset": req.Offset,
	})

	payments, err := s.repo.List(ctx, mpesa_transaction.ListFilter{
		Status: status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to list payments", err, nil)
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	total, err := s.repo.Count(ctx, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to count payments", err, nil)
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	return &ListPaymentsResponse{
		Payments: payments,
		Total:    total,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}, nil
}
