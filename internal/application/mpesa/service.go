package mpesa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tip-server/internal/domain/mpesa_transaction"
	"tip-server/internal/infrastructure/config"
	mpesainfra "tip-server/internal/infrastructure/mpesa"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
)

const (
	ackSuccess  = "Success"
	ackReceived = "Received"

	// callbackMalformed ResultCodeのないコールバックのメトリクス値
	callbackMalformed = "malformed"
	// callbackRejected トークンが一致しないコールバックのメトリクス値
	callbackRejected = "rejected"
)

// Gateway Daraja APIへのポート
type Gateway interface {
	GetAccessToken(ctx context.Context) (string, error)
	STKPush(ctx context.Context, accessToken string, body *mpesainfra.STKPushRequest) (*mpesainfra.STKPushResponse, error)
}

// MpesaApplicationService M-Pesa STK Pushアプリケーションサービス
type MpesaApplicationService struct {
	cfg       *config.MpesaConfig
	gateway   Gateway
	repo      mpesa_transaction.PendingTransactionRepository
	publisher mpesa_transaction.OutcomePublisher
	logger    *otelinfra.Logger
	metrics   *otelinfra.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewMpesaApplicationService 新しいMpesaApplicationServiceを作成
func NewMpesaApplicationService(
	cfg *config.MpesaConfig,
	gateway Gateway,
	repo mpesa_transaction.PendingTransactionRepository,
	publisher mpesa_transaction.OutcomePublisher,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *MpesaApplicationService {
	return &MpesaApplicationService{
		cfg:       cfg,
		gateway:   gateway,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("mpesa-service"),
		now:       time.Now,
	}
}

// InitiateSTKPush 支払者の端末にSTK Pushを送信する
// 受付時はPendingTransactionを保存するが、保存失敗は応答に影響させない
func (s *MpesaApplicationService) InitiateSTKPush(ctx context.Context, req *InitiateSTKPushRequest) (*InitiateSTKPushResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MpesaApplicationService.InitiateSTKPush")
	defer span.End()

	// バリデーション（電話番号の形式は呼び出し側で正規化済み）
	if req.PhoneNumber == "" || req.Amount.IsZero() {
		span.SetStatus(otelcodes.Error, ErrMissingFields.Error())
		return nil, ErrMissingFields
	}

	if err := s.cfg.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "M-Pesa configuration incomplete", err, nil)
		s.metrics.RecordSTKPush(ctx, "error")
		return nil, err
	}

	amount := mpesainfra.RoundAmount(req.Amount)
	span.SetAttributes(attribute.Int64("amount", amount))

	s.logger.Info(ctx, "Initiating STK push", map[string]interface{}{
		"phone_number": req.PhoneNumber,
		"amount":       amount,
	})

	token, err := s.gateway.GetAccessToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to get M-Pesa access token", err, nil)
		s.metrics.RecordSTKPush(ctx, "error")
		return nil, err
	}

	loc, err := s.cfg.Location()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.metrics.RecordSTKPush(ctx, "error")
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	timestamp := mpesainfra.GenerateTimestamp(s.now().In(loc))

	body := &mpesainfra.STKPushRequest{
		BusinessShortCode: s.cfg.Shortcode,
		Password:          mpesainfra.GeneratePassword(s.cfg.Shortcode, s.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   TransactionTypePayBillOnline,
		Amount:            amount,
		PartyA:            req.PhoneNumber,
		PartyB:            s.cfg.Shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       s.cfg.CallbackURLWithToken(),
		AccountReference:  valueOrDefault(req.AccountReference, DefaultAccountReference),
		TransactionDesc:   valueOrDefault(req.TransactionDesc, DefaultTransactionDesc),
	}

	resp, err := s.gateway.STKPush(ctx, token, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "STK push request failed", err, nil)
		s.metrics.RecordSTKPush(ctx, "error")
		return nil, err
	}

	if !resp.Accepted() {
		rejected := &RejectedError{
			ResponseCode: strings.Trim(string(resp.ResponseCode), `"`),
			Description:  firstNonEmpty(resp.ResponseDescription, resp.ErrorMessage),
		}
		span.SetStatus(otelcodes.Error, rejected.Error())
		s.logger.Warn(ctx, "STK push rejected by provider", map[string]interface{}{
			"response_code": rejected.ResponseCode,
			"error_code":    resp.ErrorCode,
			"description":   rejected.Error(),
			"http_status":   resp.HTTPStatus,
		})
		s.metrics.RecordSTKPush(ctx, "rejected")
		return nil, rejected
	}

	span.SetAttributes(
		attribute.String("checkout_request_id", resp.CheckoutRequestID),
		attribute.String("merchant_request_id", resp.MerchantRequestID),
	)
	s.metrics.RecordSTKPush(ctx, "accepted")
	s.recordPending(ctx, req, amount, body, resp)

	s.logger.Info(ctx, "STK push accepted", map[string]interface{}{
		"checkout_request_id": resp.CheckoutRequestID,
		"merchant_request_id": resp.MerchantRequestID,
	})

	return &InitiateSTKPushResponse{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// recordPending 受付済みのSTK PushをPendingTransactionとして保存
func (s *MpesaApplicationService) recordPending(
	ctx context.Context,
	req *InitiateSTKPushRequest,
	amount int64,
	body *mpesainfra.STKPushRequest,
	resp *mpesainfra.STKPushResponse,
) {
	tx, err := mpesa_transaction.NewPendingTransaction(
		resp.CheckoutRequestID,
		resp.MerchantRequestID,
		req.PhoneNumber,
		amount,
		body.AccountReference,
		body.TransactionDesc,
	)
	if err == nil {
		err = s.repo.Save(ctx, tx)
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to record pending transaction", err, map[string]interface{}{
			"checkout_request_id": resp.CheckoutRequestID,
			"merchant_request_id": resp.MerchantRequestID,
		})
	}
}

// AuthorizeCallback コールバックURLのトークンを照合する
// CallbackTokenが未設定の場合は常に受け入れる
func (s *MpesaApplicationService) AuthorizeCallback(ctx context.Context, token, clientIP string) bool {
	expected := s.cfg.CallbackToken
	if expected == "" {
		return true
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1 {
		return true
	}
	s.logger.Warn(ctx, "M-Pesa callback rejected: invalid token", map[string]interface{}{
		"client_ip":     clientIP,
		"token_present": token != "",
	})
	s.metrics.RecordCallback(ctx, callbackRejected)
	return false
}

// HandleCallback Darajaからの結果通知を処理する
// どのような入力でもエラーを返さず、応答内容だけを決める
func (s *MpesaApplicationService) HandleCallback(ctx context.Context, cb *STKCallback) *CallbackAck {
	ctx, span := s.tracer.Start(ctx, "MpesaApplicationService.HandleCallback")
	defer span.End()

	span.SetAttributes(
		attribute.String("checkout_request_id", cb.CheckoutRequestID),
		attribute.String("merchant_request_id", cb.MerchantRequestID),
	)

	ack := &CallbackAck{ResultCode: 0, ResultDesc: ackReceived}

	// ResultCodeのない通知は結果を判断できないため、記録だけして照合しない
	if cb.ResultCode == nil {
		span.SetStatus(otelcodes.Error, "callback without ResultCode")
		s.logger.Warn(ctx, "Malformed M-Pesa callback: ResultCode missing", map[string]interface{}{
			"checkout_request_id": cb.CheckoutRequestID,
			"merchant_request_id": cb.MerchantRequestID,
			"result_desc":         cb.ResultDesc,
		})
		s.metrics.RecordCallback(ctx, callbackMalformed)
		return ack
	}
	resultCode := *cb.ResultCode
	span.SetAttributes(attribute.Int("result_code", resultCode))

	s.logger.Info(ctx, "M-Pesa callback received", map[string]interface{}{
		"checkout_request_id": cb.CheckoutRequestID,
		"merchant_request_id": cb.MerchantRequestID,
		"result_code":         resultCode,
		"result_desc":         cb.ResultDesc,
	})

	var outcome mpesa_transaction.Outcome
	if resultCode == mpesa_transaction.ResultCodeSuccess {
		outcome = ExtractOutcome(cb.metadataItems())
		amount := ""
		if outcome.Amount.Valid {
			amount = outcome.Amount.Decimal.String()
		}
		s.logger.Info(ctx, "Payment successful", map[string]interface{}{
			"merchant_request_id":  cb.MerchantRequestID,
			"checkout_request_id":  cb.CheckoutRequestID,
			"amount":               amount,
			"mpesa_receipt_number": outcome.MpesaReceiptNumber,
			"transaction_date":     outcome.TransactionDate,
			"phone_number":         outcome.PhoneNumber,
		})
		ack.ResultDesc = ackSuccess
	} else {
		s.logger.Warn(ctx, "Payment failed", map[string]interface{}{
			"checkout_request_id": cb.CheckoutRequestID,
			"code":                resultCode,
			"description":         cb.ResultDesc,
		})
	}

	s.metrics.RecordCallback(ctx, mpesa_transaction.StatusForResultCode(resultCode).String())
	s.reconcile(ctx, cb, resultCode, outcome)

	return ack
}

// reconcile 対応するPendingTransactionを終端状態に遷移させ、結果イベントを発行する
func (s *MpesaApplicationService) reconcile(ctx context.Context, cb *STKCallback, resultCode int, outcome mpesa_transaction.Outcome) {
	fields := map[string]interface{}{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         resultCode,
	}

	if cb.CheckoutRequestID == "" {
		s.logger.Warn(ctx, "Callback without checkout request id", fields)
		return
	}

	tx, err := s.repo.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, mpesa_transaction.ErrTransactionNotFound) {
		s.logger.Warn(ctx, "Callback for unknown checkout request", fields)
		return
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to find pending transaction", err, fields)
		return
	}

	if err := tx.ApplyResult(resultCode, cb.ResultDesc, outcome); err != nil {
		s.logDuplicateOrError(ctx, err, tx, fields)
		return
	}
	if err := s.repo.Update(ctx, tx); err != nil {
		s.logDuplicateOrError(ctx, err, tx, fields)
		return
	}

	s.logger.Info(ctx, "Pending transaction finalized", map[string]interface{}{
		"checkout_request_id": tx.CheckoutRequestID(),
		"status":              tx.Status().String(),
	})

	if err := s.publisher.Publish(ctx, mpesa_transaction.NewPaymentOutcomeEvent(tx)); err != nil {
		s.logger.Error(ctx, "Failed to publish payment outcome event", err, fields)
	}
}

func (s *MpesaApplicationService) logDuplicateOrError(ctx context.Context, err error, tx *mpesa_transaction.PendingTransaction, fields map[string]interface{}) {
	if errors.Is(err, mpesa_transaction.ErrTransactionAlreadyFinalized) {
		s.logger.Info(ctx, "Duplicate callback ignored", map[string]interface{}{
			"checkout_request_id": tx.CheckoutRequestID(),
			"status":              tx.Status().String(),
		})
		return
	}
	s.logger.Error(ctx, "Failed to update pending transaction", err, fields)
}

// GetStatus CheckoutRequestIDで決済ステータスを取得
func (s *MpesaApplicationService) GetStatus(ctx context.Context, checkoutRequestID string) (*TransactionStatusResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MpesaApplicationService.GetStatus")
	defer span.End()

	span.SetAttributes(attribute.String("checkout_request_id", checkoutRequestID))

	tx, err := s.repo.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if errors.Is(err, mpesa_transaction.ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get transaction status: %w", err)
	}

	return &TransactionStatusResponse{
		CheckoutRequestID:  tx.CheckoutRequestID(),
		MerchantRequestID:  tx.MerchantRequestID(),
		Status:             tx.Status().String(),
		ResultCode:         tx.ResultCode(),
		ResultDesc:         tx.ResultDesc(),
		MpesaReceiptNumber: tx.ReceiptNumber(),
		Amount:             tx.Amount(),
		UpdatedAt:          tx.UpdatedAt(),
	}, nil
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
