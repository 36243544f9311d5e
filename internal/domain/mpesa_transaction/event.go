package mpesa_transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentOutcomeEvent PendingTransactionが終端状態になったことを通知するイベント
type PaymentOutcomeEvent struct {
	EventID           string    `json:"event_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	Status            string    `json:"status"`
	ResultCode        int       `json:"result_code"`
	ResultDesc        string    `json:"result_desc"`
	Amount            int64     `json:"amount"`
	SettledAmount     string    `json:"settled_amount,omitempty"`
	ReceiptNumber     string    `json:"mpesa_receipt_number,omitempty"`
	TransactionDate   string    `json:"transaction_date,omitempty"`
	PhoneNumber       string    `json:"phone_number"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NewPaymentOutcomeEvent 終端状態のPendingTransactionからイベントを作成
func NewPaymentOutcomeEvent(t *PendingTransaction) *PaymentOutcomeEvent {
	event := &PaymentOutcomeEvent{
		EventID:           uuid.New().String(),
		CheckoutRequestID: t.checkoutRequestID,
		MerchantRequestID: t.merchantRequestID,
		Status:            t.status.String(),
		ResultDesc:        t.resultDesc,
		Amount:            t.amount,
		ReceiptNumber:     t.receiptNumber,
		TransactionDate:   t.transactionDate,
		PhoneNumber:       t.phoneNumber,
		OccurredAt:        t.updatedAt,
	}
	if t.resultCode != nil {
		event.ResultCode = *t.resultCode
	}
	if t.settledAmount.Valid {
		event.SettledAmount = t.settledAmount.Decimal.String()
	}
	if t.payerPhone != "" {
		event.PhoneNumber = t.payerPhone
	}
	return event
}

// OutcomePublisher 決済結果イベントの発行
type OutcomePublisher interface {
	Publish(ctx context.Context, event *PaymentOutcomeEvent) error
	Close() error
}
