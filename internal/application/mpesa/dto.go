package mpesa

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultAccountReference AccountReference未指定時の既定値
	DefaultAccountReference = "TheMwendaChronicles"
	// DefaultTransactionDesc TransactionDesc未指定時の既定値
	DefaultTransactionDesc = "Blog Support"
	// TransactionTypePayBillOnline STK Pushの取引種別
	TransactionTypePayBillOnline = "CustomerPayBillOnline"
)

// InitiateSTKPushRequest STK Push開始リクエスト
type InitiateSTKPushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal // ゼロは未指定として扱う
	AccountReference string          // optional
	TransactionDesc  string          // optional
}

// InitiateSTKPushResponse STK Push開始レスポンス
type InitiateSTKPushResponse struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

// CallbackAck Darajaへ返すコールバック応答
type CallbackAck struct {
	ResultCode int
	ResultDesc string // "Success" or "Received"
}

// TransactionStatusResponse 決済ステータス取得レスポンス
type TransactionStatusResponse struct {
	CheckoutRequestID  string
	MerchantRequestID  string
	Status             string
	ResultCode         *int
	ResultDesc         string
	MpesaReceiptNumber string
	Amount             int64
	UpdatedAt          time.Time
}
