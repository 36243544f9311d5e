package mpesa_transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PendingTransaction STK Pushで発行された決済の追跡エンティティ
// CheckoutRequestIDをキーに、Initiatorが作成しCallback Receiverが終端状態へ遷移させる
type PendingTransaction struct {
	checkoutRequestID string
	merchantRequestID string
	phoneNumber       string
	amount            int64 // 整数値（最小表示単位、小数点なし）
	accountReference  string
	transactionDesc   string
	status            Status
	resultCode        *int
	resultDesc        string
	receiptNumber     string
	settledAmount     decimal.NullDecimal
	transactionDate   string // YYYYMMDDHHmmss（プロバイダー形式のまま保持）
	payerPhone        string
	createdAt         time.Time
	updatedAt         time.Time
}

// Outcome 成功コールバックから取り出した決済結果
type Outcome struct {
	Amount             decimal.NullDecimal
	MpesaReceiptNumber string
	TransactionDate    string
	PhoneNumber        string
}

// NewPendingTransaction 新しいPendingTransactionエンティティを作成
func NewPendingTransaction(
	checkoutRequestID string,
	merchantRequestID string,
	phoneNumber string,
	amount int64,
	accountReference string,
	transactionDesc string,
) (*PendingTransaction, error) {
	if checkoutRequestID == "" {
		return nil, fmt.Errorf("%w: checkout request id is required", ErrInvalidTransaction)
	}
	now := time.Now()
	return &PendingTransaction{
		checkoutRequestID: checkoutRequestID,
		merchantRequestID: merchantRequestID,
		phoneNumber:       phoneNumber,
		amount:            amount,
		accountReference:  accountReference,
		transactionDesc:   transactionDesc,
		status:            StatusPending,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

// RestoreParams 永続化層から復元するためのパラメータ
type RestoreParams struct {
	CheckoutRequestID string
	MerchantRequestID string
	PhoneNumber       string
	Amount            int64
	AccountReference  string
	TransactionDesc   string
	Status            Status
	ResultCode        *int
	ResultDesc        string
	ReceiptNumber     string
	SettledAmount     decimal.NullDecimal
	TransactionDate   string
	PayerPhone        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Restore 永続化されたPendingTransactionを復元
func Restore(p RestoreParams) *PendingTransaction {
	return &PendingTransaction{
		checkoutRequestID: p.CheckoutRequestID,
		merchantRequestID: p.MerchantRequestID,
		phoneNumber:       p.PhoneNumber,
		amount:            p.Amount,
		accountReference:  p.AccountReference,
		transactionDesc:   p.TransactionDesc,
		status:            p.Status,
		resultCode:        p.ResultCode,
		resultDesc:        p.ResultDesc,
		receiptNumber:     p.ReceiptNumber,
		settledAmount:     p.SettledAmount,
		transactionDate:   p.TransactionDate,
		payerPhone:        p.PayerPhone,
		createdAt:         p.CreatedAt,
		updatedAt:         p.UpdatedAt,
	}
}

// CheckoutRequestID CheckoutRequestIDを返す
func (t *PendingTransaction) CheckoutRequestID() string {
	return t.checkoutRequestID
}

// MerchantRequestID MerchantRequestIDを返す
func (t *PendingTransaction) MerchantRequestID() string {
	return t.merchantRequestID
}

// PhoneNumber 請求先の電話番号を返す
func (t *PendingTransaction) PhoneNumber() string {
	return t.phoneNumber
}

// Amount 請求金額を返す
func (t *PendingTransaction) Amount() int64 {
	return t.amount
}

// AccountReference AccountReferenceを返す
func (t *PendingTransaction) AccountReference() string {
	return t.accountReference
}

// TransactionDesc TransactionDescを返す
func (t *PendingTransaction) TransactionDesc() string {
	return t.transactionDesc
}

// Status ステータスを返す
func (t *PendingTransaction) Status() Status {
	return t.status
}

// ResultCode コールバックのResultCodeを返す（未受信の場合nil）
func (t *PendingTransaction) ResultCode() *int {
	return t.resultCode
}

// ResultDesc コールバックのResultDescを返す
func (t *PendingTransaction) ResultDesc() string {
	return t.resultDesc
}

// ReceiptNumber M-Pesaのレシート番号を返す
func (t *PendingTransaction) ReceiptNumber() string {
	return t.receiptNumber
}

// SettledAmount 実際に決済された金額を返す
func (t *PendingTransaction) SettledAmount() decimal.NullDecimal {
	return t.settledAmount
}

// TransactionDate 決済日時（プロバイダー形式）を返す
func (t *PendingTransaction) TransactionDate() string {
	return t.transactionDate
}

// PayerPhone 実際に支払った電話番号を返す
func (t *PendingTransaction) PayerPhone() string {
	return t.payerPhone
}

// CreatedAt 作成日時を返す
func (t *PendingTransaction) CreatedAt() time.Time {
	return t.createdAt
}

// UpdatedAt 更新日時を返す
func (t *PendingTransaction) UpdatedAt() time.Time {
	return t.updatedAt
}

// IsPending 端末での承認待ちかどうかを返す
func (t *PendingTransaction) IsPending() bool {
	return t.status == StatusPending
}

// Succeed 決済を成功状態にする
func (t *PendingTransaction) Succeed(resultDesc string, outcome Outcome) error {
	if err := t.finalize(StatusSucceeded, ResultCodeSuccess, resultDesc); err != nil {
		return err
	}
	t.receiptNumber = outcome.MpesaReceiptNumber
	t.settledAmount = outcome.Amount
	t.transactionDate = outcome.TransactionDate
	t.payerPhone = outcome.PhoneNumber
	return nil
}

// Fail 決済を失敗状態にする
func (t *PendingTransaction) Fail(resultCode int, resultDesc string) error {
	return t.finalize(StatusFailed, resultCode, resultDesc)
}

// Cancel 決済をキャンセル状態にする
func (t *PendingTransaction) Cancel(resultCode int, resultDesc string) error {
	return t.finalize(StatusCancelled, resultCode, resultDesc)
}

// ApplyResult ResultCodeに応じて終端状態へ遷移させる
func (t *PendingTransaction) ApplyResult(resultCode int, resultDesc string, outcome Outcome) error {
	switch StatusForResultCode(resultCode) {
	case StatusSucceeded:
		return t.Succeed(resultDesc, outcome)
	case StatusCancelled:
		return t.Cancel(resultCode, resultDesc)
	default:
		return t.Fail(resultCode, resultDesc)
	}
}

// finalize pending以外からの遷移は許可しない
func (t *PendingTransaction) finalize(status Status, resultCode int, resultDesc string) error {
	if !t.IsPending() {
		return fmt.Errorf("%w: %s is %s", ErrTransactionAlreadyFinalized, t.checkoutRequestID, t.status)
	}
	code := resultCode
	t.status = status
	t.resultCode = &code
	t.resultDesc = resultDesc
	t.updatedAt = time.Now()
	return nil
}
