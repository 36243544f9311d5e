package mpesa_transaction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(t *testing.T) *PendingTransaction {
	t.Helper()
	tx, err := NewPendingTransaction(
		"ws_CO_191220191020363925",
		"29115-34620561-1",
		"254712345678",
		401,
		"TheMwendaChronicles",
		"Blog Support",
	)
	require.NoError(t, err)
	return tx
}

func TestNewPendingTransaction(t *testing.T) {
	tx := newTestTransaction(t)

	assert.Equal(t, "ws_CO_191220191020363925", tx.CheckoutRequestID())
	assert.Equal(t, "29115-34620561-1", tx.MerchantRequestID())
	assert.Equal(t, "254712345678", tx.PhoneNumber())
	assert.Equal(t, int64(401), tx.Amount())
	assert.Equal(t, "TheMwendaChronicles", tx.AccountReference())
	assert.Equal(t, "Blog Support", tx.TransactionDesc())
	assert.Equal(t, StatusPending, tx.Status())
	assert.True(t, tx.IsPending())
	assert.Nil(t, tx.ResultCode())
	assert.False(t, tx.SettledAmount().Valid)
	assert.WithinDuration(t, time.Now(), tx.CreatedAt(), time.Second)
	assert.WithinDuration(t, time.Now(), tx.UpdatedAt(), time.Second)
}

func TestNewPendingTransaction_EmptyCheckoutRequestID(t *testing.T) {
	tx, err := NewPendingTransaction("", "m", "254712345678", 1, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.Nil(t, tx)
}

func TestPendingTransaction_ApplyResult(t *testing.T) {
	outcome := Outcome{
		Amount:             decimal.NewNullDecimal(decimal.NewFromInt(401)),
		MpesaReceiptNumber: "NLJ7RT61SV",
		TransactionDate:    "20191219102115",
		PhoneNumber:        "254712345678",
	}

	tests := []struct {
		name        string
		resultCode  int
		resultDesc  string
		wantStatus  Status
		wantReceipt string
	}{
		{
			name:        "正常系: ResultCode 0で成功",
			resultCode:  0,
			resultDesc:  "The service request is processed successfully.",
			wantStatus:  StatusSucceeded,
			wantReceipt: "NLJ7RT61SV",
		},
		{
			name:       "正常系: ResultCode 1032でキャンセル",
			resultCode: 1032,
			resultDesc: "Request cancelled by user",
			wantStatus: StatusCancelled,
		},
		{
			name:       "正常系: その他のResultCodeで失敗",
			resultCode: 1,
			resultDesc: "The balance is insufficient for the transaction",
			wantStatus: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTestTransaction(t)

			require.NoError(t, tx.ApplyResult(tt.resultCode, tt.resultDesc, outcome))

			assert.Equal(t, tt.wantStatus, tx.Status())
			require.NotNil(t, tx.ResultCode())
			assert.Equal(t, tt.resultCode, *tx.ResultCode())
			assert.Equal(t, tt.resultDesc, tx.ResultDesc())
			assert.Equal(t, tt.wantReceipt, tx.ReceiptNumber())
			assert.False(t, tx.IsPending())
		})
	}
}

func TestPendingTransaction_Succeed_StoresOutcome(t *testing.T) {
	tx := newTestTransaction(t)

	err := tx.Succeed("ok", Outcome{
		Amount:             decimal.NewNullDecimal(decimal.RequireFromString("400.00")),
		MpesaReceiptNumber: "NLJ7RT61SV",
		TransactionDate:    "20191219102115",
		PhoneNumber:        "254708374149",
	})
	require.NoError(t, err)

	assert.True(t, tx.SettledAmount().Valid)
	assert.True(t, decimal.NewFromInt(400).Equal(tx.SettledAmount().Decimal))
	assert.Equal(t, "20191219102115", tx.TransactionDate())
	assert.Equal(t, "254708374149", tx.PayerPhone())
}

func TestPendingTransaction_FinalizeTwice(t *testing.T) {
	tx := newTestTransaction(t)
	require.NoError(t, tx.Cancel(1032, "Request cancelled by user"))

	err := tx.Succeed("late success", Outcome{MpesaReceiptNumber: "X"})
	assert.ErrorIs(t, err, ErrTransactionAlreadyFinalized)

	// 状態は最初の遷移のまま
	assert.Equal(t, StatusCancelled, tx.Status())
	assert.Equal(t, "", tx.ReceiptNumber())
	assert.Equal(t, 1032, *tx.ResultCode())
}

func TestRestore(t *testing.T) {
	code := 0
	created := time.Date(2026, 1, 5, 3, 7, 9, 0, time.UTC)
	tx := Restore(RestoreParams{
		CheckoutRequestID: "ws_CO_1",
		MerchantRequestID: "m-1",
		PhoneNumber:       "254712345678",
		Amount:            100,
		Status:            StatusSucceeded,
		ResultCode:        &code,
		ResultDesc:        "ok",
		ReceiptNumber:     "R1",
		CreatedAt:         created,
		UpdatedAt:         created,
	})

	assert.Equal(t, "ws_CO_1", tx.CheckoutRequestID())
	assert.Equal(t, StatusSucceeded, tx.Status())
	assert.Equal(t, "R1", tx.ReceiptNumber())
	assert.Equal(t, created, tx.CreatedAt())
	assert.ErrorIs(t, tx.Fail(1, "x"), ErrTransactionAlreadyFinalized)
}
