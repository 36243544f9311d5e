package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tip-server/internal/domain/mpesa_transaction"
)

var mpesaTransactionRowColumns = []string{
	"checkout_request_id", "merchant_request_id", "phone_number", "amount",
	"account_reference", "transaction_desc", "status", "result_code", "result_desc",
	"mpesa_receipt_number", "settled_amount", "transaction_date", "payer_phone",
	"created_at", "updated_at",
}

func newTestRepository(t *testing.T) (*MpesaTransactionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMpesaTransactionRepository(&DB{DB: db}), mock
}

func newPendingTransaction(t *testing.T) *mpesa_transaction.PendingTransaction {
	t.Helper()
	tx, err := mpesa_transaction.NewPendingTransaction(
		"ws_CO_191220191020363925", "29115-34620561-1", "254712345678", 401, "TheMwendaChronicles", "Blog Support",
	)
	require.NoError(t, err)
	return tx
}

func TestMpesaTransactionRepository_Save(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError bool
	}{
		{
			name: "正常系: pendingで保存",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO mpesa_transactions`).
					WithArgs(
						"ws_CO_191220191020363925",
						"29115-34620561-1",
						"254712345678",
						int64(401),
						"TheMwendaChronicles",
						"Blog Support",
						"pending",
						nil,
						nil,
						nil,
						nil,
						nil,
						nil,
						sqlmock.AnyArg(),
						sqlmock.AnyArg(),
					).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "異常系: DBエラー",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO mpesa_transactions`).
					WillReturnError(sql.ErrConnDone)
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			tt.setupMock(mock)

			err := repo.Save(context.Background(), newPendingTransaction(t))
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMpesaTransactionRepository_FindByCheckoutRequestID(t *testing.T) {
	created := time.Date(2026, 1, 5, 3, 7, 9, 0, time.UTC)
	updated := created.Add(time.Minute)

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		check     func(t *testing.T, tx *mpesa_transaction.PendingTransaction)
		wantError error
		anyError  bool
	}{
		{
			name: "正常系: pending",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(mpesaTransactionRowColumns).AddRow(
					"ws_CO_1", "m-1", "254712345678", int64(401), "TheMwendaChronicles", "Blog Support",
					"pending", nil, nil, nil, nil, nil, nil, created, created,
				)
				mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions WHERE checkout_request_id = \?`).
					WithArgs("ws_CO_1").
					WillReturnRows(rows)
			},
			check: func(t *testing.T, tx *mpesa_transaction.PendingTransaction) {
				assert.Equal(t, "ws_CO_1", tx.CheckoutRequestID())
				assert.Equal(t, mpesa_transaction.StatusPending, tx.Status())
				assert.Nil(t, tx.ResultCode())
				assert.False(t, tx.SettledAmount().Valid)
				assert.Equal(t, int64(401), tx.Amount())
			},
		},
		{
			name: "正常系: succeeded",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(mpesaTransactionRowColumns).AddRow(
					"ws_CO_1", "m-1", "254712345678", int64(401), "TheMwendaChronicles", "Blog Support",
					"succeeded", int64(0), "The service request is processed successfully.", "NLJ7RT61SV",
					"401.00", "20191219102115", "254708374149", created, updated,
				)
				mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions`).
					WithArgs("ws_CO_1").
					WillReturnRows(rows)
			},
			check: func(t *testing.T, tx *mpesa_transaction.PendingTransaction) {
				assert.Equal(t, mpesa_transaction.StatusSucceeded, tx.Status())
				require.NotNil(t, tx.ResultCode())
				assert.Equal(t, 0, *tx.ResultCode())
				assert.Equal(t, "NLJ7RT61SV", tx.ReceiptNumber())
				assert.True(t, decimal.NewFromInt(401).Equal(tx.SettledAmount().Decimal))
				assert.Equal(t, "20191219102115", tx.TransactionDate())
				assert.Equal(t, "254708374149", tx.PayerPhone())
				assert.Equal(t, updated, tx.UpdatedAt())
			},
		},
		{
			name: "異常系: 見つからない",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions`).
					WithArgs("ws_CO_1").
					WillReturnError(sql.ErrNoRows)
			},
			wantError: mpesa_transaction.ErrTransactionNotFound,
		},
		{
			name: "異常系: 不明なステータス",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(mpesaTransactionRowColumns).AddRow(
					"ws_CO_1", "m-1", "254712345678", int64(401), "", "",
					"unknown", nil, nil, nil, nil, nil, nil, created, created,
				)
				mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions`).
					WithArgs("ws_CO_1").
					WillReturnRows(rows)
			},
			wantError: mpesa_transaction.ErrInvalidTransaction,
		},
		{
			name: "異常系: DBエラー",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions`).
					WithArgs("ws_CO_1").
					WillReturnError(sql.ErrConnDone)
			},
			anyError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			tt.setupMock(mock)

			got, err := repo.FindByCheckoutRequestID(context.Background(), "ws_CO_1")
			switch {
			case tt.wantError != nil:
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, got)
			case tt.anyError:
				assert.Error(t, err)
				assert.Nil(t, got)
			default:
				require.NoError(t, err)
				tt.check(t, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMpesaTransactionRepository_Update(t *testing.T) {
	succeeded := func(t *testing.T) *mpesa_transaction.PendingTransaction {
		tx := newPendingTransaction(t)
		require.NoError(t, tx.Succeed("ok", mpesa_transaction.Outcome{
			Amount:             decimal.NewNullDecimal(decimal.NewFromInt(401)),
			MpesaReceiptNumber: "NLJ7RT61SV",
			TransactionDate:    "20191219102115",
			PhoneNumber:        "254708374149",
		}))
		return tx
	}

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError error
		anyError  bool
	}{
		{
			name: "正常系: pendingの行を更新",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE mpesa_transactions SET .+ WHERE checkout_request_id = \? AND status = \?`).
					WithArgs(
						"succeeded",
						int64(0),
						"ok",
						"NLJ7RT61SV",
						"401",
						"20191219102115",
						"254708374149",
						sqlmock.AnyArg(),
						"ws_CO_191220191020363925",
						"pending",
					).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "異常系: 既に終端状態",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE mpesa_transactions`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantError: mpesa_transaction.ErrTransactionAlreadyFinalized,
		},
		{
			name: "異常系: DBエラー",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE mpesa_transactions`).
					WillReturnError(sql.ErrConnDone)
			},
			anyError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			tt.setupMock(mock)

			err := repo.Update(context.Background(), succeeded(t))
			switch {
			case tt.wantError != nil:
				assert.ErrorIs(t, err, tt.wantError)
			case tt.anyError:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMpesaTransactionRepository_List(t *testing.T) {
	created := time.Date(2026, 1, 5, 3, 7, 9, 0, time.UTC)

	t.Run("正常系: ステータス指定なし", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		rows := sqlmock.NewRows(mpesaTransactionRowColumns).
			AddRow("ws_CO_2", "m-2", "254712345678", int64(100), "", "", "pending",
				nil, nil, nil, nil, nil, nil, created.Add(time.Minute), created.Add(time.Minute)).
			AddRow("ws_CO_1", "m-1", "254712345678", int64(401), "", "", "failed",
				int64(1), "insufficient", nil, nil, nil, nil, created, created)
		mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions\s+ORDER BY created_at DESC\s+LIMIT \? OFFSET \?`).
			WithArgs(50, 0).
			WillReturnRows(rows)

		got, err := repo.List(context.Background(), mpesa_transaction.ListFilter{Limit: 50})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "ws_CO_2", got[0].CheckoutRequestID())
		assert.Equal(t, mpesa_transaction.StatusFailed, got[1].Status())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: ステータス指定あり", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions\s+WHERE status = \?\s+ORDER BY created_at DESC`).
			WithArgs("succeeded", 10, 20).
			WillReturnRows(sqlmock.NewRows(mpesaTransactionRowColumns))

		got, err := repo.List(context.Background(), mpesa_transaction.ListFilter{
			Status: mpesa_transaction.StatusSucceeded,
			Limit:  10,
			Offset: 20,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT .+ FROM mpesa_transactions`).
			WillReturnError(sql.ErrConnDone)

		_, err := repo.List(context.Background(), mpesa_transaction.ListFilter{Limit: 50})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMpesaTransactionRepository_Count(t *testing.T) {
	t.Run("正常系: 全件", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM mpesa_transactions$`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		got, err := repo.Count(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: ステータス指定", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM mpesa_transactions WHERE status = \?`).
			WithArgs("pending").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		got, err := repo.Count(context.Background(), mpesa_transaction.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, 3, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`SELECT COUNT`).WillReturnError(sql.ErrConnDone)

		_, err := repo.Count(context.Background(), "")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
