package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tip-server/internal/domain/mpesa_transaction"
)

const mpesaTransactionColumns = `
			checkout_request_id, merchant_request_id, phone_number, amount,
			account_reference, transaction_desc, status, result_code, result_desc,
			mpesa_receipt_number, settled_amount, transaction_date, payer_phone,
			created_at, updated_at`

// MpesaTransactionRepository MySQL実装のPendingTransactionRepository
type MpesaTransactionRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewMpesaTransactionRepository 新しいMpesaTransactionRepositoryを作成
func NewMpesaTransactionRepository(db *DB) *MpesaTransactionRepository {
	return &MpesaTransactionRepository{
		db:     db,
		tracer: otel.Tracer("mpesa-transaction-repository"),
	}
}

// Save PendingTransactionを保存
func (r *MpesaTransactionRepository) Save(ctx context.Context, tx *mpesa_transaction.PendingTransaction) error {
	ctx, span := r.tracer.Start(ctx, "MpesaTransactionRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("checkout_request_id", tx.CheckoutRequestID()),
	)

	query := `
		INSERT INTO mpesa_transactions (` + mpesaTransactionColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.CheckoutRequestID(),
		tx.MerchantRequestID(),
		tx.PhoneNumber(),
		tx.Amount(),
		tx.AccountReference(),
		tx.TransactionDesc(),
		tx.Status().String(),
		nullInt(tx.ResultCode()),
		nullString(tx.ResultDesc()),
		nullString(tx.ReceiptNumber()),
		tx.SettledAmount(),
		nullString(tx.TransactionDate()),
		nullString(tx.PayerPhone()),
		tx.CreatedAt(),
		tx.UpdatedAt(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save mpesa transaction: %w", err)
	}

	return nil
}

// FindByCheckoutRequestID CheckoutRequestIDでPendingTransactionを取得
func (r *MpesaTransactionRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*mpesa_transaction.PendingTransaction, error) {
	ctx, span := r.tracer.Start(ctx, "MpesaTransactionRepository.FindByCheckoutRequestID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("checkout_request_id", checkoutRequestID),
	)

	query := `
		SELECT` + mpesaTransactionColumns + `
		FROM mpesa_transactions
		WHERE checkout_request_id = ?
	`

	tx, err := scanMpesaTransaction(r.db.QueryRowContext(ctx, query, checkoutRequestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mpesa_transaction.ErrTransactionNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find mpesa transaction: %w", err)
	}

	return tx, nil
}

// Update pendingの行のみを終端状態で更新
// 同じコールバックが同時に届いても1回しか遷移しない
func (r *MpesaTransactionRepository) Update(ctx context.Context, tx *mpesa_transaction.PendingTransaction) error {
	ctx, span := r.tracer.Start(ctx, "MpesaTransactionRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("checkout_request_id", tx.CheckoutRequestID()),
		attribute.String("status", tx.Status().String()),
	)

	query := `
		UPDATE mpesa_transactions
		SET status = ?, result_code = ?, result_desc = ?,
			mpesa_receipt_number = ?, settled_amount = ?, transaction_date = ?,
			payer_phone = ?, updated_at = ?
		WHERE checkout_request_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		tx.Status().String(),
		nullInt(tx.ResultCode()),
		nullString(tx.ResultDesc()),
		nullString(tx.ReceiptNumber()),
		tx.SettledAmount(),
		nullString(tx.TransactionDate()),
		nullString(tx.PayerPhone()),
		tx.UpdatedAt(),
		tx.CheckoutRequestID(),
		mpesa_transaction.StatusPending.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to update mpesa transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return mpesa_transaction.ErrTransactionAlreadyFinalized
	}

	return nil
}

// List 作成日時の新しい順に一覧を取得
func (r *MpesaTransactionRepository) List(ctx context.Context, filter mpesa_transaction.ListFilter) ([]*mpesa_transaction.PendingTransaction, error) {
	ctx, span := r.tracer.Start(ctx, "MpesaTransactionRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("status", filter.Status.String()),
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
	)

	query := `
		SELECT` + mpesaTransactionColumns + `
		FROM mpesa_transactions`
	args := make([]interface{}, 0, 3)
	if filter.Status != "" {
		query += `
		WHERE status = ?`
		args = append(args, filter.Status.String())
	}
	query += `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list mpesa transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*mpesa_transaction.PendingTransaction
	for rows.Next() {
		tx, err := scanMpesaTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mpesa transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mpesa transactions: %w", err)
	}

	return transactions, nil
}

// Count 条件に一致する件数を取得
func (r *MpesaTransactionRepository) Count(ctx context.Context, status mpesa_transaction.Status) (int, error) {
	ctx, span := r.tracer.Start(ctx, "MpesaTransactionRepository.Count")
	defer span.End()

	query := `SELECT COUNT(*) FROM mpesa_transactions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status.String())
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("failed to count mpesa transactions: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMpesaTransaction(row rowScanner) (*mpesa_transaction.PendingTransaction, error) {
	var (
		p                                     mpesa_transaction.RestoreParams
		status                                string
		resultCode                            sql.NullInt64
		resultDesc, receipt, txDate, payerTel sql.NullString
		settled                               decimal.NullDecimal
		createdAt, updatedAt                  time.Time
	)

	err := row.Scan(
		&p.CheckoutRequestID,
		&p.MerchantRequestID,
		&p.PhoneNumber,
		&p.Amount,
		&p.AccountReference,
		&p.TransactionDesc,
		&status,
		&resultCode,
		&resultDesc,
		&receipt,
		&settled,
		&txDate,
		&payerTel,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	st, err := mpesa_transaction.NewStatus(status)
	if err != nil {
		return nil, err
	}

	p.Status = st
	if resultCode.Valid {
		code := int(resultCode.Int64)
		p.ResultCode = &code
	}
	p.ResultDesc = resultDesc.String
	p.ReceiptNumber = receipt.String
	p.SettledAmount = settled
	p.TransactionDate = txDate.String
	p.PayerPhone = payerTel.String
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt

	return mpesa_transaction.Restore(p), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

var _ mpesa_transaction.PendingTransactionRepository = (*MpesaTransactionRepository)(nil)
