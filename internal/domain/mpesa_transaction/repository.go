package mpesa_transaction

import (
	"context"
)

// ListFilter 一覧取得の条件
type ListFilter struct {
	Status Status // 空の場合は全ステータス
	Limit  int
	Offset int
}

// PendingTransactionRepository PendingTransactionリポジトリインターフェース
type PendingTransactionRepository interface {
	// Save PendingTransactionを保存
	Save(ctx context.Context, tx *PendingTransaction) error

	// FindByCheckoutRequestID CheckoutRequestIDでPendingTransactionを取得
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*PendingTransaction, error)

	// Update pendingのPendingTransactionを終端状態で更新
	// 既に終端状態の場合はErrTransactionAlreadyFinalizedを返す
	Update(ctx context.Context, tx *PendingTransaction) error

	// List 作成日時の新しい順に一覧を取得
	List(ctx context.Context, filter ListFilter) ([]*PendingTransaction, error)

	// Count 条件に一致する件数を取得
	Count(ctx context.Context, status Status) (int, error)
}
