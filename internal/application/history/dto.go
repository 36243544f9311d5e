package history

import "tip-server/internal/domain/mpesa_transaction"

// ListPaymentsRequest 決済一覧取得リクエスト
type ListPaymentsRequest struct {
	Status string // optional: "pending", "succeeded", "failed", "cancelled"
	Limit  int
	Offset int
}

// ListPaymentsResponse 決済一覧取得レスポンス
type ListPaymentsResponse struct {
	Payments []*mpesa_transaction.PendingTransaction
	Total    int
	Limit    int
	Offset   int
}
