package mpesa_transaction

import "fmt"

// Status PendingTransactionのステータス
type Status string

const (
	StatusPending   Status = "pending"   // 端末でのPIN入力待ち
	StatusSucceeded Status = "succeeded" // 支払い完了
	StatusFailed    Status = "failed"    // 失敗
	StatusCancelled Status = "cancelled" // 利用者によるキャンセル
)

// ResultCodeSuccess 決済成功を表すResultCode
const ResultCodeSuccess = 0

// ResultCodeCancelledByUser 利用者がSTK Pushをキャンセルした場合のResultCode
const ResultCodeCancelledByUser = 1032

// NewStatus 文字列からStatusを作成
func NewStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSucceeded, StatusFailed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, s)
	}
}

// String 文字列表現を返す
func (s Status) String() string {
	return string(s)
}

// IsTerminal 終端状態かどうかを返す
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// StatusForResultCode コールバックのResultCodeから遷移先のステータスを決める
func StatusForResultCode(resultCode int) Status {
	switch resultCode {
	case ResultCodeSuccess:
		return StatusSucceeded
	case ResultCodeCancelledByUser:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
