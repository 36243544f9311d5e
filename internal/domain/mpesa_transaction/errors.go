package mpesa_transaction

import "errors"

var (
	// ErrTransactionNotFound PendingTransactionが見つからないエラー
	ErrTransactionNotFound = errors.New("mpesa transaction not found")
	// ErrTransactionAlreadyFinalized 既に終端状態のエラー
	ErrTransactionAlreadyFinalized = errors.New("mpesa transaction already finalized")
	// ErrInvalidTransaction 無効なPendingTransactionエラー
	ErrInvalidTransaction = errors.New("invalid mpesa transaction")
)
