package mpesa

import (
	"errors"

	"tip-server/internal/infrastructure/config"
)

var (
	// ErrMissingFields 電話番号または金額が指定されていない
	ErrMissingFields = errors.New("Phone number and amount are required")

	// ErrConfigurationIncomplete ショートコード・パスキー・コールバックURLのいずれかが未設定
	ErrConfigurationIncomplete = config.ErrMpesaConfigIncomplete
)

// defaultRejectionMessage プロバイダーが説明を返さなかった場合のメッセージ
const defaultRejectionMessage = "Failed to initiate STK Push"

// RejectedError プロバイダーがSTK Pushを受け付けなかったエラー
type RejectedError struct {
	ResponseCode string
	Description  string
}

func (e *RejectedError) Error() string {
	if e.Description == "" {
		return defaultRejectionMessage
	}
	return e.Description
}
