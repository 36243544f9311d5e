package mpesa

import "errors"

var (
	// ErrCredentialsNotConfigured Consumer Key/Secretが未設定
	ErrCredentialsNotConfigured = errors.New("M-Pesa credentials not configured")

	// ErrAccessTokenFailed アクセストークンの取得に失敗
	ErrAccessTokenFailed = errors.New("Failed to get M-Pesa access token")

	// ErrMalformedResponse Daraja APIのレスポンスが解析できない
	ErrMalformedResponse = errors.New("malformed M-Pesa response")
)
