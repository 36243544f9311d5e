package handler

// GenerateTokenRequest 管理者トークン生成リクエスト
// @Description 管理者トークン生成リクエスト
type GenerateTokenRequest struct {
	OperatorID string `json:"operator_id" example:"editor@example.com"`
}

// GenerateTokenResponse 管理者トークン生成レスポンス
// @Description 管理者トークン生成レスポンス
type GenerateTokenResponse struct {
	Token     string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJ1c2VyX2lkIjoiZWRpdG9yIn0.signature"`
	ExpiresIn int    `json:"expires_in" example:"86400"`
	TokenType string `json:"token_type" example:"Bearer"`
}

// ErrorResponse エラーレスポンス
// @Description エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error" example:"Bad Request"`
	Message string `json:"message" example:"invalid request body"`
}
