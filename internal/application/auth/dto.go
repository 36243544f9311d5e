package auth

// GenerateTokenRequest 管理者トークン生成リクエスト
type GenerateTokenRequest struct {
	OperatorID string
}

// GenerateTokenResponse 管理者トークン生成レスポンス
type GenerateTokenResponse struct {
	Token     string
	ExpiresIn int64  // 秒単位
	TokenType string // "Bearer"
}
