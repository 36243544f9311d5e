package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authapp "tip-server/internal/application/auth"
	"tip-server/internal/infrastructure/config"
	restmiddleware "tip-server/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_GenerateToken(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{
			name:           "正常系: トークン生成成功",
			body:           `{"operator_id":"editor@example.com"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "異常系: operator_idが空",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "異常系: 不正なJSON",
			body:           `{"operator_id":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService := authapp.NewAuthApplicationService(&config.JWTConfig{
				Secret:     "test-secret",
				Issuer:     "tip-server",
				Expiration: time.Hour,
			}, newTestLogger())
			h := NewAuthHandler(authService)

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/token", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := restmiddleware.ErrorHandlerMiddleware(newTestLogger())(h.GenerateToken)
			require.NoError(t, handler(c))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				var resp GenerateTokenResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
				assert.Equal(t, 3600, resp.ExpiresIn)
				assert.Equal(t, "Bearer", resp.TokenType)
			}
		})
	}
}
