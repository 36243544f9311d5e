package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"tip-server/internal/infrastructure/config"
	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		clientIP       string
		forwardedFor   string
		config         *config.AdminAPIConfig
		expectedStatus int
	}{
		{
			name:   "正常系: 有効なAPIキー",
			apiKey: "test-api-key",
			config: &config.AdminAPIConfig{
				Enabled: true,
				APIKey:  "test-api-key",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "異常系: APIキーが空",
			apiKey: "",
			config: &config.AdminAPIConfig{
				Enabled: true,
				APIKey:  "test-api-key",
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "異常系: 無効なAPIキー",
			apiKey: "test-api-kez",
			config: &config.AdminAPIConfig{
				Enabled: true,
				APIKey:  "test-api-key",
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "異常系: 管理APIが無効化されている",
			apiKey: "test-api-key",
			config: &config.AdminAPIConfig{
				Enabled: false,
				APIKey:  "test-api-key",
			},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:     "正常系: IP制限あり（許可されたIP）",
			apiKey:   "test-api-key",
			clientIP: "127.0.0.1",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"127.0.0.1", "192.0.2.1"},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:     "正常系: IP制限あり（CIDRに含まれる）",
			apiKey:   "test-api-key",
			clientIP: "10.20.30.40",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.0/8"},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:     "異常系: IP制限あり（許可されていないIP）",
			apiKey:   "test-api-key",
			clientIP: "192.168.1.1",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.1", "10.0.0.0/8"},
			},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:         "異常系: X-Forwarded-Forを偽装しても接続元で判定する",
			apiKey:       "test-api-key",
			clientIP:     "198.51.100.20",
			forwardedFor: "10.0.0.1",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.0/8"},
			},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.IPExtractor = NewIPExtractor(nil)
			tracer := noop.NewTracerProvider().Tracer("test")
			logger := otelinfra.NewLogger(tracer)

			middlewareFunc := APIKeyMiddleware(tt.config, logger)
			handler := middlewareFunc(func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/token", nil)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			if tt.clientIP != "" {
				req.RemoteAddr = net.JoinHostPort(tt.clientIP, "52100")
			}
			if tt.forwardedFor != "" {
				req.Header.Set(echo.HeaderXForwardedFor, tt.forwardedFor)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler(c)
			if err != nil {
				e.HTTPErrorHandler(err, c)
			}

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestIsIPAllowed(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		allowed []string
		want    bool
	}{
		{name: "正常系: 完全一致", ip: "192.0.2.1", allowed: []string{"192.0.2.1"}, want: true},
		{name: "正常系: CIDR内", ip: "192.0.2.200", allowed: []string{"192.0.2.0/24"}, want: true},
		{name: "正常系: IPv6 CIDR", ip: "2001:db8::1", allowed: []string{"2001:db8::/32"}, want: true},
		{name: "異常系: 前方一致でもCIDR外", ip: "192.0.20.1", allowed: []string{"192.0.2.0/24"}, want: false},
		{name: "異常系: 不正なCIDR", ip: "192.0.2.1", allowed: []string{"192.0.2.0/99"}, want: false},
		{name: "異常系: 不正なIP", ip: "not-an-ip", allowed: []string{"0.0.0.0/0"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isIPAllowed(tt.ip, tt.allowed))
		})
	}
}
