package middleware

import (
	"time"

	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
)

// quietPaths 定期的に叩かれるため開始ログを出さず、完了ログもDebugに落とすパス
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// LoggingMiddleware アクセスログミドルウェア
// RequestIDミドルウェアが設定したX-Request-Idを各レコードに付与する
func LoggingMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			_, quiet := quietPaths[req.URL.Path]

			if !quiet {
				logger.Info(ctx, "HTTP request started", map[string]interface{}{
					"request_id": requestID(c),
					"method":     req.Method,
					"path":       req.URL.Path,
					"client_ip":  c.RealIP(),
					"user_agent": req.UserAgent(),
				})
			}

			err := next(c)

			fields := map[string]interface{}{
				"request_id":  requestID(c),
				"method":      req.Method,
				"path":        req.URL.Path,
				"status_code": responseStatus(c, err),
				"duration_ms": time.Since(start).Milliseconds(),
			}

			switch {
			case err != nil:
				logger.Error(ctx, "HTTP request failed", err, fields)
			case quiet:
				logger.Debug(ctx, "HTTP request completed", fields)
			default:
				logger.Info(ctx, "HTTP request completed", fields)
			}

			return err
		}
	}
}

// requestID レスポンスに設定済みのリクエストIDを返す（未設定ならリクエスト側を参照）
func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
