package middleware

import (
	"errors"
	"net/http"
	"time"

	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
)

// MetricsMiddleware メトリクス記録ミドルウェア
func MetricsMiddleware(metrics *otelinfra.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			method := c.Request().Method

			// 次のハンドラーを実行
			err := next(c)

			// ルート未登録の場合はパスの種類を増やさないよう固定値にする
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			metrics.RecordRequest(ctx, method, path)
			metrics.RecordResponseTime(ctx, method, path, time.Since(start).Seconds())

			// 4xx, 5xxの場合のみエラー数を記録
			if statusCode := responseStatus(c, err); statusCode >= http.StatusBadRequest {
				errorType := "client_error"
				if statusCode >= http.StatusInternalServerError {
					errorType = "server_error"
				}
				metrics.RecordError(ctx, errorType)
			}

			return err
		}
	}
}

// responseStatus レスポンス未送信のエラーからもステータスコードを推定する
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}
