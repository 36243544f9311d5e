package rest

import (
	"context"
	"fmt"
	"net/http"

	authapp "tip-server/internal/application/auth"
	historyapp "tip-server/internal/application/history"
	mpesaapp "tip-server/internal/application/mpesa"
	"tip-server/internal/infrastructure/config"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
	"tip-server/internal/presentation/rest/handler"
	restmiddleware "tip-server/internal/presentation/rest/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HealthChecker 依存先の疎通確認
type HealthChecker interface {
	HealthCheck() error
}

// Router REST APIルーター
type Router struct {
	echo           *echo.Echo
	cfg            *config.Config
	mpesaHandler   *handler.MpesaHandler
	authHandler    *handler.AuthHandler
	historyHandler *handler.HistoryHandler
}

// NewRouter 新しいRouterを作成
// metricsHandlerがnilの場合は/metricsを公開しない
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	health HealthChecker,
	metricsHandler http.Handler,
	authService *authapp.AuthApplicationService,
	mpesaService *mpesaapp.MpesaApplicationService,
	historyService *historyapp.HistoryApplicationService,
) (*Router, error) {
	if cfg == nil || logger == nil || metrics == nil {
		return nil, fmt.Errorf("router requires config, logger and metrics")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP()はSERVER_TRUSTED_PROXIES経由の場合のみX-Forwarded-Forを使う
	e.IPExtractor = restmiddleware.NewIPExtractor(cfg.Server.TrustedProxies)

	// ルート未登録などミドルウェアを通らないエラーも同じ形式で返す
	e.HTTPErrorHandler = restmiddleware.HTTPErrorHandler(logger)

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	// ミドルウェアの設定
	setupMiddleware(e, cfg, logger, metrics)

	// ハンドラーの作成
	r := &Router{
		echo:           e,
		cfg:            cfg,
		mpesaHandler:   handler.NewMpesaHandler(mpesaService, logger),
		authHandler:    handler.NewAuthHandler(authService),
		historyHandler: handler.NewHistoryHandler(historyService),
	}

	// ルーティングの設定
	r.setupRoutes(logger, health, metricsHandler)

	// Swagger UI
	SetupSwagger(e)

	return r, nil
}

// setupMiddleware ミドルウェアを設定
func setupMiddleware(e *echo.Echo, cfg *config.Config, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	// リカバリーミドルウェア
	e.Use(middleware.Recover())

	// リクエストIDの設定
	e.Use(middleware.RequestID())

	// セキュリティヘッダー
	e.Use(restmiddleware.SecurityHeadersMiddleware())

	// CORS設定（ブログのフロントエンドから呼び出される）
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-API-Key"},
	}))

	// トレーシングミドルウェア
	e.Use(restmiddleware.TracingMiddleware())

	// メトリクスミドルウェア
	e.Use(restmiddleware.MetricsMiddleware(metrics))

	// ログミドルウェア
	e.Use(restmiddleware.LoggingMiddleware(logger))

	// エラーハンドリングミドルウェア
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func (r *Router) setupRoutes(logger *otelinfra.Logger, health HealthChecker, metricsHandler http.Handler) {
	e := r.echo

	// M-Pesaエンドポイント（POST以外はハンドラーが405を返す）
	e.Any("/api/mpesa/stk-push", r.mpesaHandler.InitiateSTKPush)
	e.GET("/api/mpesa/stk-push/:checkoutRequestId", r.mpesaHandler.GetStatus)
	e.Any("/api/mpesa/callback", r.mpesaHandler.Callback)

	// 管理API
	admin := e.Group("/api/v1/admin")
	admin.POST("/token", r.authHandler.GenerateToken, restmiddleware.APIKeyMiddleware(&r.cfg.AdminAPI, logger))
	admin.GET("/payments", r.historyHandler.ListPayments, restmiddleware.AuthMiddleware(&r.cfg.JWT, logger))

	// ヘルスチェックエンドポイント（認証不要）
	e.GET("/health", func(c echo.Context) error {
		if health != nil {
			if err := health.HealthCheck(); err != nil {
				logger.Error(c.Request().Context(), "Health check failed", err, nil)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	return r.echo.Start(address)
}

// Shutdown 処理中のリクエストを待ってサーバーを停止
func (r *Router) Shutdown(ctx context.Context) error {
	return r.echo.Shutdown(ctx)
}

// Handler テストや組み込み用にhttp.Handlerを返す
func (r *Router) Handler() http.Handler {
	return r.echo
}
