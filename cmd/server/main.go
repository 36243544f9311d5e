package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authapp "tip-server/internal/application/auth"
	historyapp "tip-server/internal/application/history"
	mpesaapp "tip-server/internal/application/mpesa"
	"tip-server/internal/domain/mpesa_transaction"
	"tip-server/internal/infrastructure/config"
	"tip-server/internal/infrastructure/messaging/kafka"
	mpesainfra "tip-server/internal/infrastructure/mpesa"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
	"tip-server/internal/infrastructure/persistence/mysql"
	grpcserver "tip-server/internal/presentation/grpc"
	"tip-server/internal/presentation/rest"

	"github.com/redis/go-redis/v9"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	meterSetup, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterSetup.Shutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	// ロガーとメトリクスの初期化
	tracer := otelinfra.Tracer("tip-server")
	logger := otelinfra.NewLogger(tracer)
	defer func() { _ = logger.Sync() }()

	metrics, err := otelinfra.NewMetrics("tip-server")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	ctx := context.Background()

	// M-Pesa設定の不足は起動を止めず、STK Push時に500で通知する
	if err := cfg.Mpesa.Validate(); err != nil {
		logger.Warn(ctx, "M-Pesa configuration incomplete, STK push requests will fail", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if !cfg.Mpesa.HasCredentials() {
		logger.Warn(ctx, "M-Pesa credentials not configured, STK push requests will fail", nil)
	}
	if cfg.Mpesa.CallbackToken == "" {
		logger.Warn(ctx, "MPESA_CALLBACK_TOKEN not set, callbacks are accepted without a token", nil)
	}

	// データベース接続の初期化
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// リポジトリの初期化
	mpesaTxRepo := mysql.NewMpesaTransactionRepository(db)

	// アクセストークンキャッシュの初期化
	var clientOpts []mpesainfra.Option
	if cfg.Mpesa.TokenCacheEnabled {
		if cfg.Redis.Enabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Address(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()
			clientOpts = append(clientOpts, mpesainfra.WithTokenCache(mpesainfra.NewRedisTokenCache(redisClient)))
		} else {
			clientOpts = append(clientOpts, mpesainfra.WithTokenCache(mpesainfra.NewMemoryTokenCache()))
		}
	}
	mpesaClient := mpesainfra.NewClient(&cfg.Mpesa, logger, metrics, clientOpts...)

	// 決済結果イベントの発行先
	var publisher mpesa_transaction.OutcomePublisher = kafka.NewNoopPublisher()
	if cfg.Kafka.Enabled {
		publisher = kafka.NewOutcomePublisher(&cfg.Kafka)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error(context.Background(), "Failed to close outcome publisher", err, nil)
		}
	}()

	// アプリケーションサービスの初期化
	authAppService := authapp.NewAuthApplicationService(&cfg.JWT, logger)
	mpesaAppService := mpesaapp.NewMpesaApplicationService(
		&cfg.Mpesa,
		mpesaClient,
		mpesaTxRepo,
		publisher,
		logger,
		metrics,
	)
	historyAppService := historyapp.NewHistoryApplicationService(mpesaTxRepo, logger)

	// REST APIルーターの初期化
	router, err := rest.NewRouter(
		cfg,
		logger,
		metrics,
		db,
		meterSetup.Handler,
		authAppService,
		mpesaAppService,
		historyAppService,
	)
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	// gRPCサーバーの初期化
	grpcSrv, err := grpcserver.NewServer(cfg, logger, db)
	if err != nil {
		log.Fatalf("Failed to create gRPC server: %v", err)
	}

	// サーバーアドレスの設定
	address := fmt.Sprintf(":%d", cfg.Server.Port)

	// グレースフルシャットダウンの設定
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// REST APIサーバーを別ゴルーチンで起動
	go func() {
		logger.Info(ctx, "REST API server starting", map[string]interface{}{"address": address})
		if err := router.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "REST API server error", err, nil)
			stop()
		}
	}()

	// gRPCサーバーを別ゴルーチンで起動
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Error(ctx, "gRPC server error", err, nil)
			stop()
		}
	}()
	go grpcSrv.WatchHealth(sigCtx)

	// シグナルを待機
	<-sigCtx.Done()
	logger.Info(ctx, "Shutting down servers", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// REST APIサーバーのシャットダウン
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down REST API server", err, nil)
	}

	// gRPCサーバーのシャットダウン
	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down gRPC server", err, nil)
	}

	logger.Info(ctx, "Servers stopped", nil)
}
