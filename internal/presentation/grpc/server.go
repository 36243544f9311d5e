package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"tip-server/internal/infrastructure/config"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
	"tip-server/internal/presentation/grpc/interceptor"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName 依存先の状態を公開するサービス名
const ServiceName = "tip-server"

// defaultHealthInterval 依存先の疎通確認間隔
const defaultHealthInterval = 10 * time.Second

// HealthChecker 依存先の疎通確認
type HealthChecker interface {
	HealthCheck() error
}

// Server gRPCサーバー
// grpc.health.v1でDB疎通に連動したサービス状態を公開する
type Server struct {
	server   *grpc.Server
	health   *health.Server
	checker  HealthChecker
	logger   *otelinfra.Logger
	listener net.Listener
	port     int
	interval time.Duration
}

// NewServer 新しいgRPCサーバーを作成
func NewServer(cfg *config.Config, logger *otelinfra.Logger, checker HealthChecker) (*Server, error) {
	port := cfg.Server.Port + 1 // REST APIのポート+1を使用
	address := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	return NewServerWithListener(cfg, logger, checker, listener, port)
}

// NewServerWithListener リスナーを指定してgRPCサーバーを作成（テスト用）
func NewServerWithListener(
	cfg *config.Config,
	logger *otelinfra.Logger,
	checker HealthChecker,
	listener net.Listener,
	port int,
) (*Server, error) {
	// リフレクションは管理APIキーで保護する
	adminOnly := interceptor.PrefixMatcher("/grpc.reflection.")

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptor.LoggingInterceptor(logger),
			interceptor.APIKeyInterceptor(&cfg.AdminAPI, logger, adminOnly),
		),
		grpc.ChainStreamInterceptor(
			interceptor.APIKeyStreamInterceptor(&cfg.AdminAPI, logger, adminOnly),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Second,
			MaxConnectionAge:      30 * time.Second,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  5 * time.Second,
			Timeout:               1 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// リフレクションを有効化（開発環境用）
	if cfg.Environment == "development" {
		reflection.Register(grpcServer)
	}

	s := &Server{
		server:   grpcServer,
		health:   healthServer,
		checker:  checker,
		logger:   logger,
		listener: listener,
		port:     port,
		interval: defaultHealthInterval,
	}
	s.refreshHealth(context.Background())

	return s, nil
}

// Start サーバーを起動
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "gRPC server starting", map[string]interface{}{
		"port": s.port,
	})
	if err := s.server.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// WatchHealth ctxが終了するまで定期的に依存先を確認し、状態を更新する
func (s *Server) WatchHealth(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshHealth(ctx)
		}
	}
}

// refreshHealth 疎通確認の結果をサービス全体と個別サービスの状態に反映
func (s *Server) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		if err := s.checker.HealthCheck(); err != nil {
			s.logger.Warn(ctx, "Dependency health check failed", map[string]interface{}{
				"error": err.Error(),
			})
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop サーバーを停止
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info(ctx, "Stopping gRPC server", nil)

	// 停止中であることをクライアントに通知
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info(ctx, "gRPC server stopped", nil)
		return nil
	case <-ctx.Done():
		// タイムアウトした場合は強制停止
		s.logger.Warn(ctx, "gRPC server shutdown timeout, forcing stop", nil)
		s.server.Stop()
		return ctx.Err()
	}
}

// Port サーバーのポート番号を返す
func (s *Server) Port() int {
	return s.port
}
