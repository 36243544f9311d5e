package interceptor

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"

	"tip-server/internal/infrastructure/config"
	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// MethodMatcher APIキー認証の対象となるメソッドかを判定する
type MethodMatcher func(fullMethod string) bool

// PrefixMatcher 指定したプレフィックスで始まるメソッドを対象にする
func PrefixMatcher(prefixes ...string) MethodMatcher {
	return func(fullMethod string) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(fullMethod, prefix) {
				return true
			}
		}
		return false
	}
}

// APIKeyInterceptor APIキー認証インターセプター
func APIKeyInterceptor(cfg *config.AdminAPIConfig, logger *otelinfra.Logger, protected MethodMatcher) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if protected(info.FullMethod) {
			if err := authorize(ctx, cfg, logger, info.FullMethod); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

// APIKeyStreamInterceptor ストリーム用のAPIキー認証インターセプター
func APIKeyStreamInterceptor(cfg *config.AdminAPIConfig, logger *otelinfra.Logger, protected MethodMatcher) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if protected(info.FullMethod) {
			if err := authorize(ss.Context(), cfg, logger, info.FullMethod); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}

// authorize メタデータのX-API-Keyと接続元IPを検証
func authorize(ctx context.Context, cfg *config.AdminAPIConfig, logger *otelinfra.Logger, method string) error {
	fields := map[string]interface{}{"method": method}

	// 管理APIが無効化されている場合はエラー
	if !cfg.Enabled {
		logger.Warn(ctx, "Admin API is disabled", fields)
		return status.Error(codes.PermissionDenied, "admin API is disabled")
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logger.Warn(ctx, "Missing metadata", fields)
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKeys := md.Get("x-api-key")
	if len(apiKeys) == 0 || apiKeys[0] == "" {
		logger.Warn(ctx, "Missing X-API-Key metadata", fields)
		return status.Error(codes.Unauthenticated, "missing X-API-Key metadata")
	}

	if subtle.ConstantTimeCompare([]byte(apiKeys[0]), []byte(cfg.APIKey)) != 1 {
		logger.Warn(ctx, "Invalid API key", fields)
		return status.Error(codes.Unauthenticated, "invalid API key")
	}

	// IP制限のチェック（設定されている場合）
	if len(cfg.AllowedIPs) > 0 {
		// クライアントが書き換えられるメタデータではなく、接続元アドレスで判定する
		clientIP := peerIP(ctx)
		if !isIPAllowed(clientIP, cfg.AllowedIPs) {
			fields["ip"] = clientIP
			logger.Warn(ctx, "IP address not allowed", fields)
			return status.Error(codes.PermissionDenied, "IP address not allowed")
		}
	}

	return nil
}

// peerIP 接続元のIPアドレスを取得（不明な場合は空文字）
func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// isIPAllowed IPアドレスが許可リスト（単一IPまたはCIDR）に含まれているかチェック
func isIPAllowed(ip string, allowedIPs []string) bool {
	parsed := net.ParseIP(ip)
	for _, allowed := range allowedIPs {
		if ip == allowed {
			return true
		}
		if parsed == nil || !strings.Contains(allowed, "/") {
			continue
		}
		if _, network, err := net.ParseCIDR(allowed); err == nil && network.Contains(parsed) {
			return true
		}
	}
	return false
}
