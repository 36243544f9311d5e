package interceptor

import (
	"context"
	"net"
	"testing"

	"tip-server/internal/infrastructure/config"
	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const reflectionMethod = "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"

func newTestLogger() *otelinfra.Logger {
	return otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"))
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		md            metadata.MD
		peerAddr      string
		config        *config.AdminAPIConfig
		expectedCode  codes.Code
		expectedError string
	}{
		{
			name:         "正常系: 有効なAPIキー",
			method:       reflectionMethod,
			md:           metadata.Pairs("x-api-key", "test-api-key"),
			config:       &config.AdminAPIConfig{Enabled: true, APIKey: "test-api-key"},
			expectedCode: codes.OK,
		},
		{
			name:         "正常系: 対象外のメソッドは認証しない",
			method:       "/grpc.health.v1.Health/Check",
			config:       &config.AdminAPIConfig{Enabled: true, APIKey: "test-api-key"},
			expectedCode: codes.OK,
		},
		{
			name:          "異常系: APIキーが空",
			method:        reflectionMethod,
			md:            metadata.MD{},
			config:        &config.AdminAPIConfig{Enabled: true, APIKey: "test-api-key"},
			expectedCode:  codes.Unauthenticated,
			expectedError: "missing X-API-Key metadata",
		},
		{
			name:          "異常系: 無効なAPIキー",
			method:        reflectionMethod,
			md:            metadata.Pairs("x-api-key", "invalid-key"),
			config:        &config.AdminAPIConfig{Enabled: true, APIKey: "test-api-key"},
			expectedCode:  codes.Unauthenticated,
			expectedError: "invalid API key",
		},
		{
			name:          "異常系: 管理APIが無効化されている",
			method:        reflectionMethod,
			md:            metadata.Pairs("x-api-key", "test-api-key"),
			config:        &config.AdminAPIConfig{Enabled: false, APIKey: "test-api-key"},
			expectedCode:  codes.PermissionDenied,
			expectedError: "admin API is disabled",
		},
		{
			name:          "異常系: メタデータが存在しない",
			method:        reflectionMethod,
			config:        &config.AdminAPIConfig{Enabled: true, APIKey: "test-api-key"},
			expectedCode:  codes.Unauthenticated,
			expectedError: "missing metadata",
		},
		{
			name:     "正常系: CIDRで許可されたIP",
			method:   reflectionMethod,
			md:       metadata.Pairs("x-api-key", "test-api-key"),
			peerAddr: "10.1.2.3",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.0/8"},
			},
			expectedCode: codes.OK,
		},
		{
			name:     "異常系: 許可されていないIP",
			method:   reflectionMethod,
			md:       metadata.Pairs("x-api-key", "test-api-key"),
			peerAddr: "203.0.113.9",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.0/8"},
			},
			expectedCode:  codes.PermissionDenied,
			expectedError: "IP address not allowed",
		},
		{
			name:     "異常系: x-forwarded-forの偽装は無視する",
			method:   reflectionMethod,
			md:       metadata.Pairs("x-api-key", "test-api-key", "x-forwarded-for", "10.1.2.3"),
			peerAddr: "203.0.113.9",
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.0/8"},
			},
			expectedCode:  codes.PermissionDenied,
			expectedError: "IP address not allowed",
		},
		{
			name:   "異常系: 接続元が不明",
			method: reflectionMethod,
			md:     metadata.Pairs("x-api-key", "test-api-key"),
			config: &config.AdminAPIConfig{
				Enabled:    true,
				APIKey:     "test-api-key",
				AllowedIPs: []string{"10.0.0.0/8"},
			},
			expectedCode:  codes.PermissionDenied,
			expectedError: "IP address not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := APIKeyInterceptor(tt.config, newTestLogger(), PrefixMatcher("/grpc.reflection."))

			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			if tt.peerAddr != "" {
				ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(tt.peerAddr), Port: 50051}})
			}

			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return "success", nil
			}

			resp, err := interceptor(ctx, "test-request", &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)

			if tt.expectedCode == codes.OK {
				assert.NoError(t, err)
				assert.Equal(t, "success", resp)
				return
			}
			st, ok := status.FromError(err)
			assert.True(t, ok)
			assert.Equal(t, tt.expectedCode, st.Code())
			assert.Contains(t, st.Message(), tt.expectedError)
		})
	}
}

// fakeServerStream コンテキストだけを持つServerStream
type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestAPIKeyStreamInterceptor(t *testing.T) {
	cfg := &config.AdminAPIConfig{Enabled: true, APIKey: "test-api-key"}
	interceptor := APIKeyStreamInterceptor(cfg, newTestLogger(), PrefixMatcher("/grpc.reflection."))
	info := &grpc.StreamServerInfo{FullMethod: reflectionMethod}

	called := false
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		called = true
		return nil
	}

	// APIキーなし
	err := interceptor(nil, &fakeServerStream{ctx: context.Background()}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, called)

	// APIキーあり
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "test-api-key"))
	err = interceptor(nil, &fakeServerStream{ctx: ctx}, info, handler)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestIsIPAllowed(t *testing.T) {
	allowed := []string{"192.168.1.10", "10.0.0.0/8"}

	assert.True(t, isIPAllowed("192.168.1.10", allowed))
	assert.True(t, isIPAllowed("10.200.3.4", allowed))
	assert.False(t, isIPAllowed("192.168.1.11", allowed))
	assert.False(t, isIPAllowed("not-an-ip", allowed))
}
