package interceptor

import (
	"context"
	"testing"

	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor(t *testing.T) {
	tests := []struct {
		name         string
		handlerErr   error
		expectedMsg  string
		expectedLvl  zapcore.Level
		expectedCode string
	}{
		{
			name:         "正常系: 成功はDebugで出力",
			expectedMsg:  "gRPC request completed",
			expectedLvl:  zapcore.DebugLevel,
			expectedCode: "OK",
		},
		{
			name:         "異常系: 失敗はErrorで出力",
			handlerErr:   status.Error(codes.Unavailable, "database unavailable"),
			expectedMsg:  "gRPC request failed",
			expectedLvl:  zapcore.ErrorLevel,
			expectedCode: "Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			logger := otelinfra.NewLoggerWithZap(noop.NewTracerProvider().Tracer("test"), zap.New(core))

			interceptor := LoggingInterceptor(logger)
			_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
				func(ctx context.Context, req interface{}) (interface{}, error) {
					return "ok", tt.handlerErr
				})
			assert.Equal(t, tt.handlerErr, err)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.expectedMsg, entries[0].Message)
			assert.Equal(t, tt.expectedLvl, entries[0].Level)
			fields := entries[0].ContextMap()
			assert.Equal(t, "/grpc.health.v1.Health/Check", fields["method"])
			assert.Equal(t, tt.expectedCode, fields["code"])
		})
	}
}
