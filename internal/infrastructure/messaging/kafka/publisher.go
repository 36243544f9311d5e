package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tip-server/internal/domain/mpesa_transaction"
	"tip-server/internal/infrastructure/config"
)

// messageWriter kafka.Writerのうち発行に必要な部分
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutcomePublisher 決済結果イベントをKafkaへ発行する
type OutcomePublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	tracer  trace.Tracer
}

// NewOutcomePublisher 新しいOutcomePublisherを作成
// コールバック応答の前に同期発行するため、バッチ待ちと書き込みの上限を短くする
func NewOutcomePublisher(cfg *config.KafkaConfig) *OutcomePublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.PublishTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newOutcomePublisher(writer, cfg.Topic, cfg.PublishTimeout)
}

func newOutcomePublisher(writer messageWriter, topic string, timeout time.Duration) *OutcomePublisher {
	return &OutcomePublisher{
		writer:  writer,
		topic:   topic,
		timeout: timeout,
		tracer:  otel.Tracer("kafka-publisher"),
	}
}

// Publish イベントを発行（キーはCheckoutRequestID）
func (p *OutcomePublisher) Publish(ctx context.Context, event *mpesa_transaction.PaymentOutcomeEvent) error {
	ctx, span := p.tracer.Start(ctx, "OutcomePublisher.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", p.topic),
		attribute.String("event_id", event.EventID),
		attribute.String("checkout_request_id", event.CheckoutRequestID),
	)

	value, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to marshal payment outcome event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CheckoutRequestID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "status", Value: []byte(event.Status)},
		},
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to publish payment outcome event: %w", err)
	}
	return nil
}

// Close Writerを閉じる
func (p *OutcomePublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher Kafka無効時に使う何もしないPublisher
type NoopPublisher struct{}

// NewNoopPublisher 新しいNoopPublisherを作成
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish 何もしない
func (NoopPublisher) Publish(context.Context, *mpesa_transaction.PaymentOutcomeEvent) error {
	return nil
}

// Close 何もしない
func (NoopPublisher) Close() error {
	return nil
}

var (
	_ mpesa_transaction.OutcomePublisher = (*OutcomePublisher)(nil)
	_ mpesa_transaction.OutcomePublisher = (*NoopPublisher)(nil)
)
