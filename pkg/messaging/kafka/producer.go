// Package kafka publishes messages to Kafka with segmentio/kafka-go. Every
// publish is a producer span whose context travels in the message headers.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/tracekit-dev/trace-relay/pkg/messaging"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// messageWriter is the part of *kafka.Writer the Producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements messaging.Publisher.
type Producer struct {
	writer    messageWriter
	config    *config
	o11y      observability.Observability
	published observability.Counter
	duration  observability.Histogram
	closed    atomic.Bool
}

var _ messaging.Publisher = (*Producer)(nil)

// NewProducer builds a producer for the configured brokers. Unless disabled
// with WithConnectivityCheck(false), it first dials a broker with exponential
// backoff and fails when none answers before ctx is done.
func NewProducer(ctx context.Context, o11y observability.Observability, opts ...Option) (*Producer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mechanism, err := cfg.saslMechanism()
	if err != nil {
		return nil, err
	}

	if cfg.verifyOnStart {
		dialer := &kafka.Dialer{
			ClientID:      cfg.clientID,
			Timeout:       cfg.dialTimeout,
			DualStack:     true,
			SASLMechanism: mechanism,
			TLS:           cfg.tls,
		}
		if err := dialBroker(ctx, o11y, dialer, cfg); err != nil {
			return nil, err
		}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.batchTimeout,
		WriteTimeout:           cfg.writeTimeout,
		RequiredAcks:           cfg.requiredAcks,
		MaxAttempts:            1,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			ClientID:    cfg.clientID,
			DialTimeout: cfg.dialTimeout,
			SASL:        mechanism,
			TLS:         cfg.tls,
		},
	}

	o11y.Logger().Info(ctx, "kafka producer ready",
		observability.Any("brokers", cfg.brokers),
		observability.String("sasl", string(cfg.mechanism)),
	)
	return newProducer(o11y, cfg, writer), nil
}

func newProducer(o11y observability.Observability, cfg *config, writer messageWriter) *Producer {
	return &Producer{
		writer:    writer,
		config:    cfg,
		o11y:      o11y,
		published: o11y.Metrics().Counter("messaging.publish.messages", "Messages published to Kafka", "{message}"),
		duration:  o11y.Metrics().Histogram("messaging.publish.duration", "Kafka publish latency", "ms"),
	}
}

func dialBroker(ctx context.Context, o11y observability.Observability, dialer *kafka.Dialer, cfg *config) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.retryBackoff
	policy.MaxInterval = cfg.maxRetryBackoff

	attempt := 0
	dial := func() error {
		broker := cfg.brokers[attempt%len(cfg.brokers)]
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			return err
		}
		return conn.Close()
	}

	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(cfg.maxRetries)), ctx)
	err := backoff.RetryNotify(dial, retries, func(err error, next time.Duration) {
		o11y.Logger().Warn(ctx, "kafka broker not reachable, retrying",
			observability.Duration("retry_in", next),
			observability.Error(err),
		)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// Publish writes message to topic. Caller headers are copied after the
// injected trace context, so a traceparent supplied by the caller is kept
// verbatim.
func (p *Producer) Publish(ctx context.Context, topic, key string, headers map[string]string, message *messaging.Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	if message == nil {
		return ErrNilMessage
	}

	ctx, span := p.o11y.Tracer().Start(ctx, "kafka.publish",
		observability.WithSpanKind(observability.SpanKindProducer),
		observability.WithAttributes(
			observability.String("messaging.system", "kafka"),
			observability.String("messaging.destination.name", topic),
			observability.String("messaging.kafka.message.key", key),
		),
	)
	defer span.End()

	h := make(map[string]string, len(headers)+2)
	InjectTraceContext(ctx, h)
	maps.Copy(h, headers)

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: message.Body,
		Time:  time.Now(),
	}
	for _, k := range slices.Sorted(maps.Keys(h)) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	for _, hdr := range message.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: hdr.Key, Value: hdr.Value})
	}

	start := time.Now()
	err := p.write(ctx, msg)
	p.duration.Record(ctx, float64(time.Since(start).Milliseconds()), observability.String("topic", topic))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusCodeError, "publish failed")
		p.published.Increment(ctx, observability.String("topic", topic), observability.String("result", "error"))
		p.o11y.Logger().Error(ctx, "failed to publish message",
			observability.String("topic", topic),
			observability.String("key", key),
			observability.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.published.Increment(ctx, observability.String("topic", topic), observability.String("result", "success"))
	p.o11y.Logger().Debug(ctx, "message published",
		observability.String("topic", topic),
		observability.String("key", key),
	)
	return nil
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.config.retryBackoff
	policy.MaxInterval = p.config.maxRetryBackoff

	op := func() error {
		err := p.writer.WriteMessages(ctx, msg)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.config.maxRetries)), ctx)
	return backoff.RetryNotify(op, retries, func(err error, next time.Duration) {
		p.o11y.Logger().Warn(ctx, "write attempt failed",
			observability.String("topic", msg.Topic),
			observability.Duration("retry_in", next),
			observability.Error(err),
		)
	})
}

// retryable is false only for broker errors Kafka marks as permanent, such
// as an oversized message or an authorization failure.
func retryable(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return true
}

// Close flushes pending messages and closes the writer. It is idempotent.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.o11y.Logger().Info(context.Background(), "kafka producer closed")
	return nil
}
