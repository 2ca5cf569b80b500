package payment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tracekit-dev/trace-relay/pkg/database"
	"github.com/tracekit-dev/trace-relay/pkg/database/uow"
	"github.com/tracekit-dev/trace-relay/pkg/messaging"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/users"
)

// Snapshotter records the variables visible at a labelled point.
type Snapshotter interface {
	Capture(ctx context.Context, label string, vars map[string]any)
}

type Service struct {
	o11y      observability.Observability
	uow       uow.UnitOfWork
	snapshots Snapshotter
	publisher messaging.Publisher
	topic     string
	now       func() time.Time

	processed observability.Counter
	amounts   observability.Histogram
}

type Option func(*Service)

func WithSnapshotter(s Snapshotter) Option {
	return func(svc *Service) {
		svc.snapshots = s
	}
}

// WithPublisher announces completed payments on topic.
func WithPublisher(p messaging.Publisher, topic string) Option {
	return func(svc *Service) {
		svc.publisher = p
		svc.topic = topic
	}
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

func NewService(o11y observability.Observability, unit uow.UnitOfWork, opts ...Option) (*Service, error) {
	if o11y == nil {
		return nil, errors.New("payment: observability cannot be nil")
	}
	if unit == nil {
		return nil, errors.New("payment: unit of work cannot be nil")
	}

	svc := &Service{
		o11y: o11y,
		uow:  unit,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.publisher != nil && svc.topic == "" {
		return nil, errors.New("payment: topic is required with a publisher")
	}

	svc.processed = o11y.Metrics().Counter("payment.processed", "Checkout attempts by result", "{payment}")
	svc.amounts = o11y.Metrics().Histogram("payment.amount", "Charged amounts", "1")
	return svc, nil
}

// Process charges amount to userID. Amounts above MaxAmount fail with
// ErrAmountExceedsLimit and an unknown user with users.ErrNotFound; nothing
// is written in either case.
func (s *Service) Process(ctx context.Context, userID int64, amount float64) (Payment, error) {
	ctx, span := s.o11y.Tracer().Start(ctx, "payment.process",
		observability.WithAttributes(
			observability.Int64("user.id", userID),
			observability.Float64("payment.amount", amount),
		),
	)
	defer span.End()

	s.capture(ctx, "payment-processing", map[string]any{
		"user_id": userID,
		"amount":  amount,
	})

	p, err := s.process(ctx, userID, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusCodeError, err.Error())
		s.processed.Increment(ctx, observability.String("result", result(err)))
		s.o11y.Logger().Warn(ctx, "payment rejected",
			observability.Int64("user_id", userID),
			observability.Float64("amount", amount),
			observability.Error(err),
		)
		return Payment{}, err
	}

	span.SetAttributes(observability.String("payment.id", p.ID))
	s.processed.Increment(ctx, observability.String("result", "completed"))
	s.amounts.Record(ctx, amount)
	s.o11y.Logger().Info(ctx, "payment completed",
		observability.String("payment_id", p.ID),
		observability.Int64("user_id", userID),
		observability.Float64("amount", amount),
	)

	s.publish(ctx, p)
	return p, nil
}

func (s *Service) process(ctx context.Context, userID int64, amount float64) (Payment, error) {
	if amount <= 0 {
		return Payment{}, ErrInvalidAmount
	}
	if amount > MaxAmount {
		return Payment{}, ErrAmountExceedsLimit
	}

	now := s.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: generate id: %w", err)
	}

	p := Payment{
		ID:        idPrefix + id.String(),
		UserID:    userID,
		Amount:    amount,
		Status:    StatusCompleted,
		CreatedAt: now,
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx database.DBTX) error {
		if err := users.NewRepository(tx).IncrementTotalSpent(ctx, userID, amount, now); err != nil {
			return err
		}
		return repository{db: tx}.insert(ctx, p)
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// publish is best effort: the payment is already committed, so a broker
// failure is logged and not returned.
func (s *Service) publish(ctx context.Context, p Payment) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(completedEvent{Event: EventCompleted, Payment: p})
	if err != nil {
		s.o11y.Logger().Error(ctx, "failed to encode payment event", observability.Error(err))
		return
	}

	headers := map[string]string{
		"event_type":   EventCompleted,
		"content_type": "application/json",
	}
	if err := s.publisher.Publish(ctx, s.topic, p.ID, headers, &messaging.Message{Body: body}); err != nil {
		s.o11y.Logger().Warn(ctx, "failed to publish payment event",
			observability.String("payment_id", p.ID),
			observability.Error(err),
		)
	}
}

func (s *Service) capture(ctx context.Context, label string, vars map[string]any) {
	if s.snapshots != nil {
		s.snapshots.Capture(ctx, label, vars)
	}
}

func result(err error) string {
	switch {
	case errors.Is(err, ErrAmountExceedsLimit), errors.Is(err, ErrInvalidAmount):
		return "rejected"
	case errors.Is(err, users.ErrNotFound):
		return "unknown_user"
	default:
		return "error"
	}
}
