// Package payment processes the demo checkout: it records a payment and
// credits the user's total spend in one transaction, then announces the
// payment on the event bus.
package payment

import (
	"errors"
	"time"
)

const (
	// MaxAmount is the largest amount a single checkout may charge.
	MaxAmount = 1000.0

	StatusCompleted = "completed"

	// EventCompleted is the event type published after a successful checkout.
	EventCompleted = "payment.completed"

	idPrefix = "pay_"
)

var (
	ErrAmountExceedsLimit = errors.New("Payment amount exceeds limit")
	ErrInvalidAmount      = errors.New("payment amount must be positive")
)

type Payment struct {
	ID        string    `json:"payment_id"`
	UserID    int64     `json:"user_id"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"timestamp"`
}

// completedEvent is the body of a payment.completed message.
type completedEvent struct {
	Event string `json:"event"`
	Payment
}
