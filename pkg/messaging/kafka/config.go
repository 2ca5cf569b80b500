package kafka

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultBatchTimeout    = 10 * time.Millisecond
	defaultMaxRetries      = 3
	defaultRetryBackoff    = 200 * time.Millisecond
	defaultMaxRetryBackoff = 5 * time.Second
)

type config struct {
	brokers  []string
	clientID string

	mechanism Mechanism
	username  string
	password  string
	tls       *tls.Config

	dialTimeout  time.Duration
	writeTimeout time.Duration
	batchTimeout time.Duration
	requiredAcks kafka.RequiredAcks

	// Publish retries on top of the writer's single attempt.
	maxRetries      int
	retryBackoff    time.Duration
	maxRetryBackoff time.Duration

	// verifyOnStart dials the first broker before NewProducer returns.
	verifyOnStart bool
}

// defaultConfig waits for every in-sync replica: a payment event that was
// acknowledged must not be lost.
func defaultConfig() *config {
	return &config{
		clientID:        "trace-relay",
		mechanism:       MechanismNone,
		dialTimeout:     defaultDialTimeout,
		writeTimeout:    defaultWriteTimeout,
		batchTimeout:    defaultBatchTimeout,
		requiredAcks:    kafka.RequireAll,
		maxRetries:      defaultMaxRetries,
		retryBackoff:    defaultRetryBackoff,
		maxRetryBackoff: defaultMaxRetryBackoff,
		verifyOnStart:   true,
	}
}

func (c *config) validate() error {
	if len(c.brokers) == 0 {
		return ErrInvalidBrokers
	}
	for i, b := range c.brokers {
		if b == "" {
			return fmt.Errorf("%w: broker %d is empty", ErrInvalidBrokers, i)
		}
	}
	if !c.mechanism.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAuthStrategy, c.mechanism)
	}
	if c.mechanism != MechanismNone && c.username == "" {
		return fmt.Errorf("%w: %s requires a username", ErrInvalidAuthStrategy, c.mechanism)
	}
	if c.dialTimeout <= 0 || c.writeTimeout <= 0 {
		return fmt.Errorf("kafka: dial and write timeouts must be positive")
	}
	if c.maxRetries < 0 {
		return fmt.Errorf("kafka: max retries cannot be negative, got %d", c.maxRetries)
	}
	return nil
}
