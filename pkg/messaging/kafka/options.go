package kafka

import (
	"crypto/tls"
	"time"

	"github.com/segmentio/kafka-go"
)

// Option is a functional option for configuring the Producer.
type Option func(*config)

func WithBrokers(brokers ...string) Option {
	return func(c *config) {
		if len(brokers) > 0 {
			c.brokers = brokers
		}
	}
}

func WithClientID(id string) Option {
	return func(c *config) {
		if id != "" {
			c.clientID = id
		}
	}
}

// WithSASL enables SASL authentication. MechanismNone disables it.
func WithSASL(mechanism Mechanism, username, password string) Option {
	return func(c *config) {
		c.mechanism = mechanism
		c.username = username
		c.password = password
	}
}

// WithTLS enables TLS on broker connections.
func WithTLS(cfg *tls.Config) Option {
	return func(c *config) {
		c.tls = cfg
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

func WithRequiredAcks(acks kafka.RequiredAcks) Option {
	return func(c *config) {
		c.requiredAcks = acks
	}
}

// WithRetry sets how many times a failed write is retried and the
// exponential backoff bounds between attempts.
func WithRetry(maxRetries int, initial, maxBackoff time.Duration) Option {
	return func(c *config) {
		c.maxRetries = maxRetries
		if initial > 0 {
			c.retryBackoff = initial
		}
		if maxBackoff > 0 {
			c.maxRetryBackoff = maxBackoff
		}
	}
}

// WithConnectivityCheck controls whether NewProducer dials a broker first.
func WithConnectivityCheck(enabled bool) Option {
	return func(c *config) {
		c.verifyOnStart = enabled
	}
}
