package kafka

import "errors"

var (
	ErrInvalidBrokers      = errors.New("at least one broker address is required")
	ErrInvalidAuthStrategy = errors.New("invalid authentication strategy")
	ErrConnectionFailed    = errors.New("failed to connect to kafka")
	ErrProducerClosed      = errors.New("kafka producer is closed")
	ErrEmptyTopic          = errors.New("topic cannot be empty")
	ErrNilMessage          = errors.New("message cannot be nil")
	ErrPublishFailed       = errors.New("failed to publish message to kafka")
)
