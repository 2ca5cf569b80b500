// Package messaging defines the broker-neutral publishing contract.
package messaging

import "context"

type (
	// Publisher sends messages to a topic. Implementations are safe for
	// concurrent use.
	Publisher interface {
		Publish(ctx context.Context, topic, key string, headers map[string]string, message *Message) error
		Close() error
	}

	Message struct {
		Body    []byte
		Headers []Header
	}

	Header struct {
		Key   string
		Value []byte
	}
)
