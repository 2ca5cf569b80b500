package kafka

import (
	"fmt"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Mechanism names the SASL mechanism used to authenticate with the brokers.
type Mechanism string

const (
	MechanismNone        Mechanism = ""
	MechanismPlain       Mechanism = "plain"
	MechanismScramSHA512 Mechanism = "scram-sha-512"
)

func (m Mechanism) IsValid() bool {
	switch m {
	case MechanismNone, MechanismPlain, MechanismScramSHA512:
		return true
	default:
		return false
	}
}

// saslMechanism returns nil for MechanismNone.
func (c *config) saslMechanism() (sasl.Mechanism, error) {
	switch c.mechanism {
	case MechanismNone:
		return nil, nil
	case MechanismPlain:
		return plain.Mechanism{Username: c.username, Password: c.password}, nil
	case MechanismScramSHA512:
		m, err := scram.Mechanism(scram.SHA512, c.username, c.password)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAuthStrategy, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAuthStrategy, c.mechanism)
	}
}
