package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// ErrUnknownPeer is returned by CallOne for a name that is not configured.
var ErrUnknownPeer = errors.New("relay: unknown peer")

// Coordinator calls the configured peers. The peer list is fixed at construction.
type Coordinator struct {
	source string
	peers  []PeerService
	byName map[string]int
	caller *Caller
	o11y   observability.Observability
}

func NewCoordinator(source string, peers []PeerService, caller *Caller, o11y observability.Observability) (*Coordinator, error) {
	if caller == nil {
		return nil, errors.New("relay: caller cannot be nil")
	}
	if o11y == nil {
		return nil, errors.New("relay: observability provider cannot be nil")
	}

	c := &Coordinator{
		source: source,
		peers:  make([]PeerService, len(peers)),
		byName: make(map[string]int, len(peers)),
		caller: caller,
		o11y:   o11y,
	}
	copy(c.peers, peers)

	for i, p := range c.peers {
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("relay: duplicate peer %q", p.Name)
		}
		c.byName[p.Name] = i
	}
	return c, nil
}

// Source is the service name reported in aggregate results.
func (c *Coordinator) Source() string {
	return c.source
}

// Peers returns a copy of the configured peers in order.
func (c *Coordinator) Peers() []PeerService {
	out := make([]PeerService, len(c.peers))
	copy(out, c.peers)
	return out
}

// Peer looks a configured peer up by name.
func (c *Coordinator) Peer(name string) (PeerService, bool) {
	i, ok := c.byName[name]
	if !ok {
		return PeerService{}, false
	}
	return c.peers[i], true
}

// FanOut calls every configured peer.
func (c *Coordinator) FanOut(ctx context.Context, traceParent string) AggregateResult {
	return c.FanOutPeers(ctx, c.peers, traceParent)
}

// FanOutPeers calls every peer concurrently and returns one outcome per peer,
// in the order of peers. Cancellation of ctx does not reach the peer calls:
// each is bounded by its own timeout only.
func (c *Coordinator) FanOutPeers(ctx context.Context, peers []PeerService, traceParent string) AggregateResult {
	ctx, span := c.o11y.Tracer().Start(context.WithoutCancel(ctx), "relay.fan_out",
		observability.WithAttributes(observability.Int("relay.peers", len(peers))),
	)
	defer span.End()

	outcomes := make([]CallOutcome, len(peers))

	var wg sync.WaitGroup
	for i, peer := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = c.caller.Call(ctx, peer, traceParent)
		}()
	}
	wg.Wait()

	result := Build(c.source, outcomes)
	failures := result.Failures()
	span.SetAttributes(observability.Int("relay.failures", failures))

	c.o11y.Logger().Info(ctx, "fan-out completed",
		observability.Int("peers", len(peers)),
		observability.Int("failures", failures),
	)
	return result
}

// CallOne calls a single configured peer by name.
func (c *Coordinator) CallOne(ctx context.Context, name, traceParent string) (CallOutcome, error) {
	peer, ok := c.Peer(name)
	if !ok {
		return CallOutcome{}, fmt.Errorf("%w: %s", ErrUnknownPeer, name)
	}
	return c.caller.Call(context.WithoutCancel(ctx), peer, traceParent), nil
}
