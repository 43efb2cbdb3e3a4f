package relay

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sony/gobreaker"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// breakerSet lazily creates a per-peer circuit breaker so a consistently
// failing forward target stops being retried on every subsequent message,
// grounded on the teacher's general retry/backoff idiom in async/storage.go
// generalized to a trip/half-open/reset state machine.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[crypto.NodeID]*gobreaker.CircuitBreaker
}

func newBreakerSet() *breakerSet {
	return &breakerSet{breakers: make(map[crypto.NodeID]*gobreaker.CircuitBreaker)}
}

func (b *breakerSet) forPeer(peer crypto.NodeID) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[peer]
	if !ok {
		settings := gobreaker.Settings{
			Name:        peer.String(),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
		cb = gobreaker.NewCircuitBreaker(settings)
		b.breakers[peer] = cb
	}
	return cb
}

// floodForward implements the Smart Flood forwarding policy (spec §4.3):
// payload-declared recipient drives ranked-candidate selection via
// routing.Table.FloodCandidates; an unknown recipient falls back to full
// broadcast. Control messages are always forwarded regardless of payload.
func (r *Relay) floodForward(msg *wire.Message, inboundPeer crypto.NodeID) {
	var recipient crypto.NodeID
	if !controlTypes[msg.Header.Type] && !msg.Header.Type.IsBroadcast() {
		if payload, err := wire.DecodeUnicastPayload(msg.Payload); err == nil {
			recipient = payload.Recipient
		}
	}

	candidates := r.routes.FloodCandidates(recipient, inboundPeer)
	if len(candidates) == 0 {
		return
	}

	set := mapset.NewSet[crypto.NodeID](candidates...)
	set.Remove(r.self)
	set.Remove(inboundPeer)

	data := msg.Encode()
	for _, peer := range set.ToSlice() {
		r.forwardToPeer(peer, data)
	}
}

func (r *Relay) forwardToPeer(peer crypto.NodeID, data []byte) {
	breaker := r.breakers().forPeer(peer)
	start := r.cfg.TimeProvider.Now()
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, r.sender.Send(peer, data)
	})
	latencyMs := float64(r.cfg.TimeProvider.Now().Sub(start).Milliseconds())

	r.mu.Lock()
	if err != nil {
		r.stats.ForwardFailure++
	} else {
		r.stats.ForwardSuccess++
	}
	r.mu.Unlock()

	r.routes.UpdateRouteMetrics(peer, latencyMs, err == nil, nil)
	if err != nil {
		r.logger.WithError(err).WithField("peer", peer.String()).Debug("forward failed")
	}
}

func (r *Relay) breakers() *breakerSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.breakerSetInstance == nil {
		r.breakerSetInstance = newBreakerSet()
	}
	return r.breakerSetInstance
}
