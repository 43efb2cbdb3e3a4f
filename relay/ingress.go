package relay

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/storage"
	"github.com/meshnet/meshcore/wire"
)

// Relay is the ingress/egress message engine: decode, dedup, loop
// detection, TTL, flood-rate limiting, signature verification,
// classification, local delivery, Smart Flood forwarding, and
// store-and-forward.
type Relay struct {
	self   crypto.NodeID
	cfg    Config
	routes *routing.Table
	sender PeerSender
	outbox storage.Outbox

	loops *loopTracker
	rea   *wire.Reassembler

	mu                 sync.Mutex
	rateLimiters       map[crypto.NodeID]*rate.Limiter
	listeners          []Listener
	subsystems         map[wire.Type]SubsystemHandler
	stats              Stats
	stopRetry          chan struct{}
	retryLoopDone      chan struct{}
	retryLoopActive    bool
	breakerSetInstance *breakerSet

	logger *logrus.Entry
}

// New creates a Relay for the local identity self, forwarding decisions
// through routes and transmitting bytes through sender.
func New(self crypto.NodeID, routes *routing.Table, sender PeerSender, outbox storage.Outbox, cfg Config) *Relay {
	resolved := cfg.withDefaults()
	if outbox == nil {
		outbox = storage.NewMemoryOutbox(resolved.OutboxCapacity)
	}
	r := &Relay{
		self:         self,
		cfg:          resolved,
		routes:       routes,
		sender:       sender,
		outbox:       outbox,
		loops:        newLoopTracker(resolved.LoopTrackerCap),
		rea:          wire.NewReassembler(resolved.ReassemblerMaxSize, resolved.ReassemblerMaxAge),
		rateLimiters: make(map[crypto.NodeID]*rate.Limiter),
		subsystems:   make(map[wire.Type]SubsystemHandler),
		stats:        Stats{Drops: make(map[DropReason]uint64)},
		logger:       logrus.WithFields(logrus.Fields{"package": "relay"}),
	}
	r.subsystems[wire.TypeFileChunk] = r.handleFragmentCarrier
	return r
}

// OnMessage registers a generic local-delivery listener.
func (r *Relay) OnMessage(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// OnSubsystem registers the handler for a subsystem RPC message type.
func (r *Relay) OnSubsystem(t wire.Type, h SubsystemHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subsystems[t] = h
}

// Stats returns a snapshot of ingress/egress counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Stats{
		MessagesReceived: r.stats.MessagesReceived,
		ForwardSuccess:   r.stats.ForwardSuccess,
		ForwardFailure:   r.stats.ForwardFailure,
		StoreDelivered:   r.stats.StoreDelivered,
		StoreExpired:     r.stats.StoreExpired,
		StoreFailed:      r.stats.StoreFailed,
		StoreEvicted:     r.stats.StoreEvicted,
		Drops:            make(map[DropReason]uint64, len(r.stats.Drops)),
	}
	for k, v := range r.stats.Drops {
		out.Drops[k] = v
	}
	return out
}

func (r *Relay) drop(reason DropReason) {
	r.mu.Lock()
	r.stats.Drops[reason]++
	r.mu.Unlock()
}

func (r *Relay) limiterFor(peer crypto.NodeID) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.rateLimiters[peer]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.cfg.FloodRatePerSecond), r.cfg.FloodRatePerSecond)
		r.rateLimiters[peer] = lim
	}
	return lim
}

// Ingress processes one (bytes, from_peer) pair through the full pipeline
// described in spec §4.3.
func (r *Relay) Ingress(data []byte, from crypto.NodeID) {
	logger := r.logger.WithField("from", from.String())

	// 1. Decode
	msg, err := wire.Decode(data)
	if err != nil {
		logger.WithError(err).Debug("decode failed")
		r.drop(DropDecodeFailed)
		return
	}
	r.mu.Lock()
	r.stats.MessagesReceived++
	r.mu.Unlock()

	// 2. Dedup
	hash := msg.ContentHash()
	if r.routes.HasSeen(hash) {
		r.drop(DropDuplicate)
		return
	}

	// 3. Loop detect
	if r.loops.observe(hash, from) {
		r.drop(DropLoop)
		return
	}

	// 4. Mark seen
	r.routes.MarkSeen(hash)

	// 5. TTL
	if msg.Expired() {
		r.drop(DropExpired)
		return
	}

	// 6. Flood rate limit
	if !r.limiterFor(from).Allow() {
		r.drop(DropRateLimited)
		return
	}

	// 7. Signature verify
	if !controlTypes[msg.Header.Type] {
		ok, err := msg.Verify()
		if err != nil || !ok {
			if err != nil {
				logger.WithError(err).Warn("signature verification errored")
			}
			r.drop(DropSignatureInvalid)
			r.routes.UpdateRouteMetrics(from, 0, false, nil)
			return
		}
	}

	// 8. Classification
	isBroadcast := msg.Header.Type.IsBroadcast()
	isForSelf := r.isForSelf(msg, isBroadcast)

	// 9. Local delivery
	if isForSelf {
		r.deliverLocal(from, msg)
	}

	// 10. Forwarding decision
	if isForSelf && !isBroadcast {
		return
	}
	r.forward(msg, from)
}

func (r *Relay) isForSelf(msg *wire.Message, isBroadcast bool) bool {
	if isBroadcast {
		return true
	}
	if subsystemTypes[msg.Header.Type] {
		return true
	}
	payload, err := wire.DecodeUnicastPayload(msg.Payload)
	if err != nil {
		return false
	}
	return payload.Recipient == r.self
}

func (r *Relay) deliverLocal(from crypto.NodeID, msg *wire.Message) {
	r.mu.Lock()
	handler, hasSubsystem := r.subsystems[msg.Header.Type]
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if hasSubsystem && subsystemTypes[msg.Header.Type] {
		handler(from, msg)
		return
	}
	for _, l := range listeners {
		l(from, msg)
	}
}

// forward decrements TTL and hands the message to the Smart Flood
// forwarding policy if TTL remains.
func (r *Relay) forward(msg *wire.Message, from crypto.NodeID) {
	decremented := msg.DecrementTTL()
	if decremented.Expired() {
		return
	}
	r.floodForward(decremented, from)
}
