package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/wire"
)

// Engine runs periodic push/pull anti-entropy rounds against a random
// fanout of connected peers and escalates starved low-priority entries.
type Engine struct {
	self       crypto.NodeID
	selfPublic [32]byte
	cfg        Config
	routes     *routing.Table
	sender     PeerSender
	sign       Signer

	mu        sync.Mutex
	entries   map[crypto.ContentHash]*entry
	listeners []Listener
	stats     Stats

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	logger *logrus.Entry
}

// New creates an Engine for the local identity self, identified on the
// wire by selfPublic (the node's signing public key, not the self hash).
// sign authenticates outgoing digest/digest-reply envelopes; the engine
// never holds the local private key directly.
func New(self crypto.NodeID, selfPublic [32]byte, routes *routing.Table, sender PeerSender, sign Signer, cfg Config) *Engine {
	return &Engine{
		self:       self,
		selfPublic: selfPublic,
		cfg:        cfg.withDefaults(),
		routes:     routes,
		sender:     sender,
		sign:       sign,
		entries:    make(map[crypto.ContentHash]*entry),
		logger:     logrus.WithFields(logrus.Fields{"package": "gossip"}),
	}
}

// OnMessage registers a callback invoked whenever the engine learns a new
// message from a peer's digest reply. Messages enqueued locally via Push
// do not trigger it.
func (e *Engine) OnMessage(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Push enqueues a fully-signed message for epidemic dissemination.
// Duplicate content hashes are ignored.
func (e *Engine) Push(msg *wire.Message) {
	hash := msg.ContentHash()
	now := e.cfg.TimeProvider.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.entries[hash]; exists {
		return
	}
	class := wire.PriorityForType(msg.Header.Type)
	e.entries[hash] = &entry{
		msg:            msg,
		addedAt:        now,
		baseClass:      class,
		effectiveClass: class,
	}
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	out.BufferedMessages = len(e.entries)
	return out
}

// Start begins the gossip round, escalation, and prune loops. A second
// call is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(3)
	e.mu.Unlock()

	go e.gossipLoop()
	go e.escalationLoop()
	go e.pruneLoop()
}

// Stop halts all loops, blocking until they exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}

func (e *Engine) gossipLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.GossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.gossipRound()
		}
	}
}

func (e *Engine) escalationLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.EscalationCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.escalate()
		}
	}
}

func (e *Engine) pruneLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.prune()
		}
	}
}

// escalate promotes any entry that has gone EscalationThreshold without
// being sent, one class closer to the top, preventing a busy link from
// starving low-priority traffic indefinitely.
func (e *Engine) escalate() {
	now := e.cfg.TimeProvider.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.entries {
		reference := ent.lastSent
		if reference.IsZero() {
			reference = ent.addedAt
		}
		if ent.effectiveClass == wire.PriorityControlPing {
			continue
		}
		if now.Sub(reference) < e.cfg.EscalationThreshold {
			continue
		}
		if now.Sub(ent.lastEscalated) < e.cfg.EscalationThreshold {
			continue
		}
		ent.effectiveClass--
		ent.lastEscalated = now
		e.stats.Escalations++
	}
}

func (e *Engine) prune() {
	now := e.cfg.TimeProvider.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for hash, ent := range e.entries {
		if now.Sub(ent.addedAt) >= e.cfg.MaxMessageAge {
			delete(e.entries, hash)
			e.stats.Pruned++
		}
	}
}

func (e *Engine) gossipRound() {
	peers := e.randomFanoutPeers()
	if len(peers) == 0 {
		return
	}
	if e.cfg.Rand.Float64() < e.cfg.PushPullRatio {
		e.pushRound(peers)
	} else {
		e.pullRound(peers)
	}
}

func (e *Engine) randomFanoutPeers() []crypto.NodeID {
	all := e.routes.Peers()
	connected := make([]crypto.NodeID, 0, len(all))
	for _, p := range all {
		if p.State == routing.StateConnected {
			connected = append(connected, p.ID)
		}
	}
	if len(connected) <= e.cfg.Fanout {
		return connected
	}
	shuffled := make([]crypto.NodeID, len(connected))
	copy(shuffled, connected)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := e.cfg.Rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:e.cfg.Fanout]
}

// orderedEntries returns buffered messages sorted highest-priority first,
// capped at MaxDigest.
func (e *Engine) orderedEntries() []*entry {
	e.mu.Lock()
	all := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		all = append(all, ent)
	}
	e.mu.Unlock()

	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].effectiveClass < all[j-1].effectiveClass; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > e.cfg.MaxDigest {
		all = all[:e.cfg.MaxDigest]
	}
	return all
}

// pushSubset picks a random subset (at most PushSubsetSize) of buffered
// entries no older than MaxMessageAge, so a push round advertises a
// fresh sample of traffic rather than replaying the entire buffer to
// every fanout peer every round.
func (e *Engine) pushSubset() []*entry {
	ordered := e.orderedEntries()
	now := e.cfg.TimeProvider.Now()

	recent := make([]*entry, 0, len(ordered))
	for _, ent := range ordered {
		if now.Sub(ent.addedAt) <= e.cfg.MaxMessageAge {
			recent = append(recent, ent)
		}
	}
	if len(recent) <= e.cfg.PushSubsetSize {
		return recent
	}

	shuffled := make([]*entry, len(recent))
	copy(shuffled, recent)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := e.cfg.Rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:e.cfg.PushSubsetSize]
}

func (e *Engine) pushRound(peers []crypto.NodeID) {
	e.mu.Lock()
	e.stats.PushRounds++
	e.mu.Unlock()

	subset := e.pushSubset()
	now := e.cfg.TimeProvider.Now()
	for _, peer := range peers {
		for _, ent := range subset {
			if err := e.sender.Send(peer, ent.msg.Encode()); err != nil {
				e.logger.WithError(err).WithField("peer", peer.String()).Debug("gossip push failed")
				continue
			}
			e.mu.Lock()
			ent.lastSent = now
			e.mu.Unlock()
		}
	}
}

func (e *Engine) pullRound(peers []crypto.NodeID) {
	e.mu.Lock()
	e.stats.PullRounds++
	e.mu.Unlock()

	ordered := e.orderedEntries()
	hashes := make([]crypto.ContentHash, len(ordered))
	for i, ent := range ordered {
		hashes[i] = ent.msg.ContentHash()
	}
	digest := &wire.Digest{Hashes: hashes}

	envelope := &wire.Message{
		Header: wire.Header{
			Version:   wire.CurrentVersion,
			Type:      wire.TypeGossipDigest,
			TTL:       1,
			Timestamp: e.cfg.TimeProvider.Now().UnixMilli(),
			Sender:    e.selfPublic,
		},
		Payload: digest.Encode(),
	}
	if err := e.sign(envelope); err != nil {
		e.logger.WithError(err).Warn("failed to sign gossip digest")
		return
	}
	encoded := envelope.Encode()

	e.mu.Lock()
	e.stats.DigestsSent += uint64(len(peers))
	e.mu.Unlock()

	for _, peer := range peers {
		if err := e.sender.Send(peer, encoded); err != nil {
			e.logger.WithError(err).WithField("peer", peer.String()).Debug("gossip digest send failed")
		}
	}
}

// HandleDigest is the subsystem handler for wire.TypeGossipDigest: it
// replies with every locally-buffered message absent from the sender's
// digest.
func (e *Engine) HandleDigest(from crypto.NodeID, msg *wire.Message) {
	digest, err := wire.DecodeDigest(msg.Payload)
	if err != nil {
		e.logger.WithError(err).Debug("malformed gossip digest")
		return
	}
	known := make(map[crypto.ContentHash]bool, len(digest.Hashes))
	for _, h := range digest.Hashes {
		known[h] = true
	}

	ordered := e.orderedEntries()
	missing := make([][]byte, 0)
	for _, ent := range ordered {
		if known[ent.msg.ContentHash()] {
			continue
		}
		missing = append(missing, ent.msg.Encode())
	}
	if len(missing) == 0 {
		return
	}

	reply := &wire.DigestReply{Messages: missing}
	envelope := &wire.Message{
		Header: wire.Header{
			Version:   wire.CurrentVersion,
			Type:      wire.TypeGossipDigestReply,
			TTL:       1,
			Timestamp: e.cfg.TimeProvider.Now().UnixMilli(),
			Sender:    e.selfPublic,
		},
		Payload: reply.Encode(),
	}
	if err := e.sign(envelope); err != nil {
		e.logger.WithError(err).Warn("failed to sign gossip digest reply")
		return
	}

	e.mu.Lock()
	e.stats.DigestRepliesOut++
	e.mu.Unlock()

	if err := e.sender.Send(from, envelope.Encode()); err != nil {
		e.logger.WithError(err).WithField("peer", from.String()).Debug("gossip digest reply send failed")
	}
}

// HandleDigestReply is the subsystem handler for
// wire.TypeGossipDigestReply: it decodes, verifies, and learns every
// contained message not already buffered.
func (e *Engine) HandleDigestReply(from crypto.NodeID, msg *wire.Message) {
	reply, err := wire.DecodeDigestReply(msg.Payload)
	if err != nil {
		e.logger.WithError(err).Debug("malformed gossip digest reply")
		return
	}

	now := e.cfg.TimeProvider.Now()
	for _, raw := range reply.Messages {
		learned, err := wire.Decode(raw)
		if err != nil {
			e.logger.WithError(err).Debug("malformed gossiped message")
			continue
		}
		ok, err := learned.Verify()
		if err != nil || !ok {
			e.logger.Debug("gossiped message failed verification")
			continue
		}

		hash := learned.ContentHash()
		e.mu.Lock()
		if _, exists := e.entries[hash]; exists {
			e.mu.Unlock()
			continue
		}
		class := wire.PriorityForType(learned.Header.Type)
		e.entries[hash] = &entry{
			msg:            learned,
			addedAt:        now,
			baseClass:      class,
			effectiveClass: class,
		}
		e.stats.MessagesLearned++
		listeners := make([]Listener, len(e.listeners))
		copy(listeners, e.listeners)
		e.mu.Unlock()

		for _, l := range listeners {
			l(from, learned)
		}
	}
}
