// Package node implements the orchestrator: it owns the local identity,
// wires registered transports into the relay/DHT/gossip/scheduler
// pipeline, and exposes the engine's public API. Grounded on the teacher
// toxcore.go's Tox struct/Options/New shape, generalized from Tox's
// UDP/TCP-specific wiring to the spec's transport-agnostic Transport
// Manager, and from Tox's friend-request/friend-message callback pairs to
// on_message/on_peer_connected/on_peer_disconnected.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/dht"
	"github.com/meshnet/meshcore/gossip"
	"github.com/meshnet/meshcore/relay"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/sched"
	"github.com/meshnet/meshcore/storage"
	"github.com/meshnet/meshcore/transport"
	"github.com/meshnet/meshcore/wire"
)

// Node wires every subsystem together for one local identity and exposes
// the engine's public operations.
type Node struct {
	self    crypto.NodeID
	keyPair *crypto.Identity
	cfg     Config

	routes    *routing.Table
	dhtTable  *dht.Table
	relay     *relay.Relay
	gossip    *gossip.Engine
	scheduler *sched.Scheduler
	transport *transport.Manager
	values    *storage.MemoryValueStore

	mu                   sync.Mutex
	listeners            []MessageListener
	connectListeners     []PeerEventListener
	disconnectListeners  []PeerEventListener
	sessionListeners     []SessionInvalidatedListener
	monitors             map[crypto.NodeID]*peerMonitor
	stats                Stats

	sessionID        string
	sessionTimestamp int64

	pending *pendingRequests

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	logger *logrus.Entry
}

// New builds a Node for cfg.Identity, wiring routing, the relay pipeline,
// the DHT table, the gossip engine, the bandwidth scheduler, and every
// transport in transports into one pipeline. The node is not started;
// call Start once transports are registered and callbacks attached.
func New(cfg Config, transports ...transport.Transport) (*Node, error) {
	cfg = cfg.withDefaults()
	if cfg.Identity == nil {
		return nil, fmt.Errorf("node: Config.Identity is required")
	}
	self := crypto.NodeIDFromPublicKey(cfg.Identity.Public)

	routes := routing.New(self, cfg.RoutingConfig)
	dhtTable := dht.NewTable(self, nil)
	routes.SetKBucketAdder(dhtTable)

	values := storage.NewMemoryValueStore(cfg.ValueStoreCapacity)
	outbox := storage.NewMemoryOutbox(cfg.RelayConfig.OutboxCapacity)

	mgr := transport.NewManager()
	for _, t := range transports {
		mgr.RegisterTransport(t)
	}

	n := &Node{
		self:      self,
		keyPair:   cfg.Identity,
		cfg:       cfg,
		routes:    routes,
		dhtTable:  dhtTable,
		transport: mgr,
		values:    values,
		monitors:  make(map[crypto.NodeID]*peerMonitor),
		pending:   newPendingRequests(),
		logger:    logrus.WithFields(logrus.Fields{"package": "node", "self": self.String()}),
	}

	n.relay = relay.New(self, routes, mgr, outbox, cfg.RelayConfig)
	n.gossip = gossip.New(self, cfg.Identity.Public, routes, mgr, n.sign, cfg.GossipConfig)
	n.scheduler = sched.New(mgr, cfg.SchedConfig)

	n.registerSubsystemHandlers()
	n.relay.OnMessage(n.handleDelivered)
	n.gossip.OnMessage(n.handleDelivered)

	return n, nil
}

// sign authenticates msg with the local identity's private key. Passed
// to the gossip engine and used directly by node's own RPC/control
// traffic, so no other component ever touches the private key.
func (n *Node) sign(msg *wire.Message) error {
	return msg.Sign(n.keyPair.Private)
}

// Self returns the local NodeID.
func (n *Node) Self() crypto.NodeID { return n.self }

// OnMessage registers a callback for locally-destined messages (unicast
// delivery or a freshly-learned gossip message).
func (n *Node) OnMessage(l MessageListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// OnPeerConnected registers a callback fired when a transport reports a
// completed connection.
func (n *Node) OnPeerConnected(l PeerEventListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectListeners = append(n.connectListeners, l)
}

// OnPeerDisconnected registers a callback fired when a transport reports
// a connection teardown.
func (n *Node) OnPeerDisconnected(l PeerEventListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnectListeners = append(n.disconnectListeners, l)
}

// OnSessionInvalidated registers a callback fired when a competing
// session for this identity wins the single-session tie-break.
func (n *Node) OnSessionInvalidated(l SessionInvalidatedListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionListeners = append(n.sessionListeners, l)
}

// Stats returns a snapshot of node and subsystem counters.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	out := n.stats
	n.mu.Unlock()

	out.Relay = n.relay.Stats()
	out.Gossip = n.gossip.Stats()
	out.Sched = n.scheduler.Stats()
	out.Peers = len(n.routes.Peers())
	return out
}

// handleDelivered fans a locally-destined message out to every
// registered MessageListener. Shared by the relay's generic listener set
// and the gossip engine's learned-message callback.
func (n *Node) handleDelivered(from crypto.NodeID, msg *wire.Message) {
	n.mu.Lock()
	listeners := make([]MessageListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()
	for _, l := range listeners {
		l(from, msg)
	}
}
