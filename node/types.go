package node

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/dht"
	"github.com/meshnet/meshcore/gossip"
	"github.com/meshnet/meshcore/relay"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/sched"
	"github.com/meshnet/meshcore/wire"
)

// MessageListener receives a message delivered to this node, whether
// unicast-addressed or learned via gossip.
type MessageListener func(from crypto.NodeID, msg *wire.Message)

// PeerEventListener receives a peer connect/disconnect notification.
type PeerEventListener func(peer crypto.NodeID)

// SessionInvalidatedListener is invoked when a competing session for this
// node's identity wins the single-session tie-break, immediately before
// Stop is triggered.
type SessionInvalidatedListener func(winningSessionID string)

// Config wires every subsystem a Node owns. Zero-value subsystem configs
// fall back to that subsystem's own documented defaults.
type Config struct {
	Identity *crypto.Identity

	RoutingConfig routing.Config
	RelayConfig   relay.Config
	GossipConfig  gossip.Config
	SchedConfig   sched.Config
	LookupConfig  dht.LookupConfig

	ValueStoreCapacity int

	HeartbeatInterval       time.Duration
	HealthCheckInterval     time.Duration
	SessionPresenceInterval time.Duration
	OfflineAfter            time.Duration
	PoorAfter               time.Duration
	OfflineDisconnectStrikes int

	TimeProvider crypto.TimeProvider
}

const (
	DefaultHeartbeatInterval        = 30 * time.Second
	DefaultHealthCheckInterval      = 5 * time.Second
	DefaultSessionPresenceInterval  = 30 * time.Second
	DefaultOfflineAfter             = 30 * time.Second
	DefaultPoorAfter                = 10 * time.Second
	DefaultOfflineDisconnectStrikes = 6
	DefaultValueStoreCapacity       = 1000
)

func (c Config) withDefaults() Config {
	out := c
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if out.HealthCheckInterval <= 0 {
		out.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if out.SessionPresenceInterval <= 0 {
		out.SessionPresenceInterval = DefaultSessionPresenceInterval
	}
	if out.OfflineAfter <= 0 {
		out.OfflineAfter = DefaultOfflineAfter
	}
	if out.PoorAfter <= 0 {
		out.PoorAfter = DefaultPoorAfter
	}
	if out.OfflineDisconnectStrikes <= 0 {
		out.OfflineDisconnectStrikes = DefaultOfflineDisconnectStrikes
	}
	if out.ValueStoreCapacity <= 0 {
		out.ValueStoreCapacity = DefaultValueStoreCapacity
	}
	if out.TimeProvider == nil {
		out.TimeProvider = crypto.DefaultTimeProvider{}
	}
	return out
}

// Stats aggregates node-level counters alongside a snapshot of every
// owned subsystem's own counters.
type Stats struct {
	HeartbeatsSent       uint64
	HeartbeatsReceived   uint64
	SessionInvalidations uint64
	PeersDisconnectedForHealth uint64

	Relay   relay.Stats
	Gossip  gossip.Stats
	Sched   sched.Stats
	Peers   int
}

// peerMonitor tracks the liveness bookkeeping the health loop needs per
// connected peer: last time any activity (heartbeat or otherwise) was
// observed, and how many consecutive offline checks have elapsed.
type peerMonitor struct {
	lastActivity    time.Time
	offlineStrikes  int
}
