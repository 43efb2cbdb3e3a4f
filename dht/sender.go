package dht

import (
	"context"
	"time"

	"github.com/meshnet/meshcore/crypto"
)

// Sender performs the actual network round trips a lookup or store needs.
// The node package implements it on top of the relay/transport stack;
// dht itself never touches wire framing, mirroring the spec's guidance
// to define trait-like capability sets at component boundaries (§9
// "Dynamic dispatch over transports and persistence").
type Sender interface {
	// FindNode asks peer for its closest known contacts to target.
	FindNode(ctx context.Context, peer, target crypto.NodeID) ([]crypto.NodeID, error)
	// FindValue asks peer for the value at key. If peer holds it,
	// found is true and value is populated; otherwise contacts holds
	// peer's closest known contacts to key, same as FindNode.
	FindValue(ctx context.Context, peer crypto.NodeID, key crypto.ContentHash) (contacts []crypto.NodeID, value []byte, found bool, err error)
	// Store asks peer to persist key/value for ttl (zero means no
	// expiry beyond the peer's own retention policy).
	Store(ctx context.Context, peer crypto.NodeID, key crypto.ContentHash, value []byte, ttl time.Duration) error
}

// ReliabilityFeedback lets the lookup report query outcomes back to the
// routing table so peer reliability degrades on DHT-query failure, per
// spec §4.2 "peer reliability is decremented via routing-table feedback".
type ReliabilityFeedback interface {
	UpdateRouteMetrics(dest crypto.NodeID, latencyMs float64, success bool, bandwidthBps *float64)
}
