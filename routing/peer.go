package routing

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/transport"
)

// State is a Peer's connection lifecycle state.
type State uint8

const (
	StateConnecting State = iota
	StateConnected
	StateDegraded
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDegraded:
		return "DEGRADED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Capabilities are self-advertised peer attributes exchanged out of band
// (e.g. via PEER_INTRODUCTION) and recorded for ranking/admission.
type Capabilities struct {
	MaxBandwidthBps     uint64
	SupportedTransports []transport.Kind
	ProtocolVersion     uint8
	FeatureFlags        uint32
}

// Peer describes a known remote endpoint. Table is the sole owner; callers
// elsewhere hold a NodeID handle and look the current Peer up through
// Table.Peer rather than retaining a pointer, since fields like Quality
// and State mutate continuously.
type Peer struct {
	ID        crypto.NodeID
	PublicKey [32]byte
	Transport transport.Kind

	FirstConnectedAt time.Time
	LastSeen         time.Time

	BytesSent     uint64
	BytesReceived uint64

	// Quality is connection quality in [0,100]; the dominant ranking
	// signal, representing "now" rather than history.
	Quality int

	State State

	Capabilities Capabilities

	// Reputation in [0,100], starts at 50; moves state between
	// CONNECTED and DEGRADED at the thresholds in update_route_metrics.
	Reputation int

	BlacklistedUntil time.Time // zero means not blacklisted; far-future means permanent
	Blacklisted      bool

	SuccessCount uint64
	FailureCount uint64

	// MeasuredBandwidthBps is the observed throughput, used by the
	// ranking throughput bonus separately from the advertised capability.
	MeasuredBandwidthBps float64
}

// NewPeer constructs a Peer in the CONNECTING state with default
// reputation and quality, at the given point in time.
func NewPeer(id crypto.NodeID, publicKey [32]byte, kind transport.Kind, now time.Time) *Peer {
	return &Peer{
		ID:               id,
		PublicKey:        publicKey,
		Transport:        kind,
		FirstConnectedAt: now,
		LastSeen:         now,
		Quality:          100,
		State:            StateConnecting,
		Reputation:       50,
	}
}

// IsBlacklistedAt reports whether the peer is blacklisted at instant now,
// lazily clearing an expired blacklist entry as a side effect.
func (p *Peer) IsBlacklistedAt(now time.Time) bool {
	if !p.Blacklisted {
		return false
	}
	if !p.BlacklistedUntil.IsZero() && !now.Before(p.BlacklistedUntil) {
		p.Blacklisted = false
		p.BlacklistedUntil = time.Time{}
		return false
	}
	return true
}
