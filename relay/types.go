package relay

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// DropReason categorizes why an ingress message never reached delivery or
// forwarding, per spec §4.3 "drops are counted by reason".
type DropReason uint8

const (
	DropDecodeFailed DropReason = iota
	DropDuplicate
	DropLoop
	DropExpired
	DropRateLimited
	DropSignatureInvalid
)

func (r DropReason) String() string {
	switch r {
	case DropDecodeFailed:
		return "decode_failed"
	case DropDuplicate:
		return "duplicate"
	case DropLoop:
		return "loop"
	case DropExpired:
		return "expired"
	case DropRateLimited:
		return "rate_limited"
	case DropSignatureInvalid:
		return "signature_invalid"
	default:
		return "unknown"
	}
}

// subsystemTypes routes these message types to their owning subsystem
// instead of the generic listener set, per spec §4.3 step 9.
var subsystemTypes = map[wire.Type]bool{
	wire.TypeDHTFindNode:        true,
	wire.TypeDHTFoundNodes:      true,
	wire.TypeDHTFindValue:       true,
	wire.TypeDHTFoundValue:      true,
	wire.TypeDHTStore:           true,
	wire.TypeDHTStoreAck:        true,
	wire.TypeSessionPresence:    true,
	wire.TypeControlPing:        true,
	wire.TypeControlPong:        true,
	wire.TypeRequestBlob:        true,
	wire.TypeResponseBlob:       true,
	wire.TypeRendezvousAnnounce: true,
	wire.TypeRendezvousQuery:    true,
	wire.TypeRendezvousResponse: true,
	wire.TypeFileChunk:          true,
	wire.TypeGossipDigest:       true,
	wire.TypeGossipDigestReply:  true,
}

// controlTypes skip mandatory signature verification, per spec §4.3 step 7
// ("Required for all non-control types").
var controlTypes = map[wire.Type]bool{
	wire.TypeControlPing: true,
	wire.TypeControlPong: true,
	wire.TypeControlAck:  true,
}

// PeerSender is the minimal point-to-point send capability the relay
// needs, narrowed from transport.Transport so relay never depends on
// transport lifecycle methods it doesn't use.
type PeerSender interface {
	Send(peer crypto.NodeID, data []byte) error
}

// Listener receives locally-destined messages that aren't claimed by a
// subsystem handler.
type Listener func(from crypto.NodeID, msg *wire.Message)

// SubsystemHandler receives a subsystem-routed RPC message (DHT, gossip,
// session presence, control, blob transfer).
type SubsystemHandler func(from crypto.NodeID, msg *wire.Message)

// Config tunes the ingress pipeline and store-and-forward engine.
type Config struct {
	FloodRatePerSecond int
	LoopTrackerCap     int
	StoreTimeout       time.Duration
	OutboxCapacity     int
	RetryInterval      time.Duration
	RetryBackoff       time.Duration
	MaxRetries         int
	ReassemblerMaxSize int
	ReassemblerMaxAge  time.Duration
	TimeProvider       crypto.TimeProvider
}

const (
	DefaultFloodRatePerSecond = 100
	DefaultLoopTrackerCap     = 10000
	DefaultStoreTimeout       = 24 * time.Hour
	DefaultOutboxCapacity     = 1000
	DefaultRetryInterval      = 30 * time.Second
	DefaultRetryBackoff       = 2 * time.Second
	DefaultMaxRetries         = 10
	DefaultReassemblerMaxSize = 100 * 1024 * 1024
	DefaultReassemblerMaxAge  = 60 * time.Second
)

func (c Config) withDefaults() Config {
	out := c
	if out.FloodRatePerSecond <= 0 {
		out.FloodRatePerSecond = DefaultFloodRatePerSecond
	}
	if out.LoopTrackerCap <= 0 {
		out.LoopTrackerCap = DefaultLoopTrackerCap
	}
	if out.StoreTimeout <= 0 {
		out.StoreTimeout = DefaultStoreTimeout
	}
	if out.OutboxCapacity <= 0 {
		out.OutboxCapacity = DefaultOutboxCapacity
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = DefaultRetryInterval
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = DefaultRetryBackoff
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.ReassemblerMaxSize <= 0 {
		out.ReassemblerMaxSize = DefaultReassemblerMaxSize
	}
	if out.ReassemblerMaxAge <= 0 {
		out.ReassemblerMaxAge = DefaultReassemblerMaxAge
	}
	if out.TimeProvider == nil {
		out.TimeProvider = crypto.DefaultTimeProvider{}
	}
	return out
}

// Stats is a snapshot of ingress/egress counters.
type Stats struct {
	MessagesReceived uint64
	Drops            map[DropReason]uint64
	ForwardSuccess   uint64
	ForwardFailure   uint64
	StoreDelivered   uint64
	StoreExpired     uint64
	StoreFailed      uint64
	StoreEvicted     uint64
}
