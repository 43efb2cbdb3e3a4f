package gossip

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// PeerSender is the minimal point-to-point send capability the gossip
// engine needs.
type PeerSender interface {
	Send(peer crypto.NodeID, data []byte) error
}

// Signer authenticates a Message before it leaves this node. The gossip
// engine never holds the local identity's private key.
type Signer func(msg *wire.Message) error

// Listener receives a message the gossip engine has newly learned from a
// peer's digest reply; locally pushed messages are not reported.
type Listener func(from crypto.NodeID, msg *wire.Message)

// Config tunes the gossip engine's timing.
type Config struct {
	GossipInterval          time.Duration
	Fanout                  int
	PushPullRatio           float64
	MaxDigest               int
	MaxMessageAge           time.Duration
	PushSubsetSize          int
	PruneInterval           time.Duration
	EscalationThreshold     time.Duration
	EscalationCheckInterval time.Duration
	TimeProvider            crypto.TimeProvider
	Rand                    RandSource
}

// RandSource is the randomness the engine needs for fanout selection and
// the push/pull coin flip; narrowed from *rand.Rand so tests can supply a
// deterministic sequence.
type RandSource interface {
	Float64() float64
	Intn(n int) int
}

const (
	DefaultGossipInterval          = time.Second
	DefaultFanout                  = 4
	DefaultPushPullRatio           = 0.7
	DefaultMaxDigest               = 50
	DefaultMaxMessageAge           = 60 * time.Second
	DefaultPushSubsetSize          = 10
	DefaultPruneInterval           = 30 * time.Second
	DefaultEscalationThreshold     = 30 * time.Second
	DefaultEscalationCheckInterval = 5 * time.Second
)

func (c Config) withDefaults() Config {
	out := c
	if out.GossipInterval <= 0 {
		out.GossipInterval = DefaultGossipInterval
	}
	if out.Fanout <= 0 {
		out.Fanout = DefaultFanout
	}
	if out.PushPullRatio <= 0 {
		out.PushPullRatio = DefaultPushPullRatio
	}
	if out.MaxDigest <= 0 {
		out.MaxDigest = DefaultMaxDigest
	}
	if out.MaxMessageAge <= 0 {
		out.MaxMessageAge = DefaultMaxMessageAge
	}
	if out.PushSubsetSize <= 0 {
		out.PushSubsetSize = DefaultPushSubsetSize
	}
	if out.PruneInterval <= 0 {
		out.PruneInterval = DefaultPruneInterval
	}
	if out.EscalationThreshold <= 0 {
		out.EscalationThreshold = DefaultEscalationThreshold
	}
	if out.EscalationCheckInterval <= 0 {
		out.EscalationCheckInterval = DefaultEscalationCheckInterval
	}
	if out.TimeProvider == nil {
		out.TimeProvider = crypto.DefaultTimeProvider{}
	}
	if out.Rand == nil {
		out.Rand = defaultRandSource{}
	}
	return out
}

// entry is one buffered message awaiting dissemination.
type entry struct {
	msg            *wire.Message
	addedAt        time.Time
	lastSent       time.Time
	baseClass      wire.PriorityClass
	effectiveClass wire.PriorityClass
	lastEscalated  time.Time
}

// Stats is a snapshot of gossip engine counters.
type Stats struct {
	BufferedMessages int
	PushRounds       uint64
	PullRounds       uint64
	DigestsSent      uint64
	DigestRepliesOut uint64
	MessagesLearned  uint64
	Escalations      uint64
	Pruned           uint64
}
