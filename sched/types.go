package sched

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// PeerSender delivers already-encoded wire bytes to a peer. Implemented by
// a transport or relay component; the scheduler never encodes or signs.
type PeerSender interface {
	Send(peer crypto.NodeID, data []byte) error
}

// Clock abstracts time for deterministic tests, mirroring crypto.TimeProvider.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config tunes the scheduler's admission policy.
type Config struct {
	Clock Clock

	// BandwidthBytesPerSec is the sustained token-bucket refill rate.
	BandwidthBytesPerSec float64
	// BurstBytes is the maximum number of bytes the bucket can hold,
	// and therefore the largest single item the scheduler can ever
	// admit. Must be >= the largest item submitted.
	BurstBytes int

	// QueueCapacity bounds the number of items waiting for admission;
	// Submit reports ErrQueueFull once reached. Zero means unbounded.
	QueueCapacity int
}

const (
	// DefaultBandwidthBytesPerSec caps sustained throughput at 1 MiB/s,
	// a conservative default for a mesh link shared with many peers.
	DefaultBandwidthBytesPerSec = 1 << 20
	// DefaultBurstBytes comfortably exceeds MaxEncryptedMessage-class
	// traffic so a single control or voice frame is never rejected as
	// larger than the bucket itself.
	DefaultBurstBytes = 64 * 1024
)

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.BandwidthBytesPerSec <= 0 {
		c.BandwidthBytesPerSec = DefaultBandwidthBytesPerSec
	}
	if c.BurstBytes <= 0 {
		c.BurstBytes = DefaultBurstBytes
	}
	return c
}

// Item is a queued send request awaiting bandwidth admission.
type Item struct {
	Peer     crypto.NodeID
	Data     []byte
	Priority wire.PriorityClass
	Enqueued time.Time

	// seq breaks ties between same-priority items in submission order,
	// and gives heap.Interface a stable total order.
	seq uint64
}

// Stats is a snapshot of scheduler counters and the congestion metrics fed
// in via UpdateMetrics.
type Stats struct {
	Submitted  uint64
	Sent       uint64
	SendFailed uint64
	Rejected   uint64
	Congested  uint64
	Evicted    uint64
	BytesSent  uint64
	Queued     int

	// PacketLoss and Utilization are the most recent values reported to
	// UpdateMetrics, in [0,1]. BandwidthBps is the token bucket's current
	// refill rate after rate adjustment.
	PacketLoss   float64
	Utilization  float64
	BandwidthBps float64
}

// Congestion admission/rate-adjustment thresholds.
const (
	// CongestionUtilizationThreshold: above this utilization, only
	// CRITICAL-priority items are admitted.
	CongestionUtilizationThreshold = 0.80
	// CongestionPacketLossThreshold: above this loss rate, only
	// CRITICAL-priority items are admitted.
	CongestionPacketLossThreshold = 0.10
	// CongestionQueueFillThreshold: above this fraction of QueueCapacity,
	// only CRITICAL-priority items are admitted.
	CongestionQueueFillThreshold = 0.90

	// RateAdjustPacketLossThreshold: above this loss rate, available
	// bandwidth is multiplied by RateAdjustDownFactor.
	RateAdjustPacketLossThreshold = 0.05
	RateAdjustDownFactor          = 0.8
	// RateAdjustUtilizationThreshold: below this utilization, available
	// bandwidth is multiplied by RateAdjustUpFactor.
	RateAdjustUtilizationThreshold = 0.50
	RateAdjustUpFactor             = 1.1

	// MinBandwidthBytesPerSec floors rate-down adjustment so a lossy link
	// never backs the scheduler off to a full stall.
	MinBandwidthBytesPerSec = 1024
)

// criticalPriorityCeiling is the lowest (numerically highest) wire
// priority class still treated as CRITICAL for congestion admission:
// CONTROL_PING/CONTROL_PONG/CONTROL_ACK.
const criticalPriorityCeiling = wire.PriorityControlAck

func isCriticalPriority(p wire.PriorityClass) bool {
	return p <= criticalPriorityCeiling
}

// ErrQueueFull is returned by Submit when Config.QueueCapacity is reached
// and the new arrival does not outrank the lowest-priority incumbent.
type ErrQueueFull struct{}

func (ErrQueueFull) Error() string { return "sched: admission queue is full" }

// ErrItemTooLarge is returned by Submit when an item's payload exceeds the
// token bucket's burst size and could therefore never be admitted.
type ErrItemTooLarge struct{}

func (ErrItemTooLarge) Error() string { return "sched: item exceeds configured burst size" }

// ErrCongested is returned by Submit for a non-CRITICAL item while the
// scheduler is signaling congestion (see Stats/UpdateMetrics). Callers
// are expected to fall back to their own durable queue (store-and-forward)
// rather than treat this as a permanent failure.
type ErrCongested struct{}

func (ErrCongested) Error() string { return "sched: congested, only CRITICAL priority admitted" }
