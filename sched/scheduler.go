package sched

import (
	"container/heap"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// Scheduler admits queued sends against a single token-bucket bandwidth
// budget, always preferring the highest-priority waiting item once tokens
// are available. Control traffic and voice therefore never queue behind a
// bulk file transfer merely because the transfer was submitted first.
type Scheduler struct {
	cfg     Config
	sender  PeerSender
	limiter *rate.Limiter

	mu           sync.Mutex
	queue        itemHeap
	nextSeq      uint64
	stats        Stats
	bandwidthBps float64

	wake chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	logger *logrus.Entry
}

// New creates a Scheduler that dispatches admitted items to sender.
func New(sender PeerSender, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:          cfg,
		sender:       sender,
		limiter:      rate.NewLimiter(rate.Limit(cfg.BandwidthBytesPerSec), cfg.BurstBytes),
		bandwidthBps: cfg.BandwidthBytesPerSec,
		wake:         make(chan struct{}, 1),
		logger:       logrus.WithFields(logrus.Fields{"package": "sched"}),
	}
}

// Submit enqueues data for delivery to peer at the given priority class.
// It returns immediately; admission and send happen asynchronously on the
// dispatch loop started by Start.
func (s *Scheduler) Submit(peer crypto.NodeID, data []byte, priority wire.PriorityClass) error {
	if len(data) > s.cfg.BurstBytes {
		return ErrItemTooLarge{}
	}

	s.mu.Lock()
	if s.congestedLocked() && !isCriticalPriority(priority) {
		s.stats.Congested++
		s.mu.Unlock()
		return ErrCongested{}
	}
	if s.cfg.QueueCapacity > 0 && len(s.queue) >= s.cfg.QueueCapacity {
		if !s.evictLowestPriorityIfOutrankedLocked(priority) {
			s.stats.Rejected++
			s.mu.Unlock()
			return ErrQueueFull{}
		}
	}
	item := &Item{
		Peer:     peer,
		Data:     data,
		Priority: priority,
		Enqueued: s.cfg.Clock.Now(),
		seq:      s.nextSeq,
	}
	s.nextSeq++
	heap.Push(&s.queue, item)
	s.stats.Submitted++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Queued = len(s.queue)
	out.BandwidthBps = s.bandwidthBps
	return out
}

// Metrics is an alias for Stats, named to match the scheduler contract's
// metrics() accessor alongside update_bandwidth/record_send.
func (s *Scheduler) Metrics() Stats {
	return s.Stats()
}

// UpdateBandwidth resets the token bucket's sustained refill rate to bps,
// e.g. in response to an external link-capacity probe. It does not alter
// burst size.
func (s *Scheduler) UpdateBandwidth(bps float64) {
	if bps < MinBandwidthBytesPerSec {
		bps = MinBandwidthBytesPerSec
	}
	s.mu.Lock()
	s.bandwidthBps = bps
	s.mu.Unlock()
	s.limiter.SetLimit(rate.Limit(bps))
}

// RecordSend accounts bytes as delivered, for callers (and the dispatch
// loop itself) tracking aggregate throughput alongside UpdateMetrics'
// utilization input.
func (s *Scheduler) RecordSend(n int) {
	s.mu.Lock()
	s.stats.BytesSent += uint64(n)
	s.mu.Unlock()
}

// UpdateMetrics feeds the scheduler the most recent packet-loss and
// bandwidth-utilization observations (each in [0,1]), used both for the
// congestion admission check in Submit and for rate adjustment: loss
// above RateAdjustPacketLossThreshold backs off available bandwidth by
// RateAdjustDownFactor; utilization below RateAdjustUtilizationThreshold
// grows it by RateAdjustUpFactor.
func (s *Scheduler) UpdateMetrics(packetLoss, utilization float64) {
	s.mu.Lock()
	s.stats.PacketLoss = packetLoss
	s.stats.Utilization = utilization

	next := s.bandwidthBps
	if packetLoss > RateAdjustPacketLossThreshold {
		next *= RateAdjustDownFactor
	}
	if utilization < RateAdjustUtilizationThreshold {
		next *= RateAdjustUpFactor
	}
	if next < MinBandwidthBytesPerSec {
		next = MinBandwidthBytesPerSec
	}
	s.bandwidthBps = next
	s.mu.Unlock()

	s.limiter.SetLimit(rate.Limit(next))
}

// congestedLocked reports whether the scheduler is currently signaling
// congestion per the most recent UpdateMetrics call and current queue
// fill. Callers must hold s.mu.
func (s *Scheduler) congestedLocked() bool {
	if s.stats.Utilization > CongestionUtilizationThreshold {
		return true
	}
	if s.stats.PacketLoss > CongestionPacketLossThreshold {
		return true
	}
	if s.cfg.QueueCapacity > 0 {
		fill := float64(len(s.queue)) / float64(s.cfg.QueueCapacity)
		if fill > CongestionQueueFillThreshold {
			return true
		}
	}
	return false
}

// evictLowestPriorityIfOutrankedLocked drops the single lowest-priority
// queued item if newPriority strictly outranks it, admitting the new
// arrival in its place. Reports whether an eviction occurred. Callers
// must hold s.mu.
func (s *Scheduler) evictLowestPriorityIfOutrankedLocked(newPriority wire.PriorityClass) bool {
	if len(s.queue) == 0 {
		return false
	}
	worst := 0
	for i := 1; i < len(s.queue); i++ {
		if s.queue[i].Priority > s.queue[worst].Priority {
			worst = i
		}
	}
	if !newPriority.Higher(s.queue[worst].Priority) {
		return false
	}
	heap.Remove(&s.queue, worst)
	s.stats.Evicted++
	return true
}

// Start begins the dispatch loop. A second call is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	s.mu.Unlock()

	go s.dispatchLoop()
}

// Stop halts the dispatch loop, blocking until it exits. Items still in
// the queue are left untouched and will resume draining on the next Start;
// an item already popped and waiting for tokens is abandoned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	for {
		item, ok := s.popHighestPriority()
		if !ok {
			select {
			case <-s.ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		if err := s.limiter.WaitN(s.ctx, len(item.Data)); err != nil {
			// Context cancelled while waiting for tokens: the item is
			// lost, matching the "Stop abandons in-flight work" contract
			// documented on Stop.
			return
		}

		if err := s.sender.Send(item.Peer, item.Data); err != nil {
			s.logger.WithError(err).WithField("peer", item.Peer.String()).Debug("scheduled send failed")
			s.mu.Lock()
			s.stats.SendFailed++
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		s.stats.Sent++
		s.mu.Unlock()
		s.RecordSend(len(item.Data))
	}
}

func (s *Scheduler) popHighestPriority() (*Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&s.queue).(*Item), true
}
