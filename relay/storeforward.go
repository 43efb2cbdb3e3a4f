package relay

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/storage"
	"github.com/meshnet/meshcore/wire"
)

// Store persists msg for offline delivery to dest, per spec §4.3's
// store-and-forward path: a message destined for a peer with no current
// route is held rather than dropped, retried on a backoff schedule until
// delivered or expired.
func (r *Relay) Store(msg *wire.Message, dest crypto.NodeID, priority uint8) error {
	now := r.cfg.TimeProvider.Now()
	stored := &storage.StoredMessage{
		ID:            msg.ContentHash(),
		Dest:          dest,
		Priority:      priority,
		Payload:       msg.Encode(),
		StoredAt:      now,
		LastAttempt:   time.Time{},
		RouteAttempts: make(map[crypto.NodeID]bool),
		ExpiresAt:     now.Add(r.cfg.StoreTimeout),
	}
	evicted, err := r.outbox.Put(stored)
	if err != nil {
		return err
	}
	if evicted != nil {
		r.recordOutcome(storeOutcomeEvicted)
	}
	return nil
}

type storeOutcome uint8

const (
	storeOutcomeDelivered storeOutcome = iota
	storeOutcomeExpired
	storeOutcomeFailed
	storeOutcomeEvicted
)

func (r *Relay) recordOutcome(o storeOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case storeOutcomeDelivered:
		r.stats.StoreDelivered++
	case storeOutcomeExpired:
		r.stats.StoreExpired++
	case storeOutcomeFailed:
		r.stats.StoreFailed++
	case storeOutcomeEvicted:
		r.stats.StoreEvicted++
	}
}

// StartRetryLoop begins the periodic store-and-forward retry scan. Safe to
// call at most once per Relay; a second call is a no-op.
func (r *Relay) StartRetryLoop() {
	r.mu.Lock()
	if r.retryLoopActive {
		r.mu.Unlock()
		return
	}
	r.retryLoopActive = true
	r.stopRetry = make(chan struct{})
	r.retryLoopDone = make(chan struct{})
	interval := r.cfg.RetryInterval
	r.mu.Unlock()

	go r.retryLoop(interval)
}

// StopRetryLoop stops the retry scan goroutine started by StartRetryLoop,
// blocking until it has exited.
func (r *Relay) StopRetryLoop() {
	r.mu.Lock()
	if !r.retryLoopActive {
		r.mu.Unlock()
		return
	}
	stop := r.stopRetry
	done := r.retryLoopDone
	r.retryLoopActive = false
	r.mu.Unlock()

	close(stop)
	<-done
}

func (r *Relay) retryLoop(interval time.Duration) {
	defer close(r.retryLoopDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopRetry:
			return
		case <-ticker.C:
			r.retryScan()
		}
	}
}

// retryScan runs one pass over every stored message, attempting delivery
// where backoff has elapsed and evicting expired or exhausted entries.
func (r *Relay) retryScan() {
	now := r.cfg.TimeProvider.Now()
	for _, stored := range r.outbox.All() {
		if now.After(stored.ExpiresAt) {
			r.outbox.Delete(stored.ID)
			r.recordOutcome(storeOutcomeExpired)
			continue
		}

		backoff := r.cfg.RetryBackoff * time.Duration(1<<uint(stored.Attempts))
		if !stored.LastAttempt.IsZero() && now.Sub(stored.LastAttempt) < backoff {
			continue
		}

		r.attemptDelivery(stored, now)
	}
}

// attemptDelivery tries the direct route first, falling back to any
// connected peer not yet attempted for this message.
func (r *Relay) attemptDelivery(stored *storage.StoredMessage, now time.Time) {
	peer, ok := r.pickDeliveryPeer(stored)
	if !ok {
		r.finalizeAttempt(stored, now, false)
		return
	}

	err := r.sender.Send(peer, stored.Payload)
	stored.RouteAttempts[peer] = true

	if err == nil {
		r.outbox.Delete(stored.ID)
		r.recordOutcome(storeOutcomeDelivered)
		r.routes.UpdateRouteMetrics(peer, 0, true, nil)
		return
	}

	r.routes.UpdateRouteMetrics(peer, 0, false, nil)
	r.finalizeAttempt(stored, now, true)
}

// pickDeliveryPeer prefers the current direct route to the destination —
// retrying the known path is the point of a retry — and only falls back to
// relaying through some other connected peer when no direct route exists,
// preferring a peer this message hasn't already traversed.
func (r *Relay) pickDeliveryPeer(stored *storage.StoredMessage) (crypto.NodeID, bool) {
	if nextHop, ok := r.routes.GetNextHop(stored.Dest); ok {
		return nextHop, true
	}

	var fallback crypto.NodeID
	haveFallback := false
	for _, p := range r.routes.Peers() {
		if p.State != routing.StateConnected {
			continue
		}
		if !stored.RouteAttempts[p.ID] {
			return p.ID, true
		}
		if !haveFallback {
			fallback, haveFallback = p.ID, true
		}
	}
	return fallback, haveFallback
}

// finalizeAttempt records a failed or skipped attempt, dropping the entry
// once MaxRetries is exhausted.
func (r *Relay) finalizeAttempt(stored *storage.StoredMessage, now time.Time, countedAttempt bool) {
	if countedAttempt {
		stored.Attempts++
		stored.LastAttempt = now
	}
	if stored.Attempts >= r.cfg.MaxRetries {
		r.outbox.Delete(stored.ID)
		r.recordOutcome(storeOutcomeFailed)
		return
	}
	r.outbox.Put(stored)
}
