package relay

import (
	"sync"

	"github.com/meshnet/meshcore/crypto"
)

// loopTracker maintains, per content hash, the set of upstream peers a
// message has already traversed — distinct from the routing package's
// SeenCache (which only answers "have I seen this hash at all"). A
// message can legitimately arrive from multiple peers during flood
// propagation; loopTracker rejects it only if it arrives again from a
// peer already on its path, catching routing loops specifically.
//
// Capped at maxEntries content hashes; once full, the oldest 10% (by
// insertion order) are evicted, per spec §4.3 step 3.
type loopTracker struct {
	mu         sync.Mutex
	paths      map[crypto.ContentHash]map[crypto.NodeID]bool
	order      []crypto.ContentHash
	maxEntries int
}

func newLoopTracker(maxEntries int) *loopTracker {
	if maxEntries <= 0 {
		maxEntries = DefaultLoopTrackerCap
	}
	return &loopTracker{
		paths:      make(map[crypto.ContentHash]map[crypto.NodeID]bool),
		maxEntries: maxEntries,
	}
}

// observe records fromPeer on hash's path, returning true if fromPeer was
// already present (a loop) before this call.
func (lt *loopTracker) observe(hash crypto.ContentHash, fromPeer crypto.NodeID) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	path, exists := lt.paths[hash]
	if !exists {
		path = make(map[crypto.NodeID]bool)
		lt.paths[hash] = path
		lt.order = append(lt.order, hash)
		lt.evictOverflowLocked()
	}

	if path[fromPeer] {
		return true
	}
	path[fromPeer] = true
	return false
}

func (lt *loopTracker) evictOverflowLocked() {
	if len(lt.paths) <= lt.maxEntries {
		return
	}
	evictCount := lt.maxEntries / 10
	if evictCount < 1 {
		evictCount = 1
	}
	for i := 0; i < evictCount && len(lt.order) > 0; i++ {
		oldest := lt.order[0]
		lt.order = lt.order[1:]
		delete(lt.paths, oldest)
	}
}
