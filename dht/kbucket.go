package dht

import (
	"sync"
	"time"

	"github.com/meshnet/meshcore/crypto"
)

// Contact is a lightweight K-bucket entry: just enough to order contacts
// by recency and hand a NodeID back to the caller. Full Peer state lives
// in routing.Table; dht only needs the DHT-specific ordering.
type Contact struct {
	ID       crypto.NodeID
	LastSeen time.Time
}

// KBucket holds up to Capacity contacts in one XOR-distance band. Front
// of the slice is least-recently-seen, back is most-recently-seen, per
// spec's K-bucket discipline.
type KBucket struct {
	mu       sync.Mutex
	contacts []Contact
	capacity int
}

// NewKBucket creates an empty bucket with the given capacity (K=20 in
// the default configuration).
func NewKBucket(capacity int) *KBucket {
	return &KBucket{contacts: make([]Contact, 0, capacity), capacity: capacity}
}

// LivenessChecker pings the least-recently-seen contact of a full bucket
// to decide whether it may be evicted in favor of a new contact. Only a
// contact that fails this check may be replaced (a pinged-alive oldest
// contact is protected, per spec's K-bucket discipline).
type LivenessChecker interface {
	IsAlive(id crypto.NodeID) bool
}

// Add records contact with the given peer, following Kademlia's K-bucket
// discipline:
//   - already present: move to most-recently-seen position
//   - bucket has space: append
//   - bucket full: evict the least-recently-seen contact only if it
//     fails a liveness ping via checker; otherwise discard the new
//     contact
//
// Returns true if the bucket's contents changed.
func (kb *KBucket) Add(id crypto.NodeID, seenAt time.Time, checker LivenessChecker) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, c := range kb.contacts {
		if c.ID == id {
			kb.contacts = append(kb.contacts[:i], kb.contacts[i+1:]...)
			kb.contacts = append(kb.contacts, Contact{ID: id, LastSeen: seenAt})
			return true
		}
	}

	if len(kb.contacts) < kb.capacity {
		kb.contacts = append(kb.contacts, Contact{ID: id, LastSeen: seenAt})
		return true
	}

	oldest := kb.contacts[0]
	if checker != nil && !checker.IsAlive(oldest.ID) {
		kb.contacts = append(kb.contacts[1:], Contact{ID: id, LastSeen: seenAt})
		return true
	}

	return false
}

// Remove deletes id from the bucket if present.
func (kb *KBucket) Remove(id crypto.NodeID) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	for i, c := range kb.contacts {
		if c.ID == id {
			kb.contacts = append(kb.contacts[:i], kb.contacts[i+1:]...)
			return
		}
	}
}

// Contacts returns a copy of the bucket's current contacts, oldest first.
func (kb *KBucket) Contacts() []Contact {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	out := make([]Contact, len(kb.contacts))
	copy(out, kb.contacts)
	return out
}

// Len reports the current contact count.
func (kb *KBucket) Len() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.contacts)
}
