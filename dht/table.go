package dht

import (
	"sort"
	"sync"
	"time"

	"github.com/meshnet/meshcore/crypto"
)

const (
	// K is the bucket size and replication factor.
	K = 20
	// Alpha is query concurrency for iterative lookups.
	Alpha = 3
	// BucketCount matches the bit-length of a NodeID (32-byte hash ⇒ 256).
	BucketCount = crypto.NodeIDSize * 8
	// DefaultQueryTimeout bounds a single FIND_NODE/FIND_VALUE round trip.
	DefaultQueryTimeout = 5 * time.Second
	// DefaultMaxRounds bounds iterative lookup rounds.
	DefaultMaxRounds = 10
)

// Table is the K-bucket overlay for one local identity.
type Table struct {
	mu      sync.RWMutex
	self    crypto.NodeID
	buckets [BucketCount]*KBucket
	checker LivenessChecker
	now     func() time.Time
}

// NewTable creates a Table for the local identity self. checker may be
// nil, in which case full buckets never evict (new contacts are always
// discarded once a bucket is full).
func NewTable(self crypto.NodeID, checker LivenessChecker) *Table {
	t := &Table{self: self, checker: checker, now: time.Now}
	for i := range t.buckets {
		t.buckets[i] = NewKBucket(K)
	}
	return t
}

// bucketIndex returns which of the BucketCount bands id falls into
// relative to self, using the bigint-exact highest-set-bit of the XOR
// distance rather than a floating-point log2 (which loses precision for
// 256-bit distances).
func (t *Table) bucketIndex(id crypto.NodeID) int {
	distance := t.self.Xor(id)
	bitLen := distance.BitLen()
	if bitLen == 0 {
		return 0
	}
	idx := bitLen - 1
	if idx >= BucketCount {
		idx = BucketCount - 1
	}
	return idx
}

// AddContact implements routing.KBucketAdder: routing.Table.AddPeer calls
// this when DHT mode is active so every connected peer also becomes a
// K-bucket contact.
func (t *Table) AddContact(id crypto.NodeID, lastSeen time.Time) error {
	if id == t.self || id.IsZero() {
		return nil
	}
	idx := t.bucketIndex(id)
	t.buckets[idx].Add(id, lastSeen, t.checker)
	return nil
}

// RemoveContact drops id from whichever bucket holds it.
func (t *Table) RemoveContact(id crypto.NodeID) {
	if id == t.self {
		return
	}
	t.buckets[t.bucketIndex(id)].Remove(id)
}

// FindClosestContacts returns up to k contacts ordered by ascending XOR
// distance to target, scanning outward from target's own bucket index
// for O(log N) typical-case cost rather than a full table scan.
func (t *Table) FindClosestContacts(target crypto.NodeID, k int) []crypto.NodeID {
	centerIdx := t.bucketIndex(target)

	type scored struct {
		id       crypto.NodeID
		distance crypto.NodeID
	}
	var candidates []scored

	visited := make(map[int]bool, BucketCount)
	for radius := 0; radius < BucketCount && len(candidates) < k*4; radius++ {
		for _, idx := range []int{centerIdx - radius, centerIdx + radius} {
			if idx < 0 || idx >= BucketCount || visited[idx] {
				continue
			}
			visited[idx] = true
			for _, c := range t.buckets[idx].Contacts() {
				candidates = append(candidates, scored{id: c.ID, distance: c.ID.Xor(target)})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance.Less(candidates[j].distance)
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]crypto.NodeID, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].id
	}
	return out
}

// Size returns the total number of contacts across all buckets.
func (t *Table) Size() int {
	total := 0
	for _, b := range t.buckets {
		total += b.Len()
	}
	return total
}
