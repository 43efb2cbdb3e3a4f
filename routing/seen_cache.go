package routing

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/meshnet/meshcore/crypto"
)

const (
	// DefaultSeenCacheSize is MAX_CACHE_SIZE from the relay spec.
	DefaultSeenCacheSize = 10000
	// DefaultSeenCacheTTL is CACHE_TTL from the relay spec.
	DefaultSeenCacheTTL = 10 * time.Minute
)

// SeenCache is the deduplication oracle: a bounded, TTL'd set of content
// hashes, gated by a bloom filter for a sub-linear negative pre-check
// before the exact LRU lookup.
//
// The bloom filter only ever grows; bloom filters cannot un-set bits on
// expiry, so it is purely a fast-reject optimization for has_seen's
// common case (hash never seen) and never the source of truth for a
// positive answer — the LRU, which does respect TTL and capacity, is.
type SeenCache struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	cache  *expirable.LRU[crypto.ContentHash, time.Time]
}

// NewSeenCache creates a SeenCache capped at capacity entries, each
// expiring ttl after being marked seen (and refreshed on touch).
func NewSeenCache(capacity int, ttl time.Duration) *SeenCache {
	if capacity <= 0 {
		capacity = DefaultSeenCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultSeenCacheTTL
	}
	return &SeenCache{
		filter: bloom.NewWithEstimates(uint(capacity*4), 0.01),
		cache:  expirable.NewLRU[crypto.ContentHash, time.Time](capacity, nil, ttl),
	}
}

// HasSeen reports whether hash was marked seen and has not since expired.
func (s *SeenCache) HasSeen(hash crypto.ContentHash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filter.Test(hash[:]) {
		return false
	}
	_, ok := s.cache.Get(hash)
	return ok
}

// MarkSeen records hash as seen as of now, refreshing its TTL if already
// present. Capacity/eviction is enforced by the underlying expirable LRU.
func (s *SeenCache) MarkSeen(hash crypto.ContentHash, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter.Add(hash[:])
	s.cache.Add(hash, now)
}

// Len returns the current number of live (unexpired) entries.
func (s *SeenCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
