package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// valueEntry is one Put()'d blob with its absolute expiry.
type valueEntry struct {
	value     []byte
	expiresAt time.Time
	hasExpiry bool
}

// MemoryValueStore is an in-memory, capacity-bounded implementation of
// dht.ValueStore, satisfying STORE/FIND_VALUE persistence. Grounded on the
// teacher's MessageStorage: a mutex-guarded map with capacity enforcement
// and lazy expiry pruning, generalized from a fixed AsyncMessage shape to
// an opaque ContentHash-keyed blob.
type MemoryValueStore struct {
	mu       sync.RWMutex
	values   map[crypto.ContentHash]valueEntry
	order    []crypto.ContentHash // insertion order, for capacity eviction
	capacity int
	now      func() time.Time
	logger   *logrus.Entry
}

// DefaultValueStoreCapacity bounds the number of distinct keys retained.
const DefaultValueStoreCapacity = 100000

// NewMemoryValueStore creates a store bounded to capacity entries (0 or
// negative uses DefaultValueStoreCapacity).
func NewMemoryValueStore(capacity int) *MemoryValueStore {
	if capacity <= 0 {
		capacity = DefaultValueStoreCapacity
	}
	return &MemoryValueStore{
		values:   make(map[crypto.ContentHash]valueEntry),
		capacity: capacity,
		now:      time.Now,
		logger:   logrus.WithFields(logrus.Fields{"package": "storage", "component": "MemoryValueStore"}),
	}
}

// Put implements dht.ValueStore. ttl of zero means the value never expires
// on its own (subject to capacity eviction).
func (s *MemoryValueStore) Put(ctx context.Context, key crypto.ContentHash, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)

	entry := valueEntry{value: cp}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
		entry.hasExpiry = true
	}

	if _, exists := s.values[key]; !exists {
		s.order = append(s.order, key)
	}
	s.values[key] = entry

	s.evictOverflowLocked()
	return nil
}

// Get implements dht.ValueStore.
func (s *MemoryValueStore) Get(ctx context.Context, key crypto.ContentHash) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	if entry.hasExpiry && s.now().After(entry.expiresAt) {
		delete(s.values, key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Delete removes key unconditionally.
func (s *MemoryValueStore) Delete(key crypto.ContentHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Len reports the number of entries currently tracked, expired or not.
func (s *MemoryValueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// evictOverflowLocked drops the oldest-inserted entries once over
// capacity. Caller must hold s.mu.
func (s *MemoryValueStore) evictOverflowLocked() {
	for len(s.values) > s.capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.values[oldest]; ok {
			delete(s.values, oldest)
			s.logger.WithField("key", oldest.String()).Debug("evicted value over capacity")
		}
	}
}
