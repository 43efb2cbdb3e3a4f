package storage

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// StoredMessage is a message held for offline store-and-forward delivery:
// the relay's persisted retry-queue entry, generalized from the teacher's
// AsyncMessage (recipient/sender/ciphertext/timestamp) to carry the
// routing bookkeeping a mesh relay needs (attempt count, per-attempt
// route exclusions, priority for retry ordering).
type StoredMessage struct {
	ID          crypto.ContentHash
	Dest        crypto.NodeID
	Priority    uint8
	Payload     []byte
	StoredAt    time.Time
	LastAttempt time.Time
	Attempts    int
	// RouteAttempts tracks which peers this entry has already been
	// relayed through, so a retry fans out to peers not yet tried.
	RouteAttempts map[crypto.NodeID]bool
	ExpiresAt     time.Time
}

// DefaultStoreTimeout is how long an undelivered message is retained
// before being dropped as expired.
const DefaultStoreTimeout = 24 * time.Hour

// DefaultOutboxCapacity bounds the number of in-flight stored messages.
const DefaultOutboxCapacity = 1000

// Outbox is the store-and-forward persistence contract: capacity-bounded,
// keyed by message ID, evicting the oldest (by LastAttempt) entry when
// full.
type Outbox interface {
	Put(msg *StoredMessage) (evicted *StoredMessage, err error)
	Get(id crypto.ContentHash) (*StoredMessage, bool)
	Delete(id crypto.ContentHash)
	All() []*StoredMessage
	Len() int
}

// MemoryOutbox is an in-memory Outbox. Grounded on the teacher's
// MessageStorage map-plus-mutex shape.
type MemoryOutbox struct {
	mu       sync.Mutex
	messages map[crypto.ContentHash]*StoredMessage
	capacity int
	logger   *logrus.Entry
}

// NewMemoryOutbox creates an outbox bounded to capacity entries (0 or
// negative uses DefaultOutboxCapacity).
func NewMemoryOutbox(capacity int) *MemoryOutbox {
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	return &MemoryOutbox{
		messages: make(map[crypto.ContentHash]*StoredMessage),
		capacity: capacity,
		logger:   logrus.WithFields(logrus.Fields{"package": "storage", "component": "MemoryOutbox"}),
	}
}

// Put inserts or replaces msg. If at capacity, the entry with the oldest
// LastAttempt is evicted and returned so the caller can record the
// eviction as a delivery failure.
func (o *MemoryOutbox) Put(msg *StoredMessage) (*StoredMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.messages[msg.ID]; !exists && len(o.messages) >= o.capacity {
		oldestID, oldest := o.oldestLocked()
		if oldest != nil {
			delete(o.messages, oldestID)
			o.logger.WithField("message_id", oldestID.String()).Warn("outbox at capacity, evicting oldest entry")
			o.messages[msg.ID] = msg
			return oldest, nil
		}
	}

	o.messages[msg.ID] = msg
	return nil, nil
}

func (o *MemoryOutbox) oldestLocked() (crypto.ContentHash, *StoredMessage) {
	var oldestID crypto.ContentHash
	var oldest *StoredMessage
	for id, msg := range o.messages {
		if oldest == nil || msg.LastAttempt.Before(oldest.LastAttempt) {
			oldestID = id
			oldest = msg
		}
	}
	return oldestID, oldest
}

// Get returns the stored message for id, if present.
func (o *MemoryOutbox) Get(id crypto.ContentHash) (*StoredMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg, ok := o.messages[id]
	return msg, ok
}

// Delete removes id unconditionally.
func (o *MemoryOutbox) Delete(id crypto.ContentHash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.messages, id)
}

// All returns a snapshot of every stored message, in no particular order.
func (o *MemoryOutbox) All() []*StoredMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*StoredMessage, 0, len(o.messages))
	for _, msg := range o.messages {
		out = append(out, msg)
	}
	return out
}

// Len reports the number of stored messages.
func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}
