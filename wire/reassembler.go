package wire

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// ErrFragmentIndexOutOfRange is returned when a Fragment's Index is not
// less than its own Total.
var ErrFragmentIndexOutOfRange = errors.New("wire: fragment index out of range")

// ErrDuplicateFragment is returned when a Fragment repeats an index
// already held for its message.
var ErrDuplicateFragment = errors.New("wire: duplicate fragment")

type inFlightMessage struct {
	total     uint16
	parts     map[uint16][]byte
	size      int
	firstSeen time.Time
}

// Reassembler collects Fragment records keyed by message id and emits the
// concatenated original bytes once every distinct index 0..total-1 has
// arrived. It enforces a global byte budget and a per-message age limit;
// exceeding either evicts the oldest in-progress message entirely.
type Reassembler struct {
	mu           sync.Mutex
	messages     map[crypto.ContentHash]*inFlightMessage
	order        []crypto.ContentHash // insertion order, oldest first
	maxTotalSize int
	maxAge       time.Duration
	now          func() time.Time
	currentSize  int
}

// NewReassembler creates a Reassembler bounded by maxTotalBytes across all
// in-progress messages and maxAge per message.
func NewReassembler(maxTotalBytes int, maxAge time.Duration) *Reassembler {
	return &Reassembler{
		messages:     make(map[crypto.ContentHash]*inFlightMessage),
		maxTotalSize: maxTotalBytes,
		maxAge:       maxAge,
		now:          time.Now,
	}
}

// Add ingests one Fragment. It returns (bytes, true, nil) once the final
// fragment of its message arrives, (nil, false, nil) while more fragments
// are still expected, or an error for a malformed/duplicate fragment.
func (r *Reassembler) Add(f Fragment) ([]byte, bool, error) {
	if f.Total == 0 || f.Index >= f.Total {
		return nil, false, ErrFragmentIndexOutOfRange
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	msg, exists := r.messages[f.MessageID]
	if !exists {
		msg = &inFlightMessage{
			total:     f.Total,
			parts:     make(map[uint16][]byte),
			firstSeen: r.now(),
		}
		r.messages[f.MessageID] = msg
		r.order = append(r.order, f.MessageID)
	}

	if _, dup := msg.parts[f.Index]; dup {
		return nil, false, ErrDuplicateFragment
	}

	msg.parts[f.Index] = f.Bytes
	msg.size += len(f.Bytes)
	r.currentSize += len(f.Bytes)

	r.evictOverflowLocked()

	if len(msg.parts) < int(msg.total) {
		return nil, false, nil
	}

	// Re-fetch: eviction above may have dropped this very message if the
	// overflow pressure was severe enough, in which case treat it as
	// dropped rather than complete.
	if _, stillPresent := r.messages[f.MessageID]; !stillPresent {
		return nil, false, nil
	}

	out := make([]byte, 0, msg.size)
	for i := uint16(0); i < msg.total; i++ {
		out = append(out, msg.parts[i]...)
	}

	r.removeLocked(f.MessageID)
	return out, true, nil
}

func (r *Reassembler) evictExpiredLocked() {
	if r.maxAge <= 0 {
		return
	}
	cutoff := r.now().Add(-r.maxAge)
	for _, id := range r.order {
		msg, ok := r.messages[id]
		if !ok {
			continue
		}
		if msg.firstSeen.Before(cutoff) {
			logrus.WithFields(logrus.Fields{
				"function":   "Reassembler.evictExpiredLocked",
				"package":    "wire",
				"message_id": id.String(),
			}).Debug("evicting expired reassembly buffer")
			r.removeLocked(id)
		}
	}
}

func (r *Reassembler) evictOverflowLocked() {
	if r.maxTotalSize <= 0 {
		return
	}
	for r.currentSize > r.maxTotalSize && len(r.order) > 0 {
		oldest := r.order[0]
		logrus.WithFields(logrus.Fields{
			"function":   "Reassembler.evictOverflowLocked",
			"package":    "wire",
			"message_id": oldest.String(),
		}).Warn("reassembly buffer overflow, evicting oldest in-progress message")
		r.removeLocked(oldest)
	}
}

// removeLocked deletes message id and compacts r.order. Must hold r.mu.
func (r *Reassembler) removeLocked(id crypto.ContentHash) {
	msg, ok := r.messages[id]
	if !ok {
		return
	}
	r.currentSize -= msg.size
	delete(r.messages, id)
	for i, entryID := range r.order {
		if entryID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
