package dht

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// ValueStore is the local persistence backing for STORE/FIND_VALUE. The
// storage package's MemoryValueStore satisfies this with its own capacity
// limit; dht only needs Put/Get.
type ValueStore interface {
	Put(ctx context.Context, key crypto.ContentHash, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key crypto.ContentHash) ([]byte, bool, error)
}

// Store performs FIND_NODE(key) to locate the K closest contacts, then
// asks each to STORE the value, and also caches it locally — "origin
// also caches locally" per spec §4.2.
func (t *Table) Store(ctx context.Context, sender Sender, feedback ReliabilityFeedback, local ValueStore, key crypto.ContentHash, value []byte, ttl time.Duration, cfg LookupConfig) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Table.Store",
		"package":  "dht",
	})

	if local != nil {
		if err := local.Put(ctx, key, value, ttl); err != nil {
			logger.WithError(err).Warn("local STORE cache write failed")
		}
	}

	target := crypto.NodeID(key)
	closest := t.FindNode(ctx, sender, feedback, target, cfg)

	var lastErr error
	stored := 0
	for _, peer := range closest {
		storeCtx, cancel := context.WithTimeout(ctx, cfg.withDefaults().QueryTimeout)
		err := sender.Store(storeCtx, peer, key, value, ttl)
		cancel()
		if err != nil {
			lastErr = err
			logger.WithError(err).WithField("peer", peer.String()).Debug("STORE to replica failed")
			continue
		}
		stored++
	}

	if stored == 0 && len(closest) > 0 {
		return lastErr
	}
	return nil
}

// FindValueOrLocal checks the local cache before falling back to an
// iterative FIND_VALUE lookup, so a node never performs needless network
// round trips for a key it already holds.
func (t *Table) FindValueOrLocal(ctx context.Context, sender Sender, feedback ReliabilityFeedback, local ValueStore, key crypto.ContentHash, cfg LookupConfig) ([]byte, bool) {
	if local != nil {
		if value, ok, err := local.Get(ctx, key); err == nil && ok {
			return value, true
		}
	}
	value, found, _ := t.FindValue(ctx, sender, feedback, key, cfg)
	return value, found
}
