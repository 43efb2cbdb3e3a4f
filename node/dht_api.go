package node

import (
	"context"
	"time"

	"github.com/meshnet/meshcore/crypto"
)

// DHTStore replicates value under key to the K closest known nodes and
// caches it locally, so a subsequent FindValue from any participant in
// that neighborhood can serve it even if the originator goes offline.
func (n *Node) DHTStore(ctx context.Context, key crypto.ContentHash, value []byte, ttl time.Duration) error {
	return n.dhtTable.Store(ctx, n, n.routes, n.values, key, value, ttl, n.cfg.LookupConfig)
}

// FindValue returns the value stored at key, checking the local cache
// before falling back to an iterative network lookup.
func (n *Node) FindValue(ctx context.Context, key crypto.ContentHash) ([]byte, bool) {
	return n.dhtTable.FindValueOrLocal(ctx, n, n.routes, n.values, key, n.cfg.LookupConfig)
}

// FindNode performs an iterative lookup for the nodes closest to target.
func (n *Node) FindNode(ctx context.Context, target crypto.NodeID) []crypto.NodeID {
	return n.dhtTable.FindNode(ctx, n, n.routes, target, n.cfg.LookupConfig)
}
