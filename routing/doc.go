// Package routing implements the authoritative peer registry and route
// table: known-peer bookkeeping, reputation and blacklist enforcement,
// the deduplication SeenCache, and ranked peer selection for adaptive
// forwarding.
//
// Table is the sole owner of Peer and Route records; other packages hold
// only crypto.NodeID handles and look peers up through it rather than
// retaining pointers of their own, since the mesh's peer graph is
// inherently cyclic and handles avoid reference cycles across packages.
package routing
