// Package storage provides the persistence contracts the mesh core needs
// and in-memory reference implementations of each: a generic content-keyed
// value store (satisfying the DHT's STORE/FIND_VALUE persistence need) and
// an outbox store for the relay's offline store-and-forward queue.
//
// Both are grounded on the teacher's async/storage.go MessageStorage: a
// mutex-guarded map with capacity enforcement and expiry pruning,
// generalized from Tox's fixed AsyncMessage shape to the mesh's
// ContentHash-keyed value store and destination-addressed StoredMessage
// outbox.
package storage
