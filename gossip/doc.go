// Package gossip implements epidemic dissemination for state that must
// eventually reach every reachable peer without relying on a single
// flood pass: periodic push/pull rounds exchange content digests with a
// random fanout of connected peers, while a starvation guard escalates
// the effective priority of messages a busy link keeps deprioritizing.
//
// New package; the periodic ticker/stop-channel/WaitGroup shape is
// grounded on the teacher's dht/maintenance.go Maintainer (PingRoutine /
// LookupRoutine / PruneRoutine run as independent goroutines gated by a
// shared context.CancelFunc). Digest/DigestReply codecs live in the wire
// package alongside the rest of the message format.
package gossip
