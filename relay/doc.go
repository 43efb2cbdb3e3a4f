// Package relay implements the mesh's ingress/egress message engine:
// decode, dedup, loop detection, TTL enforcement, flood-rate limiting,
// signature verification, classification, local delivery, Smart Flood
// forwarding, offline store-and-forward, and fragmentation/reassembly.
//
// New package; grounded on the teacher's async/storage.go for the
// store-and-forward persistence/retry shape, messaging/messaging.go for
// delivery-state callback routing generalized from per-friend to
// per-destination, and transport/relay.go for the general notion of a
// relay hop forwarding on behalf of another peer. Uses
// github.com/sony/gobreaker for per-peer forwarding circuit breaking,
// golang.org/x/time/rate for flood-rate limiting, and
// github.com/deckarep/golang-set/v2 for forwarding-candidate set
// arithmetic.
package relay
