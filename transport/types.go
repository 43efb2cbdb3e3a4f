// Package transport implements the network transport contract consumed by
// the mesh core, plus concrete adapters for the Peer transport tags defined
// in the routing data model.
package transport

import (
	"context"
	"errors"

	"github.com/meshnet/meshcore/crypto"
)

// Kind enumerates the transport tags a Peer may advertise, matching the
// spec's Peer.transport enumeration (webrtc | bluetooth | local | other).
type Kind uint8

const (
	KindLocal Kind = iota
	KindWebRTC
	KindBluetooth
	KindOther
)

// String returns a human-readable tag, matching the enumeration's wire name.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindWebRTC:
		return "webrtc"
	case KindBluetooth:
		return "bluetooth"
	default:
		return "other"
	}
}

// ErrPeerNotFound is returned by Send/Disconnect when no connection is
// currently held for the given peer.
var ErrPeerNotFound = errors.New("transport: peer not found")

// ErrConnectionClosed is returned by Send when the underlying connection has
// been torn down.
var ErrConnectionClosed = errors.New("transport: connection closed")

// Callbacks is the set of event handlers a Transport invokes. Handlers run
// concurrently with respect to each other across distinct peers, but a
// single transport delivers bytes from one peer in arrival order.
type Callbacks struct {
	// OnMessage is invoked for every inbound byte payload from a connected
	// peer. The bytes are the caller's to keep; the transport will not
	// reuse the buffer.
	OnMessage func(peer crypto.NodeID, data []byte)

	// OnPeerConnected is invoked once a connection to peer is established,
	// whether initiated locally (Connect) or accepted inbound.
	OnPeerConnected func(peer crypto.NodeID)

	// OnPeerDisconnected is invoked when a connection to peer is torn down,
	// locally or remotely.
	OnPeerDisconnected func(peer crypto.NodeID)
}

// Transport is the point-to-point, bidirectional byte-channel contract the
// mesh core consumes. Implementations are connectionless or
// connection-oriented; callers never distinguish the two beyond the
// best-effort, ordered-per-connection delivery guarantee.
type Transport interface {
	// Start begins accepting inbound connections and wires callbacks for
	// message delivery and peer lifecycle events. Start must be called
	// before Connect or Send.
	Start(callbacks Callbacks) error

	// Stop tears down all connections and releases transport resources.
	// The transport must not be used after Stop returns.
	Stop() error

	// Connect establishes an outbound connection to peer. hint is an
	// implementation-defined rendezvous detail (signaling address, device
	// id, ...); implementations that do not need one may ignore it.
	Connect(ctx context.Context, peer crypto.NodeID, hint string) error

	// Disconnect tears down any connection held for peer. It is a no-op if
	// no connection exists.
	Disconnect(peer crypto.NodeID) error

	// Send transmits data to peer over an existing connection. Delivery is
	// at-most-once per call; the transport may retry internally but never
	// duplicates a delivered payload.
	Send(peer crypto.NodeID, data []byte) error

	// Kind identifies which Peer transport tag this implementation serves.
	Kind() Kind
}
