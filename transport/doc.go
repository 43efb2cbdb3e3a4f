// Package transport defines the point-to-point transport contract the mesh
// core consumes, plus a small set of concrete adapters exercising it: an
// in-process local transport for testing and composition, a thin WebRTC
// data-channel adapter, a Noise protocol session wrapper providing
// encryption over any inner transport, and a bluetooth stub documenting
// the one gap the retrieved example pack has no library for.
//
// # Architecture
//
// The core abstraction is the Transport interface. Unlike a typical
// net.Addr-keyed transport, implementations here address peers by NodeID:
// a mesh peer may be reachable over a WebRTC data channel or a Bluetooth
// RFCOMM socket that has no meaningful net.Addr, so routing and relay code
// never touches a concrete address type.
//
//	type Transport interface {
//	    Start(callbacks Callbacks) error
//	    Stop() error
//	    Connect(ctx context.Context, peer crypto.NodeID, hint string) error
//	    Disconnect(peer crypto.NodeID) error
//	    Send(peer crypto.NodeID, data []byte) error
//	    Kind() Kind
//	}
//
// Delivery is best-effort, ordered per connection, point-to-point; a
// transport may internally retry but Send itself is at-most-once per call.
//
// # Manager
//
// Manager holds the set of registered transports and dispatches Send calls
// to whichever transport currently owns a connection to the target peer,
// mirroring the teacher's multi-transport registration pattern generalized
// from net.Addr dispatch to NodeID dispatch.
//
// # Noise Sessions
//
// NoiseSession wraps any inner Transport with a Noise_XX handshake
// (github.com/flynn/noise), providing forward secrecy independent of the
// underlying channel's own security properties.
package transport
