package routing

import "errors"

var (
	// ErrInvalidPeer is returned when add_peer is given a zero NodeID, the
	// one malformed-id case rejected at the boundary (add_route reports the
	// same case by returning false); every other operation here is
	// infallible per spec's failure semantics.
	ErrInvalidPeer = errors.New("routing: invalid peer id")
	// ErrPeerNotFound names the unknown-NodeID case; Table's own lookups
	// report it with a false ok result rather than returning this error.
	ErrPeerNotFound = errors.New("routing: peer not found")
)
