// Package noise provides a Noise Protocol Framework XX-pattern handshake
// for establishing encrypted, mutually authenticated sessions between mesh
// peers using the formally verified flynn/noise library with
// ChaCha20-Poly1305 encryption, SHA256 hashing, and Curve25519 key exchange.
//
// # Why XX
//
// Mesh peers learn of each other through NodeIDs returned by DHT lookups —
// a NodeID is a hash of a peer's static public key, not the key itself. So
// neither side can assume prior knowledge of the other's static key before
// a connection is made, which rules out IK-style patterns and leaves XX:
//
//	Initiator                              Responder
//	─────────                              ─────────
//	-> e           (ephemeral only)
//	                                       <- e, ee, s, es
//	-> s, se       (static exchange)
//	[session established]
//
// Both parties authenticate via the static key exchanged mid-handshake and
// gain forward secrecy from the ephemeral keys, at the cost of a third
// message round trip compared to a pattern with prior key knowledge.
//
// # Usage
//
//	xx, err := noise.NewXXHandshake(myPrivKey, noise.Initiator)
//	msg1, _, err := xx.WriteMessage(nil)
//	// send msg1, receive response1
//	_, _, err = xx.ReadMessage(response1)
//	msg2, complete, err := xx.WriteMessage(nil)
//	// send msg2; complete is true once the final message is produced
//	send, recv, err := xx.CipherStates()
//
// The responder side is symmetric: ReadMessage first, then WriteMessage.
//
// # Key verification
//
// After the handshake completes, RemoteStaticKey returns the peer's static
// public key. Callers are expected to check this against the NodeID they
// dialed (crypto.NodeIDFromPublicKey) before treating the session as
// authenticated — the handshake itself only proves the peer holds the
// private key matching whatever static key it presented.
//
// # Cipher suite
//
// DH: Curve25519. AEAD: ChaCha20-Poly1305. Hash: SHA256. The resulting
// CipherStates are not safe for concurrent use; callers serialize their own
// encrypt/decrypt calls per session, matching how transport.NoiseSession
// uses them.
package noise
