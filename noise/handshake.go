// Package noise provides a Noise Protocol Framework handshake for securing
// mesh peer sessions established over an otherwise unauthenticated
// transport (e.g. a freshly opened WebRTC data channel).
//
// It implements the XX pattern using the formally verified flynn/noise
// library with ChaCha20-Poly1305 encryption, SHA256 hashing, and Curve25519
// key exchange. XX is used rather than IK because mesh peers are discovered
// by NodeID (a hash of their public key) via the DHT, not by an
// out-of-band exchange of the raw public key itself — neither side can
// assume prior knowledge of the other's static key before the handshake.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/meshnet/meshcore/crypto"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete.
	ErrHandshakeComplete = errors.New("handshake already complete")
)

// HandshakeRole defines whether we're initiating or responding to a handshake.
type HandshakeRole uint8

const (
	// Initiator starts the handshake.
	Initiator HandshakeRole = iota
	// Responder responds to handshake initiation.
	Responder
)

// XXHandshake implements the Noise XX pattern: mutual authentication and
// forward secrecy without either party knowing the other's static key in
// advance. Three message round trips.
//
//	Initiator                              Responder
//	-> e           (ephemeral only)
//	                                       <- e, ee, s, es
//	-> s, se       (static exchange)
//	[session established]
type XXHandshake struct {
	role        HandshakeRole
	state       *noise.HandshakeState
	sendCipher  *noise.CipherState
	recvCipher  *noise.CipherState
	complete    bool
	localPubKey []byte
}

// NewXXHandshake creates a new XX pattern handshake. staticPrivKey is our
// long-term private key (32 bytes); role determines if we initiate or
// respond.
func NewXXHandshake(staticPrivKey []byte, role HandshakeRole) (*XXHandshake, error) {
	if len(staticPrivKey) != 32 {
		return nil, fmt.Errorf("static private key must be 32 bytes, got %d", len(staticPrivKey))
	}

	var privateKeyArray [32]byte
	copy(privateKeyArray[:], staticPrivKey)

	keyPair, err := crypto.FromSecretKey(privateKeyArray)
	if err != nil {
		return nil, fmt.Errorf("failed to create keypair: %w", err)
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, keyPair.Private[:])
	copy(staticKey.Public, keyPair.Public[:])

	crypto.ZeroBytes(privateKeyArray[:])

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	config := noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	}

	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create XX handshake state: %w", err)
	}

	return &XXHandshake{
		role:        role,
		state:       hs,
		localPubKey: keyPair.Public[:],
	}, nil
}

// WriteMessage writes the next handshake message for the XX pattern.
func (xx *XXHandshake) WriteMessage(payload []byte) ([]byte, bool, error) {
	if xx.complete {
		return nil, false, ErrHandshakeComplete
	}

	message, send, recv, err := xx.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("XX handshake write failed: %w", err)
	}

	if send != nil && recv != nil {
		xx.sendCipher = send
		xx.recvCipher = recv
		xx.complete = true
		return message, true, nil
	}

	return message, false, nil
}

// ReadMessage processes a received handshake message for the XX pattern.
func (xx *XXHandshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if xx.complete {
		return nil, false, ErrHandshakeComplete
	}

	payload, send, recv, err := xx.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("XX handshake read failed: %w", err)
	}

	if send != nil && recv != nil {
		xx.sendCipher = send
		xx.recvCipher = recv
		xx.complete = true
		return payload, true, nil
	}

	return payload, false, nil
}

// IsComplete returns whether the handshake has finished.
func (xx *XXHandshake) IsComplete() bool {
	return xx.complete
}

// CipherStates returns the established send/receive cipher states. The send
// cipher encrypts outgoing messages; the receive cipher decrypts incoming
// ones. Neither is safe for concurrent use.
func (xx *XXHandshake) CipherStates() (send, recv *noise.CipherState, err error) {
	if !xx.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	return xx.sendCipher, xx.recvCipher, nil
}

// RemoteStaticKey returns the peer's static public key, available only
// after the handshake completes.
func (xx *XXHandshake) RemoteStaticKey() ([]byte, error) {
	if !xx.complete {
		return nil, ErrHandshakeNotComplete
	}
	return xx.state.PeerStatic(), nil
}

// LocalStaticKey returns our own static public key.
func (xx *XXHandshake) LocalStaticKey() []byte {
	if len(xx.localPubKey) > 0 {
		key := make([]byte, len(xx.localPubKey))
		copy(key, xx.localPubKey)
		return key
	}
	return nil
}
