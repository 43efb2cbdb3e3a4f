package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/noise"
)

// ErrHandshakeIncomplete is returned by Send when a peer's Noise session
// has not finished its handshake yet.
var ErrHandshakeIncomplete = errors.New("transport: noise handshake incomplete")

type frameKind byte

const (
	frameHandshake frameKind = 0x00
	frameData      frameKind = 0x01
)

type peerSession struct {
	mu          sync.Mutex
	hs          *noise.XXHandshake
	established bool
	sendCipher  cipherCodec
	recvCipher  cipherCodec
}

// cipherCodec is the subset of *gonoise.CipherState used here, narrowed to
// an interface so tests can substitute a fake without pulling in the real
// Noise state machine.
type cipherCodec interface {
	Encrypt(out, ad, plaintext []byte) ([]byte, error)
	Decrypt(out, ad, ciphertext []byte) ([]byte, error)
}

// NoiseSession wraps any inner Transport with a Noise_XX handshake,
// giving an otherwise unauthenticated channel (a freshly opened WebRTC
// data channel, an in-process pipe) forward secrecy and mutual
// authentication. Handshake and data frames share the inner transport's
// byte stream, distinguished by a one-byte kind prefix.
type NoiseSession struct {
	inner         Transport
	staticPrivKey []byte

	mu       sync.Mutex
	sessions map[crypto.NodeID]*peerSession
	cb       Callbacks
}

// NewNoiseSession wraps inner with Noise_XX encryption, using
// staticPrivKey (32 bytes) as this node's long-term identity key.
func NewNoiseSession(inner Transport, staticPrivKey []byte) *NoiseSession {
	return &NoiseSession{
		inner:         inner,
		staticPrivKey: staticPrivKey,
		sessions:      make(map[crypto.NodeID]*peerSession),
	}
}

// Kind implements Transport, passing through the inner transport's kind.
func (n *NoiseSession) Kind() Kind { return n.inner.Kind() }

// Start implements Transport.
func (n *NoiseSession) Start(callbacks Callbacks) error {
	n.mu.Lock()
	n.cb = callbacks
	n.mu.Unlock()

	return n.inner.Start(Callbacks{
		OnMessage:          n.handleInbound,
		OnPeerConnected:    func(peer crypto.NodeID) {}, // deferred until handshake completes
		OnPeerDisconnected: n.handleDisconnected,
	})
}

// Stop implements Transport.
func (n *NoiseSession) Stop() error {
	n.mu.Lock()
	n.sessions = make(map[crypto.NodeID]*peerSession)
	n.mu.Unlock()
	return n.inner.Stop()
}

// Connect implements Transport: establishes the inner connection, then
// initiates the Noise handshake as the XX initiator.
func (n *NoiseSession) Connect(ctx context.Context, peer crypto.NodeID, hint string) error {
	if err := n.inner.Connect(ctx, peer, hint); err != nil {
		return err
	}

	sess, err := n.newSession(peer, noise.Initiator)
	if err != nil {
		return err
	}

	msg, _, err := sess.hs.WriteMessage(nil)
	if err != nil {
		return err
	}
	return n.inner.Send(peer, frame(frameHandshake, msg))
}

// Disconnect implements Transport.
func (n *NoiseSession) Disconnect(peer crypto.NodeID) error {
	n.mu.Lock()
	delete(n.sessions, peer)
	n.mu.Unlock()
	return n.inner.Disconnect(peer)
}

// Send implements Transport: encrypts data under the peer's established
// session before handing it to the inner transport.
func (n *NoiseSession) Send(peer crypto.NodeID, data []byte) error {
	n.mu.Lock()
	sess, ok := n.sessions[peer]
	n.mu.Unlock()
	if !ok {
		return ErrPeerNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.established {
		return ErrHandshakeIncomplete
	}

	ciphertext, err := sess.sendCipher.Encrypt(nil, nil, data)
	if err != nil {
		return err
	}
	return n.inner.Send(peer, frame(frameData, ciphertext))
}

func (n *NoiseSession) newSession(peer crypto.NodeID, role noise.HandshakeRole) (*peerSession, error) {
	hs, err := noise.NewXXHandshake(n.staticPrivKey, role)
	if err != nil {
		return nil, err
	}
	sess := &peerSession{hs: hs}

	n.mu.Lock()
	n.sessions[peer] = sess
	n.mu.Unlock()
	return sess, nil
}

func (n *NoiseSession) handleInbound(peer crypto.NodeID, data []byte) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "NoiseSession.handleInbound",
		"package":  "transport",
		"peer":     peer.String(),
	})

	kind, payload, err := unframe(data)
	if err != nil {
		logger.WithError(err).Warn("dropping malformed frame")
		return
	}

	n.mu.Lock()
	sess, ok := n.sessions[peer]
	n.mu.Unlock()
	if !ok {
		if kind != frameHandshake {
			logger.Warn("dropping data frame with no session")
			return
		}
		sess, err = n.newSession(peer, noise.Responder)
		if err != nil {
			logger.WithError(err).Error("failed to start responder session")
			return
		}
	}

	switch kind {
	case frameHandshake:
		n.handleHandshakeFrame(peer, sess, payload)
	case frameData:
		n.handleDataFrame(peer, sess, payload)
	default:
		logger.Warn("unknown frame kind")
	}
}

func (n *NoiseSession) handleHandshakeFrame(peer crypto.NodeID, sess *peerSession, payload []byte) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "NoiseSession.handleHandshakeFrame",
		"package":  "transport",
		"peer":     peer.String(),
	})

	sess.mu.Lock()
	if sess.established {
		sess.mu.Unlock()
		return
	}

	_, complete, err := sess.hs.ReadMessage(payload)
	if err != nil {
		sess.mu.Unlock()
		logger.WithError(err).Warn("handshake read failed")
		return
	}
	if complete {
		n.establishLocked(sess)
		sess.mu.Unlock()
		n.notifyConnected(peer)
		return
	}

	out, completeAfterWrite, err := sess.hs.WriteMessage(nil)
	if err != nil {
		sess.mu.Unlock()
		logger.WithError(err).Warn("handshake write failed")
		return
	}
	if completeAfterWrite {
		n.establishLocked(sess)
	}
	sess.mu.Unlock()

	if err := n.inner.Send(peer, frame(frameHandshake, out)); err != nil {
		logger.WithError(err).Warn("failed to send handshake response")
		return
	}
	if completeAfterWrite {
		n.notifyConnected(peer)
	}
}

// establishLocked pulls the cipher states out of the handshake once
// complete. Caller must hold sess.mu.
func (n *NoiseSession) establishLocked(sess *peerSession) {
	send, recv, err := sess.hs.CipherStates()
	if err != nil {
		return
	}
	sess.sendCipher = send
	sess.recvCipher = recv
	sess.established = true
}

func (n *NoiseSession) handleDataFrame(peer crypto.NodeID, sess *peerSession, payload []byte) {
	sess.mu.Lock()
	if !sess.established {
		sess.mu.Unlock()
		return
	}
	plaintext, err := sess.recvCipher.Decrypt(nil, nil, payload)
	sess.mu.Unlock()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NoiseSession.handleDataFrame",
			"package":  "transport",
			"peer":     peer.String(),
		}).WithError(err).Warn("decrypt failed")
		return
	}

	n.mu.Lock()
	cb := n.cb
	n.mu.Unlock()
	if cb.OnMessage != nil {
		cb.OnMessage(peer, plaintext)
	}
}

func (n *NoiseSession) notifyConnected(peer crypto.NodeID) {
	n.mu.Lock()
	cb := n.cb
	n.mu.Unlock()
	if cb.OnPeerConnected != nil {
		cb.OnPeerConnected(peer)
	}
}

func (n *NoiseSession) handleDisconnected(peer crypto.NodeID) {
	n.mu.Lock()
	delete(n.sessions, peer)
	cb := n.cb
	n.mu.Unlock()
	if cb.OnPeerDisconnected != nil {
		cb.OnPeerDisconnected(peer)
	}
}

func frame(kind frameKind, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(kind)
	copy(out[1:], payload)
	return out
}

func unframe(data []byte) (frameKind, []byte, error) {
	if len(data) < 1 {
		return 0, nil, errors.New("transport: empty frame")
	}
	return frameKind(data[0]), data[1:], nil
}
