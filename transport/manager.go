package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// Manager orchestrates multiple Transport implementations, tracking which
// one currently owns a connection to each peer and dispatching Send calls
// accordingly, mirroring the teacher's multi-transport address-based
// dispatch generalized to NodeID-based dispatch.
type Manager struct {
	mu         sync.RWMutex
	transports map[Kind]Transport
	ownerOf    map[crypto.NodeID]Kind
	cb         Callbacks
}

// NewManager creates an empty Manager. Register transports with
// RegisterTransport before calling Start.
func NewManager() *Manager {
	return &Manager{
		transports: make(map[Kind]Transport),
		ownerOf:    make(map[crypto.NodeID]Kind),
	}
}

// RegisterTransport adds a transport under its own Kind tag.
func (m *Manager) RegisterTransport(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[t.Kind()] = t

	logrus.WithFields(logrus.Fields{
		"function": "Manager.RegisterTransport",
		"package":  "transport",
		"kind":     t.Kind().String(),
	}).Info("registered transport")
}

// Start wires callbacks into every registered transport, wrapping them to
// track connection ownership per peer.
func (m *Manager) Start(callbacks Callbacks) error {
	m.mu.Lock()
	m.cb = callbacks
	transports := make([]Transport, 0, len(m.transports))
	for _, t := range m.transports {
		transports = append(transports, t)
	}
	m.mu.Unlock()

	for _, t := range transports {
		kind := t.Kind()
		wrapped := Callbacks{
			OnMessage: callbacks.OnMessage,
			OnPeerConnected: func(peer crypto.NodeID) {
				m.mu.Lock()
				m.ownerOf[peer] = kind
				m.mu.Unlock()
				if callbacks.OnPeerConnected != nil {
					callbacks.OnPeerConnected(peer)
				}
			},
			OnPeerDisconnected: func(peer crypto.NodeID) {
				m.mu.Lock()
				if m.ownerOf[peer] == kind {
					delete(m.ownerOf, peer)
				}
				m.mu.Unlock()
				if callbacks.OnPeerDisconnected != nil {
					callbacks.OnPeerDisconnected(peer)
				}
			},
		}
		if err := t.Start(wrapped); err != nil {
			return fmt.Errorf("transport: starting %s adapter: %w", kind.String(), err)
		}
	}
	return nil
}

// Stop tears down every registered transport.
func (m *Manager) Stop() error {
	m.mu.RLock()
	transports := make([]Transport, 0, len(m.transports))
	for _, t := range m.transports {
		transports = append(transports, t)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, t := range transports {
		if err := t.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Connect dials peer through the transport registered under kind and
// returns an error if no transport is registered for it; other registered
// transports are not tried. On success that transport becomes peer's
// owner for subsequent Send calls.
func (m *Manager) Connect(ctx context.Context, peer crypto.NodeID, kind Kind, hint string) error {
	m.mu.RLock()
	t, ok := m.transports[kind]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no adapter registered for kind %s", kind.String())
	}

	if err := t.Connect(ctx, peer, hint); err != nil {
		return err
	}

	m.mu.Lock()
	m.ownerOf[peer] = kind
	m.mu.Unlock()
	return nil
}

// Disconnect tears down whichever transport currently owns peer.
func (m *Manager) Disconnect(peer crypto.NodeID) error {
	m.mu.Lock()
	kind, ok := m.ownerOf[peer]
	delete(m.ownerOf, peer)
	t := m.transports[kind]
	m.mu.Unlock()
	if !ok || t == nil {
		return ErrPeerNotFound
	}
	return t.Disconnect(peer)
}

// Send dispatches to whichever transport currently owns a connection to
// peer.
func (m *Manager) Send(peer crypto.NodeID, data []byte) error {
	m.mu.RLock()
	kind, ok := m.ownerOf[peer]
	t := m.transports[kind]
	m.mu.RUnlock()
	if !ok || t == nil {
		return ErrPeerNotFound
	}
	return t.Send(peer, data)
}

// OwnerOf reports which transport Kind currently owns peer's connection,
// if any.
func (m *Manager) OwnerOf(peer crypto.NodeID) (Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kind, ok := m.ownerOf[peer]
	return kind, ok
}
