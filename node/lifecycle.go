package node

import (
	"context"

	"github.com/google/uuid"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/transport"
)

// Start wires transport callbacks, begins accepting connections, and
// starts every periodic loop (heartbeat, health, session presence, gossip
// rounds, store-and-forward retry, scheduler dispatch). A second call is
// a no-op.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = true
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.sessionID = newSessionID()
	n.sessionTimestamp = n.cfg.TimeProvider.Now().UnixMilli()
	n.wg.Add(3)
	n.mu.Unlock()

	if err := n.transport.Start(transport.Callbacks{
		OnMessage:          n.onTransportMessage,
		OnPeerConnected:    n.onTransportPeerConnected,
		OnPeerDisconnected: n.onTransportPeerDisconnected,
	}); err != nil {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return err
	}

	n.relay.StartRetryLoop()
	n.gossip.Start()
	n.scheduler.Start()

	go n.heartbeatLoop()
	go n.healthLoop()
	go n.sessionPresenceLoop()

	n.logger.Info("node started")
	return nil
}

// Stop cancels every periodic loop, stops accepting new transport
// activity, and blocks until everything this Node started has exited.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	cancel := n.cancel
	n.mu.Unlock()

	cancel()
	n.wg.Wait()

	n.relay.StopRetryLoop()
	n.gossip.Stop()
	n.scheduler.Stop()

	err := n.transport.Stop()
	n.logger.Info("node stopped")
	return err
}

func (n *Node) onTransportMessage(peer crypto.NodeID, data []byte) {
	n.mu.Lock()
	if m, ok := n.monitors[peer]; ok {
		m.lastActivity = n.cfg.TimeProvider.Now()
		m.offlineStrikes = 0
	}
	n.mu.Unlock()
	n.relay.Ingress(data, peer)
}

func (n *Node) onTransportPeerConnected(peer crypto.NodeID) {
	kind, _ := n.transport.OwnerOf(peer)
	// The transport layer authenticates by NodeID alone; the raw public
	// key, when known, arrives separately (DHT introduction, noise
	// handshake) and is never required for message authentication since
	// every signed wire.Message carries the signer's public key inline.
	if _, err := n.routes.AddPeer(peer, [32]byte{}, kind); err != nil {
		n.logger.WithError(err).WithField("peer", peer.String()).Warn("failed to register connected peer")
		return
	}
	n.routes.SetPeerState(peer, routing.StateConnected)

	n.mu.Lock()
	n.monitors[peer] = &peerMonitor{lastActivity: n.cfg.TimeProvider.Now()}
	listeners := make([]PeerEventListener, len(n.connectListeners))
	copy(listeners, n.connectListeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l(peer)
	}
}

func (n *Node) onTransportPeerDisconnected(peer crypto.NodeID) {
	n.routes.SetPeerState(peer, routing.StateDisconnected)

	n.mu.Lock()
	delete(n.monitors, peer)
	listeners := make([]PeerEventListener, len(n.disconnectListeners))
	copy(listeners, n.disconnectListeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l(peer)
	}
}

// ConnectToPeer asks the transport manager to establish a connection.
// kind selects which registered adapter to use; hint is adapter-specific
// rendezvous detail (signaling address, device id, ...).
func (n *Node) ConnectToPeer(ctx context.Context, peer crypto.NodeID, kind transport.Kind, hint string) error {
	return n.transport.Connect(ctx, peer, kind, hint)
}

// DisconnectFromPeer tears down whichever transport currently owns peer's
// connection.
func (n *Node) DisconnectFromPeer(peer crypto.NodeID) error {
	return n.transport.Disconnect(peer)
}

func newSessionID() string {
	return uuid.NewString()
}
