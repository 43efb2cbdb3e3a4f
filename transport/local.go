package transport

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// Dialer connects two Local transports in the same process, standing in
// for whatever out-of-band rendezvous a real transport would need (a
// signaling server for WebRTC, an RFCOMM scan for Bluetooth). Tests and
// single-process simulations share one Dialer across every Local
// transport instance they create.
type Dialer struct {
	mu       sync.Mutex
	byNodeID map[crypto.NodeID]*Local
}

// NewDialer creates an empty registry for Local transport discovery.
func NewDialer() *Dialer {
	return &Dialer{byNodeID: make(map[crypto.NodeID]*Local)}
}

func (d *Dialer) register(id crypto.NodeID, l *Local) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byNodeID[id] = l
}

func (d *Dialer) unregister(id crypto.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byNodeID, id)
}

func (d *Dialer) lookup(id crypto.NodeID) (*Local, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.byNodeID[id]
	return l, ok
}

// Local is an in-process Transport built on net.Pipe, used for tests and
// for composing multi-node simulations without any real network I/O.
type Local struct {
	self   crypto.NodeID
	dialer *Dialer

	mu    sync.Mutex
	conns map[crypto.NodeID]net.Conn
	cb    Callbacks
}

// NewLocal creates a Local transport for self, registered with dialer so
// other Local transports sharing the same dialer can Connect to it.
func NewLocal(self crypto.NodeID, dialer *Dialer) *Local {
	return &Local{self: self, dialer: dialer, conns: make(map[crypto.NodeID]net.Conn)}
}

// Kind implements Transport.
func (l *Local) Kind() Kind { return KindLocal }

// Start implements Transport.
func (l *Local) Start(callbacks Callbacks) error {
	l.mu.Lock()
	l.cb = callbacks
	l.mu.Unlock()
	l.dialer.register(l.self, l)
	return nil
}

// Stop implements Transport.
func (l *Local) Stop() error {
	l.dialer.unregister(l.self)
	l.mu.Lock()
	defer l.mu.Unlock()
	for peer, conn := range l.conns {
		conn.Close()
		delete(l.conns, peer)
	}
	return nil
}

// Connect implements Transport. hint is ignored: peer discovery happens
// through the shared Dialer registry instead of an address.
func (l *Local) Connect(ctx context.Context, peer crypto.NodeID, hint string) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Local.Connect",
		"package":  "transport",
		"self":     l.self.String(),
		"peer":     peer.String(),
	})

	remote, ok := l.dialer.lookup(peer)
	if !ok {
		return ErrPeerNotFound
	}

	clientConn, serverConn := net.Pipe()

	l.mu.Lock()
	l.conns[peer] = clientConn
	l.mu.Unlock()

	remote.acceptInbound(l.self, serverConn)

	go l.readLoop(peer, clientConn)

	l.mu.Lock()
	onConnected := l.cb.OnPeerConnected
	l.mu.Unlock()
	if onConnected != nil {
		onConnected(peer)
	}

	logger.Debug("local pipe connected")
	return nil
}

// acceptInbound is invoked by the peer side of a Connect call so both ends
// of the net.Pipe end up registered before either tries to Send.
func (l *Local) acceptInbound(peer crypto.NodeID, conn net.Conn) {
	l.mu.Lock()
	l.conns[peer] = conn
	cb := l.cb
	l.mu.Unlock()

	go l.readLoop(peer, conn)

	if cb.OnPeerConnected != nil {
		cb.OnPeerConnected(peer)
	}
}

func (l *Local) readLoop(peer crypto.NodeID, conn net.Conn) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			l.mu.Lock()
			delete(l.conns, peer)
			cb := l.cb
			l.mu.Unlock()
			if cb.OnPeerDisconnected != nil {
				cb.OnPeerDisconnected(peer)
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		l.mu.Lock()
		cb := l.cb
		l.mu.Unlock()
		if cb.OnMessage != nil {
			cb.OnMessage(peer, payload)
		}
	}
}

// Disconnect implements Transport.
func (l *Local) Disconnect(peer crypto.NodeID) error {
	l.mu.Lock()
	conn, ok := l.conns[peer]
	delete(l.conns, peer)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

// Send implements Transport.
func (l *Local) Send(peer crypto.NodeID, data []byte) error {
	l.mu.Lock()
	conn, ok := l.conns[peer]
	l.mu.Unlock()
	if !ok {
		return ErrPeerNotFound
	}
	if _, err := conn.Write(data); err != nil {
		return ErrConnectionClosed
	}
	return nil
}
