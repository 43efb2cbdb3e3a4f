package node

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// heartbeatTTL keeps heartbeat traffic to immediate neighbors: the relay
// decrements TTL before any further flood, so TTL=1 expires at the first
// hop and is never re-forwarded.
const heartbeatTTL = 1

func (n *Node) heartbeatLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.sendHeartbeat()
		}
	}
}

func (n *Node) sendHeartbeat() {
	now := n.cfg.TimeProvider.Now()
	msg := &wire.Message{
		Header: wire.Header{
			Version:   wire.CurrentVersion,
			Type:      wire.TypeControlPing,
			TTL:       heartbeatTTL,
			Timestamp: now.UnixMilli(),
			Sender:    n.keyPair.Public,
		},
	}
	if err := n.broadcastToNeighbors(msg); err != nil {
		n.logger.WithError(err).Warn("failed to send heartbeat")
		return
	}
	n.mu.Lock()
	n.stats.HeartbeatsSent++
	n.mu.Unlock()
}

// handleControlPing replies to a CONTROL_PING with a CONTROL_PONG echoing
// the ping's origin timestamp, so the pinger can measure round-trip time.
func (n *Node) handleControlPing(from crypto.NodeID, msg *wire.Message) {
	n.mu.Lock()
	if m, ok := n.monitors[from]; ok {
		m.lastActivity = n.cfg.TimeProvider.Now()
		m.offlineStrikes = 0
	}
	n.stats.HeartbeatsReceived++
	n.mu.Unlock()

	pong := &wire.Message{
		Header: wire.Header{
			Version:   wire.CurrentVersion,
			Type:      wire.TypeControlPong,
			TTL:       heartbeatTTL,
			Timestamp: msg.Header.Timestamp,
			Sender:    n.keyPair.Public,
		},
	}
	if err := n.sign(pong); err != nil {
		n.logger.WithError(err).Warn("failed to sign heartbeat pong")
		return
	}
	if err := n.transport.Send(from, pong.Encode()); err != nil {
		n.logger.WithError(err).WithField("peer", from.String()).Debug("pong send failed")
	}
}

// handleControlPong measures round-trip time from the echoed origin
// timestamp and feeds it back into the route metrics the Smart Flood
// ranking uses.
func (n *Node) handleControlPong(from crypto.NodeID, msg *wire.Message) {
	now := n.cfg.TimeProvider.Now()
	n.mu.Lock()
	if m, ok := n.monitors[from]; ok {
		m.lastActivity = now
		m.offlineStrikes = 0
	}
	n.mu.Unlock()

	rtt := float64(now.UnixMilli() - msg.Header.Timestamp)
	if rtt < 0 {
		rtt = 0
	}
	n.routes.UpdateRouteMetrics(from, rtt, true, nil)
}
