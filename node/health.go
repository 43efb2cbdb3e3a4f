package node

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
)

func (n *Node) healthLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.checkPeerHealth()
		}
	}
}

// checkPeerHealth evaluates every monitored peer against the activity
// thresholds: quiet past PoorAfter degrades the connection, quiet past
// OfflineAfter counts as an offline strike, and OfflineDisconnectStrikes
// consecutive offline checks drops the peer outright. Recent activity
// restores a DEGRADED peer to CONNECTED.
func (n *Node) checkPeerHealth() {
	now := n.cfg.TimeProvider.Now()

	n.mu.Lock()
	snapshot := make(map[crypto.NodeID]peerMonitor, len(n.monitors))
	for id, m := range n.monitors {
		snapshot[id] = *m
	}
	n.mu.Unlock()

	for id, m := range snapshot {
		peer, ok := n.routes.Peer(id)
		if !ok || peer.State == routing.StateDisconnected {
			continue
		}
		age := now.Sub(m.lastActivity)

		switch {
		case age > n.cfg.OfflineAfter:
			n.mu.Lock()
			mon, exists := n.monitors[id]
			if exists {
				mon.offlineStrikes++
			}
			strikes := 0
			if exists {
				strikes = mon.offlineStrikes
			}
			n.mu.Unlock()

			if strikes >= n.cfg.OfflineDisconnectStrikes {
				n.logger.WithField("peer", id.String()).Info("disconnecting unresponsive peer")
				if err := n.DisconnectFromPeer(id); err != nil {
					n.logger.WithError(err).WithField("peer", id.String()).Debug("health-triggered disconnect failed")
				}
				n.routes.SetPeerState(id, routing.StateDisconnected)
				n.mu.Lock()
				n.stats.PeersDisconnectedForHealth++
				n.mu.Unlock()
			}

		case age > n.cfg.PoorAfter:
			n.routes.SetPeerState(id, routing.StateDegraded)

		default:
			if peer.State == routing.StateDegraded {
				n.routes.SetPeerState(id, routing.StateConnected)
			}
			n.mu.Lock()
			if mon, exists := n.monitors[id]; exists {
				mon.offlineStrikes = 0
			}
			n.mu.Unlock()
		}
	}
}
