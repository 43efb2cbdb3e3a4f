package node

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

func (n *Node) sessionPresenceLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.SessionPresenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.sendSessionPresence()
		}
	}
}

func (n *Node) sendSessionPresence() {
	n.mu.Lock()
	sessionID := n.sessionID
	timestamp := n.sessionTimestamp
	n.mu.Unlock()

	presence := &wire.SessionPresence{SessionID: sessionID, Timestamp: timestamp, Fingerprint: n.self}
	msg := n.buildMessage(wire.TypeSessionPresence, presence.Encode())
	if err := n.broadcastToNeighbors(msg); err != nil {
		n.logger.WithError(err).Warn("failed to broadcast session presence")
	}
}

// handleSessionPresence enforces the single-session rule: a presence
// claiming the local identity under a different session is resolved by
// comparing timestamp, then session id lexicographically, highest wins.
// Losing invalidates the local session and stops the node.
func (n *Node) handleSessionPresence(_ crypto.NodeID, msg *wire.Message) {
	presence, err := wire.DecodeSessionPresence(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed session presence")
		return
	}
	if presence.Fingerprint != n.self {
		return
	}

	n.mu.Lock()
	localSessionID := n.sessionID
	localTimestamp := n.sessionTimestamp
	n.mu.Unlock()

	if presence.SessionID == localSessionID {
		return
	}

	remoteWins := presence.Timestamp > localTimestamp ||
		(presence.Timestamp == localTimestamp && presence.SessionID > localSessionID)
	if !remoteWins {
		return
	}

	n.logger.WithFields(logrus.Fields{
		"local_session":   localSessionID,
		"winning_session": presence.SessionID,
	}).Warn("session invalidated by competing presence")

	n.mu.Lock()
	n.stats.SessionInvalidations++
	listeners := make([]SessionInvalidatedListener, len(n.sessionListeners))
	copy(listeners, n.sessionListeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l(presence.SessionID)
	}

	go func() {
		if err := n.Stop(); err != nil {
			n.logger.WithError(err).Warn("error stopping node after session invalidation")
		}
	}()
}
