package node

import (
	"fmt"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/wire"
)

// DefaultOriginTTL bounds how many hops a freshly-originated unicast
// message may traverse before the relay drops it as expired.
const DefaultOriginTTL = 16

// SendMessage signs and delivers content to dest. A direct route is used
// when known; otherwise the message is flooded toward dest's best-ranked
// neighbors and durably queued for store-and-forward retry in case no
// copy reaches dest on the first attempt.
func (n *Node) SendMessage(dest crypto.NodeID, content []byte, msgType wire.Type) error {
	if msgType.IsBroadcast() {
		return fmt.Errorf("node: %s is a broadcast type, use Broadcast instead", msgType)
	}
	payload := &wire.UnicastPayload{Recipient: dest, Body: content}
	msg := n.buildMessage(msgType, payload.Encode())
	if err := n.sign(msg); err != nil {
		return fmt.Errorf("node: sign message: %w", err)
	}
	return n.originate(msg, dest)
}

// Broadcast disseminates content as a TEXT message to the whole mesh via
// the gossip engine's epidemic push/pull, rather than the wire-level
// broadcast-type flood reserved for control protocol traffic
// (PEER_DISCOVERY/PEER_INTRODUCTION/CONTROL_PING/CONTROL_PONG). Recipient
// is left zero: a gossiped application message has no single destination.
func (n *Node) Broadcast(content []byte) error {
	payload := &wire.UnicastPayload{Body: content}
	msg := n.buildMessage(wire.TypeText, payload.Encode())
	if err := n.sign(msg); err != nil {
		return fmt.Errorf("node: sign broadcast message: %w", err)
	}
	n.routes.MarkSeen(msg.ContentHash())
	n.gossip.Push(msg)
	return nil
}

func (n *Node) buildMessage(msgType wire.Type, payload []byte) *wire.Message {
	return &wire.Message{
		Header: wire.Header{
			Version:   wire.CurrentVersion,
			Type:      msgType,
			TTL:       DefaultOriginTTL,
			Timestamp: n.cfg.TimeProvider.Now().UnixMilli(),
			Sender:    n.keyPair.Public,
		},
		Payload: payload,
	}
}

// originate routes a freshly-signed message toward dest: direct route if
// known; otherwise (or when the scheduler rejects the direct submit) Smart
// Flood candidates toward dest plus a store-and-forward entry, so a
// transient lack of connectivity doesn't lose the message outright. A
// message the scheduler accepts for a direct route is not stored.
func (n *Node) originate(msg *wire.Message, dest crypto.NodeID) error {
	n.routes.MarkSeen(msg.ContentHash())
	priority := wire.PriorityForType(msg.Header.Type)
	encoded := msg.Encode()

	if nextHop, ok := n.routes.GetNextHop(dest); ok {
		if err := n.scheduler.Submit(nextHop, encoded, priority); err != nil {
			n.logger.WithError(err).WithField("dest", dest.String()).Debug("direct-route submit failed")
		} else {
			return nil
		}
	}

	candidates := n.routes.FloodCandidates(dest, n.self)
	for _, peer := range candidates {
		_ = n.scheduler.Submit(peer, encoded, priority)
	}

	storePriority := uint8(priority)
	if err := n.relay.Store(msg, dest, storePriority); err != nil {
		n.logger.WithError(err).WithField("dest", dest.String()).Debug("store-and-forward enqueue failed")
	}
	return nil
}

// broadcastToNeighbors signs msg and hands it to the scheduler for every
// currently connected peer, used by heartbeat and session presence: both
// are TTL=1 messages meant for immediate neighbors only, never multi-hop
// flooded.
func (n *Node) broadcastToNeighbors(msg *wire.Message) error {
	if err := n.sign(msg); err != nil {
		return err
	}
	n.routes.MarkSeen(msg.ContentHash())
	encoded := msg.Encode()
	priority := wire.PriorityForType(msg.Header.Type)

	for _, p := range n.routes.Peers() {
		if p.State != routing.StateConnected {
			continue
		}
		_ = n.scheduler.Submit(p.ID, encoded, priority)
	}
	return nil
}
