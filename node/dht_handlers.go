package node

import (
	"context"
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/dht"
	"github.com/meshnet/meshcore/wire"
)

// registerSubsystemHandlers wires every relay subsystem type this node
// answers directly (DHT RPCs, control ping/pong, session presence, gossip
// digest exchange) instead of falling through to the generic message
// listener set.
func (n *Node) registerSubsystemHandlers() {
	n.relay.OnSubsystem(wire.TypeDHTFindNode, n.handleFindNodeRequest)
	n.relay.OnSubsystem(wire.TypeDHTFoundNodes, n.handleFoundNodesReply)
	n.relay.OnSubsystem(wire.TypeDHTFindValue, n.handleFindValueRequest)
	n.relay.OnSubsystem(wire.TypeDHTFoundValue, n.handleFoundValueReply)
	n.relay.OnSubsystem(wire.TypeDHTStore, n.handleStoreRequest)
	n.relay.OnSubsystem(wire.TypeDHTStoreAck, n.handleStoreAckReply)

	n.relay.OnSubsystem(wire.TypeControlPing, n.handleControlPing)
	n.relay.OnSubsystem(wire.TypeControlPong, n.handleControlPong)

	n.relay.OnSubsystem(wire.TypeSessionPresence, n.handleSessionPresence)

	n.relay.OnSubsystem(wire.TypeGossipDigest, n.gossip.HandleDigest)
	n.relay.OnSubsystem(wire.TypeGossipDigestReply, n.gossip.HandleDigestReply)
}

func (n *Node) handleFindNodeRequest(from crypto.NodeID, msg *wire.Message) {
	req, err := wire.DecodeFindNodeRequest(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed find_node request")
		return
	}
	contacts := n.dhtTable.FindClosestContacts(req.Target, dht.K)
	reply := &wire.FoundNodesReply{RequestID: req.RequestID, Contacts: contacts}
	if err := n.sendRPC(from, wire.TypeDHTFoundNodes, reply.Encode()); err != nil {
		n.logger.WithError(err).WithField("peer", from.String()).Debug("found_nodes reply failed")
	}
}

func (n *Node) handleFoundNodesReply(_ crypto.NodeID, msg *wire.Message) {
	reply, err := wire.DecodeFoundNodesReply(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed found_nodes reply")
		return
	}
	n.pending.resolve(reply.RequestID, reply)
}

func (n *Node) handleFindValueRequest(from crypto.NodeID, msg *wire.Message) {
	req, err := wire.DecodeFindValueRequest(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed find_value request")
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, dht.DefaultQueryTimeout)
	defer cancel()
	value, found, getErr := n.values.Get(ctx, req.Key)
	if getErr != nil {
		n.logger.WithError(getErr).Debug("local value lookup failed")
	}
	reply := &wire.FoundValueReply{RequestID: req.RequestID, Found: found, Value: value}
	if !found {
		reply.Contacts = n.dhtTable.FindClosestContacts(crypto.NodeID(req.Key), dht.K)
	}
	if err := n.sendRPC(from, wire.TypeDHTFoundValue, reply.Encode()); err != nil {
		n.logger.WithError(err).WithField("peer", from.String()).Debug("found_value reply failed")
	}
}

func (n *Node) handleFoundValueReply(_ crypto.NodeID, msg *wire.Message) {
	reply, err := wire.DecodeFoundValueReply(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed found_value reply")
		return
	}
	n.pending.resolve(reply.RequestID, reply)
}

func (n *Node) handleStoreRequest(from crypto.NodeID, msg *wire.Message) {
	req, err := wire.DecodeStoreRequest(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed store request")
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, dht.DefaultQueryTimeout)
	defer cancel()
	ttl := time.Duration(req.TTLSeconds) * time.Second
	putErr := n.values.Put(ctx, req.Key, req.Value, ttl)
	ack := &wire.StoreAck{RequestID: req.RequestID, OK: putErr == nil}
	if putErr != nil {
		n.logger.WithError(putErr).Debug("local store failed")
	}
	if err := n.sendRPC(from, wire.TypeDHTStoreAck, ack.Encode()); err != nil {
		n.logger.WithError(err).WithField("peer", from.String()).Debug("store_ack reply failed")
	}
}

func (n *Node) handleStoreAckReply(_ crypto.NodeID, msg *wire.Message) {
	ack, err := wire.DecodeStoreAck(msg.Payload)
	if err != nil {
		n.logger.WithError(err).Debug("malformed store ack")
		return
	}
	n.pending.resolve(ack.RequestID, ack)
}
