package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// pendingRequests correlates outgoing DHT RPCs with their eventual reply
// by RequestID, since several lookups may be in flight against the same
// peer concurrently.
type pendingRequests struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]chan any
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{waiters: make(map[uint64]chan any)}
}

func (p *pendingRequests) register() (uint64, chan any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	ch := make(chan any, 1)
	p.waiters[id] = ch
	return id, ch
}

func (p *pendingRequests) cancel(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, id)
}

func (p *pendingRequests) resolve(id uint64, reply any) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply
	return true
}

func (p *pendingRequests) await(ctx context.Context, id uint64, ch chan any) (any, error) {
	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		p.cancel(id)
		return nil, ctx.Err()
	}
}

// sendRPC signs and submits a unicast RPC payload directly to peer,
// bypassing store-and-forward: DHT RPCs are request/response and a lost
// request is simply retried by the lookup, rather than durably queued.
func (n *Node) sendRPC(peer crypto.NodeID, msgType wire.Type, payload []byte) error {
	msg := n.buildMessage(msgType, payload)
	if err := n.sign(msg); err != nil {
		return fmt.Errorf("node: sign rpc: %w", err)
	}
	n.routes.MarkSeen(msg.ContentHash())
	return n.transport.Send(peer, msg.Encode())
}

// FindNode implements dht.Sender by issuing a DHT_FIND_NODE RPC to peer
// and waiting for the correlated DHT_FOUND_NODES reply.
func (n *Node) FindNode(ctx context.Context, peer, target crypto.NodeID) ([]crypto.NodeID, error) {
	id, ch := n.pending.register()
	req := &wire.FindNodeRequest{RequestID: id, Target: target}
	if err := n.sendRPC(peer, wire.TypeDHTFindNode, req.Encode()); err != nil {
		n.pending.cancel(id)
		return nil, err
	}
	reply, err := n.pending.await(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	found, ok := reply.(*wire.FoundNodesReply)
	if !ok {
		return nil, fmt.Errorf("node: unexpected reply type for find_node")
	}
	return found.Contacts, nil
}

// FindValue implements dht.Sender by issuing a DHT_FIND_VALUE RPC to peer
// and waiting for the correlated DHT_FOUND_VALUE reply.
func (n *Node) FindValue(ctx context.Context, peer crypto.NodeID, key crypto.ContentHash) ([]crypto.NodeID, []byte, bool, error) {
	id, ch := n.pending.register()
	req := &wire.FindValueRequest{RequestID: id, Key: key}
	if err := n.sendRPC(peer, wire.TypeDHTFindValue, req.Encode()); err != nil {
		n.pending.cancel(id)
		return nil, nil, false, err
	}
	reply, err := n.pending.await(ctx, id, ch)
	if err != nil {
		return nil, nil, false, err
	}
	found, ok := reply.(*wire.FoundValueReply)
	if !ok {
		return nil, nil, false, fmt.Errorf("node: unexpected reply type for find_value")
	}
	return found.Contacts, found.Value, found.Found, nil
}

// Store implements dht.Sender by issuing a DHT_STORE RPC to peer and
// waiting for the correlated DHT_STORE_ACK reply.
func (n *Node) Store(ctx context.Context, peer crypto.NodeID, key crypto.ContentHash, value []byte, ttl time.Duration) error {
	id, ch := n.pending.register()
	req := &wire.StoreRequest{RequestID: id, Key: key, Value: value, TTLSeconds: uint32(ttl / time.Second)}
	if err := n.sendRPC(peer, wire.TypeDHTStore, req.Encode()); err != nil {
		n.pending.cancel(id)
		return err
	}
	reply, err := n.pending.await(ctx, id, ch)
	if err != nil {
		return err
	}
	ack, ok := reply.(*wire.StoreAck)
	if !ok {
		return fmt.Errorf("node: unexpected reply type for store")
	}
	if !ack.OK {
		return fmt.Errorf("node: peer %s rejected store", peer.String())
	}
	return nil
}
