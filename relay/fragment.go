package relay

import (
	"fmt"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

// Signer authenticates a Message before it leaves this node. The relay
// never holds the local identity's private key, so fragmentation and
// carrier signing are driven by a caller-supplied callback (the
// orchestrator, which does hold it).
type Signer func(msg *wire.Message) error

// fragmentCarrierOverhead approximates the wire.Message header and
// signature bytes layered atop each Fragment, so FragmentBoundary's MTU
// clamp reflects the actual bytes that hit the wire per hop.
const fragmentCarrierOverhead = 128

// FragmentForSend signs inner as a single logical message, then always
// wraps its full encoding in one or more TypeFileChunk carrier messages
// sized to mtu, each independently signed. Uniformly carrying even a
// message that fits in a single fragment keeps ingress handling for
// TypeFileChunk one code path instead of two.
func FragmentForSend(inner wire.Header, payload []byte, mtu int, sign Signer) ([]*wire.Message, error) {
	innerMsg := &wire.Message{Header: inner, Payload: payload}
	if err := sign(innerMsg); err != nil {
		return nil, fmt.Errorf("relay: sign message: %w", err)
	}
	encoded := innerMsg.Encode()

	boundary := wire.FragmentBoundary(mtu, fragmentCarrierOverhead)
	fragments := wire.FragmentMessage(innerMsg.ContentHash(), encoded, boundary)

	out := make([]*wire.Message, 0, len(fragments))
	for _, frag := range fragments {
		carrier := &wire.Message{
			Header: wire.Header{
				Version:   inner.Version,
				Type:      wire.TypeFileChunk,
				TTL:       inner.TTL,
				Timestamp: inner.Timestamp,
				Sender:    inner.Sender,
			},
			Payload: frag.Encode(),
		}
		if err := sign(carrier); err != nil {
			return nil, fmt.Errorf("relay: sign fragment carrier: %w", err)
		}
		out = append(out, carrier)
	}
	return out, nil
}

// handleFragmentCarrier is the subsystem handler for wire.TypeFileChunk:
// it feeds the carried Fragment into the Reassembler and, once every
// fragment of a message has arrived, decodes the reconstructed bytes back
// into the original inner Message and runs it through local delivery and
// Smart Flood forwarding exactly as Ingress would.
func (r *Relay) handleFragmentCarrier(from crypto.NodeID, msg *wire.Message) {
	frag, err := wire.DecodeFragment(msg.Payload)
	if err != nil {
		r.logger.WithError(err).Debug("malformed fragment carrier")
		r.drop(DropDecodeFailed)
		return
	}

	complete, ok, err := r.rea.Add(*frag)
	if err != nil {
		r.logger.WithError(err).Debug("fragment reassembly rejected")
		return
	}
	if !ok {
		return
	}

	reconstructed, err := wire.Decode(complete)
	if err != nil {
		r.logger.WithError(err).Warn("reassembled bytes failed to decode")
		r.drop(DropDecodeFailed)
		return
	}

	if !controlTypes[reconstructed.Header.Type] {
		valid, err := reconstructed.Verify()
		if err != nil || !valid {
			r.drop(DropSignatureInvalid)
			return
		}
	}

	isBroadcast := reconstructed.Header.Type.IsBroadcast()
	isForSelf := r.isForSelf(reconstructed, isBroadcast)

	if isForSelf {
		r.deliverLocal(from, reconstructed)
	}
	if isForSelf && !isBroadcast {
		return
	}
	r.forward(reconstructed, from)
}
