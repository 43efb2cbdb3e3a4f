package wire

import (
	"encoding/binary"

	"github.com/meshnet/meshcore/crypto"
)

// UnicastPayload wraps the body of a non-broadcast message with an explicit
// recipient NodeID. The relay's ingress classification treats a Message as
// unicast when its Type is outside the broadcast set; the recipient must
// then be recoverable from the payload itself, since the header carries
// only the sender.
type UnicastPayload struct {
	Recipient crypto.NodeID
	Body      []byte
}

// Encode serializes the payload to the bytes stored in Message.Payload for
// unicast message types.
func (p *UnicastPayload) Encode() []byte {
	buf := make([]byte, crypto.NodeIDSize+len(p.Body))
	copy(buf, p.Recipient[:])
	copy(buf[crypto.NodeIDSize:], p.Body)
	return buf
}

// DecodeUnicastPayload parses a Message.Payload produced by Encode.
func DecodeUnicastPayload(buf []byte) (*UnicastPayload, error) {
	if len(buf) < crypto.NodeIDSize {
		return nil, ErrTruncated
	}
	var recipient crypto.NodeID
	copy(recipient[:], buf[:crypto.NodeIDSize])
	body := make([]byte, len(buf)-crypto.NodeIDSize)
	copy(body, buf[crypto.NodeIDSize:])
	return &UnicastPayload{Recipient: recipient, Body: body}, nil
}

const (
	// MinFragmentSize is the smallest fragment body the codec will
	// produce; messages at or below this size are never fragmented.
	MinFragmentSize = 512
	// MaxFragmentSize is the largest fragment body the codec will
	// produce regardless of MTU headroom.
	MaxFragmentSize = 16 * 1024

	fragmentHeaderSize = crypto.ContentHashSize + 2 + 2 // message-id + index + total
)

// FragmentBoundary computes the per-fragment payload size given the path
// MTU, clamped to [MinFragmentSize, MaxFragmentSize].
func FragmentBoundary(mtu int, overhead int) int {
	size := mtu - overhead
	if size > MaxFragmentSize {
		return MaxFragmentSize
	}
	if size < MinFragmentSize {
		return MinFragmentSize
	}
	return size
}

// Fragment is one piece of a fragmented message body. MessageID ties
// fragments of the same original message together; Index/Total describe
// position within the original sequence. Transmit order need not match
// Index order.
type Fragment struct {
	MessageID crypto.ContentHash
	Index     uint16
	Total     uint16
	Bytes     []byte
}

// Encode serializes a Fragment for inclusion in a FILE_CHUNK-style payload
// or any message type the relay fragments.
func (f *Fragment) Encode() []byte {
	buf := make([]byte, fragmentHeaderSize+len(f.Bytes))
	offset := 0
	copy(buf[offset:], f.MessageID[:])
	offset += crypto.ContentHashSize
	binary.BigEndian.PutUint16(buf[offset:], f.Index)
	offset += 2
	binary.BigEndian.PutUint16(buf[offset:], f.Total)
	offset += 2
	copy(buf[offset:], f.Bytes)
	return buf
}

// DecodeFragment parses bytes produced by Fragment.Encode.
func DecodeFragment(buf []byte) (*Fragment, error) {
	if len(buf) < fragmentHeaderSize {
		return nil, ErrTruncated
	}
	offset := 0
	var id crypto.ContentHash
	copy(id[:], buf[offset:offset+crypto.ContentHashSize])
	offset += crypto.ContentHashSize
	index := binary.BigEndian.Uint16(buf[offset:])
	offset += 2
	total := binary.BigEndian.Uint16(buf[offset:])
	offset += 2
	body := make([]byte, len(buf)-offset)
	copy(body, buf[offset:])
	return &Fragment{MessageID: id, Index: index, Total: total, Bytes: body}, nil
}

// FragmentMessage splits body into ⌈len(body)/fragmentSize⌉ Fragment
// records sharing messageID, satisfying the reassembly round-trip
// invariant regardless of transmit order.
func FragmentMessage(messageID crypto.ContentHash, body []byte, fragmentSize int) []Fragment {
	if fragmentSize <= 0 {
		fragmentSize = MinFragmentSize
	}
	total := (len(body) + fragmentSize - 1) / fragmentSize
	if total == 0 {
		total = 1
	}
	fragments := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * fragmentSize
		end := start + fragmentSize
		if end > len(body) {
			end = len(body)
		}
		chunk := make([]byte, end-start)
		copy(chunk, body[start:end])
		fragments = append(fragments, Fragment{
			MessageID: messageID,
			Index:     uint16(i),
			Total:     uint16(total),
			Bytes:     chunk,
		})
	}
	return fragments
}
