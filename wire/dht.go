package wire

import (
	"encoding/binary"

	"github.com/meshnet/meshcore/crypto"
)

// FindNodeRequest asks a peer for its closest known contacts to Target.
// RequestID correlates the eventual FoundNodesReply, since a node may have
// several lookups in flight against the same peer concurrently.
type FindNodeRequest struct {
	RequestID uint64
	Target    crypto.NodeID
}

func (r *FindNodeRequest) Encode() []byte {
	buf := make([]byte, 8+crypto.NodeIDSize)
	binary.BigEndian.PutUint64(buf, r.RequestID)
	copy(buf[8:], r.Target[:])
	return buf
}

func DecodeFindNodeRequest(buf []byte) (*FindNodeRequest, error) {
	if len(buf) < 8+crypto.NodeIDSize {
		return nil, ErrTruncated
	}
	var target crypto.NodeID
	copy(target[:], buf[8:8+crypto.NodeIDSize])
	return &FindNodeRequest{RequestID: binary.BigEndian.Uint64(buf), Target: target}, nil
}

// FoundNodesReply answers a FindNodeRequest with the replier's closest
// known contacts to Target.
type FoundNodesReply struct {
	RequestID uint64
	Contacts  []crypto.NodeID
}

func (r *FoundNodesReply) Encode() []byte {
	buf := make([]byte, 8+2+len(r.Contacts)*crypto.NodeIDSize)
	binary.BigEndian.PutUint64(buf, r.RequestID)
	binary.BigEndian.PutUint16(buf[8:], uint16(len(r.Contacts)))
	offset := 10
	for _, c := range r.Contacts {
		copy(buf[offset:], c[:])
		offset += crypto.NodeIDSize
	}
	return buf
}

func DecodeFoundNodesReply(buf []byte) (*FoundNodesReply, error) {
	if len(buf) < 10 {
		return nil, ErrTruncated
	}
	requestID := binary.BigEndian.Uint64(buf)
	count := int(binary.BigEndian.Uint16(buf[8:]))
	offset := 10
	if len(buf) < offset+count*crypto.NodeIDSize {
		return nil, ErrTruncated
	}
	contacts := make([]crypto.NodeID, count)
	for i := 0; i < count; i++ {
		copy(contacts[i][:], buf[offset:])
		offset += crypto.NodeIDSize
	}
	return &FoundNodesReply{RequestID: requestID, Contacts: contacts}, nil
}

// FindValueRequest asks a peer for the value stored at Key, or its
// closest known contacts to Key if it doesn't hold one.
type FindValueRequest struct {
	RequestID uint64
	Key       crypto.ContentHash
}

func (r *FindValueRequest) Encode() []byte {
	buf := make([]byte, 8+crypto.ContentHashSize)
	binary.BigEndian.PutUint64(buf, r.RequestID)
	copy(buf[8:], r.Key[:])
	return buf
}

func DecodeFindValueRequest(buf []byte) (*FindValueRequest, error) {
	if len(buf) < 8+crypto.ContentHashSize {
		return nil, ErrTruncated
	}
	var key crypto.ContentHash
	copy(key[:], buf[8:8+crypto.ContentHashSize])
	return &FindValueRequest{RequestID: binary.BigEndian.Uint64(buf), Key: key}, nil
}

// FoundValueReply answers a FindValueRequest. Found distinguishes a
// value-bearing reply from a contacts-only reply (value absent).
type FoundValueReply struct {
	RequestID uint64
	Found     bool
	Value     []byte
	Contacts  []crypto.NodeID
}

func (r *FoundValueReply) Encode() []byte {
	size := 8 + 1 + 4 + len(r.Value) + 2 + len(r.Contacts)*crypto.NodeIDSize
	buf := make([]byte, size)
	binary.BigEndian.PutUint64(buf, r.RequestID)
	offset := 8
	if r.Found {
		buf[offset] = 1
	}
	offset++
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(r.Value)))
	offset += 4
	copy(buf[offset:], r.Value)
	offset += len(r.Value)
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(r.Contacts)))
	offset += 2
	for _, c := range r.Contacts {
		copy(buf[offset:], c[:])
		offset += crypto.NodeIDSize
	}
	return buf
}

func DecodeFoundValueReply(buf []byte) (*FoundValueReply, error) {
	if len(buf) < 13 {
		return nil, ErrTruncated
	}
	requestID := binary.BigEndian.Uint64(buf)
	offset := 8
	found := buf[offset] == 1
	offset++
	valueLen := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4
	if len(buf) < offset+valueLen+2 {
		return nil, ErrTruncated
	}
	value := make([]byte, valueLen)
	copy(value, buf[offset:offset+valueLen])
	offset += valueLen
	count := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2
	if len(buf) < offset+count*crypto.NodeIDSize {
		return nil, ErrTruncated
	}
	contacts := make([]crypto.NodeID, count)
	for i := 0; i < count; i++ {
		copy(contacts[i][:], buf[offset:])
		offset += crypto.NodeIDSize
	}
	return &FoundValueReply{RequestID: requestID, Found: found, Value: value, Contacts: contacts}, nil
}

// StoreRequest asks a peer to persist Key/Value for TTLSeconds (zero means
// no expiry beyond the peer's own retention policy).
type StoreRequest struct {
	RequestID  uint64
	Key        crypto.ContentHash
	Value      []byte
	TTLSeconds uint32
}

func (r *StoreRequest) Encode() []byte {
	buf := make([]byte, 8+crypto.ContentHashSize+4+4+len(r.Value))
	binary.BigEndian.PutUint64(buf, r.RequestID)
	offset := 8
	copy(buf[offset:], r.Key[:])
	offset += crypto.ContentHashSize
	binary.BigEndian.PutUint32(buf[offset:], r.TTLSeconds)
	offset += 4
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(r.Value)))
	offset += 4
	copy(buf[offset:], r.Value)
	return buf
}

func DecodeStoreRequest(buf []byte) (*StoreRequest, error) {
	if len(buf) < 8+crypto.ContentHashSize+8 {
		return nil, ErrTruncated
	}
	requestID := binary.BigEndian.Uint64(buf)
	offset := 8
	var key crypto.ContentHash
	copy(key[:], buf[offset:offset+crypto.ContentHashSize])
	offset += crypto.ContentHashSize
	ttl := binary.BigEndian.Uint32(buf[offset:])
	offset += 4
	valueLen := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4
	if len(buf) < offset+valueLen {
		return nil, ErrTruncated
	}
	value := make([]byte, valueLen)
	copy(value, buf[offset:offset+valueLen])
	return &StoreRequest{RequestID: requestID, Key: key, Value: value, TTLSeconds: ttl}, nil
}

// StoreAck answers a StoreRequest.
type StoreAck struct {
	RequestID uint64
	OK        bool
}

func (a *StoreAck) Encode() []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf, a.RequestID)
	if a.OK {
		buf[8] = 1
	}
	return buf
}

func DecodeStoreAck(buf []byte) (*StoreAck, error) {
	if len(buf) < 9 {
		return nil, ErrTruncated
	}
	return &StoreAck{RequestID: binary.BigEndian.Uint64(buf), OK: buf[8] == 1}, nil
}
