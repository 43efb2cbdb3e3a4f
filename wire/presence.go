package wire

import (
	"encoding/binary"

	"github.com/meshnet/meshcore/crypto"
)

// SessionPresence announces a session owner's identity is currently
// active. Upon receiving one that claims the local identity under a
// different SessionID, the single-session tie-break compares Timestamp
// and then SessionID lexicographically to decide which session survives.
type SessionPresence struct {
	SessionID   string
	Timestamp   int64
	Fingerprint crypto.NodeID
}

func (p *SessionPresence) Encode() []byte {
	id := []byte(p.SessionID)
	buf := make([]byte, 2+len(id)+8+crypto.NodeIDSize)
	binary.BigEndian.PutUint16(buf, uint16(len(id)))
	offset := 2
	copy(buf[offset:], id)
	offset += len(id)
	binary.BigEndian.PutUint64(buf[offset:], uint64(p.Timestamp))
	offset += 8
	copy(buf[offset:], p.Fingerprint[:])
	return buf
}

// DecodeSessionPresence parses bytes produced by SessionPresence.Encode.
func DecodeSessionPresence(buf []byte) (*SessionPresence, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	idLen := int(binary.BigEndian.Uint16(buf))
	offset := 2
	if len(buf) < offset+idLen+8+crypto.NodeIDSize {
		return nil, ErrTruncated
	}
	id := string(buf[offset : offset+idLen])
	offset += idLen
	timestamp := int64(binary.BigEndian.Uint64(buf[offset:]))
	offset += 8
	var fp crypto.NodeID
	copy(fp[:], buf[offset:offset+crypto.NodeIDSize])
	return &SessionPresence{SessionID: id, Timestamp: timestamp, Fingerprint: fp}, nil
}
