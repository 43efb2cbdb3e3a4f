package wire

import (
	"encoding/binary"

	"github.com/meshnet/meshcore/crypto"
)

// Digest lists the content hashes a gossip participant currently holds, so
// a peer can compute what it's missing without transmitting full message
// bodies.
type Digest struct {
	Hashes []crypto.ContentHash
}

// Encode serializes d as a count-prefixed array of content hashes.
func (d *Digest) Encode() []byte {
	buf := make([]byte, 2+len(d.Hashes)*crypto.ContentHashSize)
	binary.BigEndian.PutUint16(buf, uint16(len(d.Hashes)))
	offset := 2
	for _, h := range d.Hashes {
		copy(buf[offset:], h[:])
		offset += crypto.ContentHashSize
	}
	return buf
}

// DecodeDigest parses bytes produced by Digest.Encode.
func DecodeDigest(buf []byte) (*Digest, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	count := int(binary.BigEndian.Uint16(buf))
	offset := 2
	if len(buf) < offset+count*crypto.ContentHashSize {
		return nil, ErrTruncated
	}
	hashes := make([]crypto.ContentHash, count)
	for i := 0; i < count; i++ {
		copy(hashes[i][:], buf[offset:])
		offset += crypto.ContentHashSize
	}
	return &Digest{Hashes: hashes}, nil
}

// DigestReply carries the full encoding of every message the replier
// believes the digest sender is missing.
type DigestReply struct {
	Messages [][]byte // each entry is a Message.Encode() result
}

// Encode serializes r as a count-prefixed array of length-prefixed
// message encodings.
func (r *DigestReply) Encode() []byte {
	size := 2
	for _, m := range r.Messages {
		size += 4 + len(m)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf, uint16(len(r.Messages)))
	offset := 2
	for _, m := range r.Messages {
		binary.BigEndian.PutUint32(buf[offset:], uint32(len(m)))
		offset += 4
		copy(buf[offset:], m)
		offset += len(m)
	}
	return buf
}

// DecodeDigestReply parses bytes produced by DigestReply.Encode.
func DecodeDigestReply(buf []byte) (*DigestReply, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	count := int(binary.BigEndian.Uint16(buf))
	offset := 2
	messages := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < offset+4 {
			return nil, ErrTruncated
		}
		length := int(binary.BigEndian.Uint32(buf[offset:]))
		offset += 4
		if len(buf) < offset+length {
			return nil, ErrTruncated
		}
		msg := make([]byte, length)
		copy(msg, buf[offset:offset+length])
		offset += length
		messages = append(messages, msg)
	}
	return &DigestReply{Messages: messages}, nil
}
