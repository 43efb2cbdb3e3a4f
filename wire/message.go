// Package wire implements the canonical message codec: the fixed-layout
// header, message type enumeration, signing/verification, and content
// hashing that every other package builds on.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// Type enumerates the wire message types.
type Type uint8

const (
	TypeText Type = iota
	TypeVoice
	TypeFileMetadata
	TypeFileChunk
	TypePeerDiscovery
	TypePeerIntroduction
	TypeControlPing
	TypeControlPong
	TypeControlAck
	TypeDHTFindNode
	TypeDHTFoundNodes
	TypeDHTFindValue
	TypeDHTFoundValue
	TypeDHTStore
	TypeDHTStoreAck
	TypeRendezvousAnnounce
	TypeRendezvousQuery
	TypeRendezvousResponse
	TypeRequestBlob
	TypeResponseBlob
	TypeSessionPresence
	TypeGossipDigest
	TypeGossipDigestReply
)

var typeNames = map[Type]string{
	TypeText:               "TEXT",
	TypeVoice:              "VOICE",
	TypeFileMetadata:       "FILE_METADATA",
	TypeFileChunk:          "FILE_CHUNK",
	TypePeerDiscovery:      "PEER_DISCOVERY",
	TypePeerIntroduction:   "PEER_INTRODUCTION",
	TypeControlPing:        "CONTROL_PING",
	TypeControlPong:        "CONTROL_PONG",
	TypeControlAck:         "CONTROL_ACK",
	TypeDHTFindNode:        "DHT_FIND_NODE",
	TypeDHTFoundNodes:      "DHT_FOUND_NODES",
	TypeDHTFindValue:       "DHT_FIND_VALUE",
	TypeDHTFoundValue:      "DHT_FOUND_VALUE",
	TypeDHTStore:           "DHT_STORE",
	TypeDHTStoreAck:        "DHT_STORE_ACK",
	TypeRendezvousAnnounce: "RENDEZVOUS_ANNOUNCE",
	TypeRendezvousQuery:    "RENDEZVOUS_QUERY",
	TypeRendezvousResponse: "RENDEZVOUS_RESPONSE",
	TypeRequestBlob:        "REQUEST_BLOB",
	TypeResponseBlob:       "RESPONSE_BLOB",
	TypeSessionPresence:    "SESSION_PRESENCE",
	TypeGossipDigest:       "GOSSIP_DIGEST",
	TypeGossipDigestReply:  "GOSSIP_DIGEST_REPLY",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// IsBroadcast reports whether messages of this type belong to the
// broadcast set rather than being addressed to a specific recipient.
func (t Type) IsBroadcast() bool {
	switch t {
	case TypePeerDiscovery, TypePeerIntroduction, TypeControlPing, TypeControlPong:
		return true
	default:
		return false
	}
}

const (
	headerVersionSize   = 1
	headerTypeSize      = 1
	headerTTLSize       = 1
	headerTimestampSize = 8
	headerSenderSize    = 32
	headerSignatureSize = crypto.SignatureSize
	headerSize          = headerVersionSize + headerTypeSize + headerTTLSize +
		headerTimestampSize + headerSenderSize + headerSignatureSize
	payloadLengthPrefixSize = 4

	// CurrentVersion is the only header version this codec emits or accepts.
	CurrentVersion uint8 = 1
)

var (
	// ErrTruncated indicates the buffer is too short for the fixed fields
	// being decoded (for Decode: the header plus its payload length
	// prefix; a payload shorter than declared is ErrPayloadLength).
	ErrTruncated = errors.New("wire: truncated message")
	// ErrUnsupportedVersion indicates a header version byte we don't know
	// how to interpret.
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	// ErrPayloadLength indicates the declared payload length disagrees
	// with the remaining buffer length.
	ErrPayloadLength = errors.New("wire: payload length mismatch")
	// ErrSignatureInvalid indicates Verify failed against the sender's
	// public key.
	ErrSignatureInvalid = errors.New("wire: signature invalid")
)

// Header is the fixed-layout prefix of every Message.
type Header struct {
	Version   uint8
	Type      Type
	TTL       uint8
	Timestamp int64 // unix ms
	Sender    [32]byte
	Signature crypto.Signature
}

// Message is a decoded wire message: a Header plus an opaque payload.
type Message struct {
	Header  Header
	Payload []byte
}

// Encode serializes m to its canonical wire form, signature included as-is
// (zeroed or real, whatever m.Header.Signature currently holds).
func (m *Message) Encode() []byte {
	buf := make([]byte, headerSize+payloadLengthPrefixSize+len(m.Payload))
	offset := 0
	buf[offset] = m.Header.Version
	offset += headerVersionSize
	buf[offset] = uint8(m.Header.Type)
	offset += headerTypeSize
	buf[offset] = m.Header.TTL
	offset += headerTTLSize
	binary.BigEndian.PutUint64(buf[offset:], uint64(m.Header.Timestamp))
	offset += headerTimestampSize
	copy(buf[offset:], m.Header.Sender[:])
	offset += headerSenderSize
	copy(buf[offset:], m.Header.Signature[:])
	offset += headerSignatureSize
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(m.Payload)))
	offset += payloadLengthPrefixSize
	copy(buf[offset:], m.Payload)
	return buf
}

// canonicalForSigning returns the encoding used as sole input to signing
// and content hashing: identical to Encode except the signature field is
// zero-filled and TTL is pinned to zero.
//
// TTL is excluded because it is the one header field a relay mutates in
// place (I3: forwarded TTL = received TTL − 1) — if it were part of the
// signed bytes, decrementing it at each hop would invalidate the
// originator's signature, which would violate "signatures must cover the
// same canonical bytes on sender and receiver". Pinning it to a fixed
// value keeps the signed preimage identical across every hop of a
// message's lifetime.
func (m *Message) canonicalForSigning() []byte {
	clone := *m
	clone.Header.Signature = crypto.Signature{}
	clone.Header.TTL = 0
	return clone.Encode()
}

// Decode parses a canonical wire message from buf. It does not verify the
// signature; call Verify separately once the sender's public key is known
// to be trustworthy for this message's claimed Sender field.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < headerSize+payloadLengthPrefixSize {
		return nil, ErrTruncated
	}

	offset := 0
	version := buf[offset]
	offset += headerVersionSize
	if version != CurrentVersion {
		return nil, ErrUnsupportedVersion
	}

	msgType := Type(buf[offset])
	offset += headerTypeSize

	ttl := buf[offset]
	offset += headerTTLSize

	timestamp := int64(binary.BigEndian.Uint64(buf[offset:]))
	offset += headerTimestampSize

	var sender [32]byte
	copy(sender[:], buf[offset:offset+headerSenderSize])
	offset += headerSenderSize

	var signature crypto.Signature
	copy(signature[:], buf[offset:offset+headerSignatureSize])
	offset += headerSignatureSize

	payloadLen := binary.BigEndian.Uint32(buf[offset:])
	offset += payloadLengthPrefixSize

	if uint32(len(buf)-offset) != payloadLen {
		return nil, ErrPayloadLength
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[offset:])

	return &Message{
		Header: Header{
			Version:   version,
			Type:      msgType,
			TTL:       ttl,
			Timestamp: timestamp,
			Sender:    sender,
			Signature: signature,
		},
		Payload: payload,
	}, nil
}

// Sign computes the signature over the canonical encoding (signature
// zeroed) and stores it in m.Header.Signature.
func (m *Message) Sign(privateKey [32]byte) error {
	sig, err := crypto.Sign(m.canonicalForSigning(), privateKey)
	if err != nil {
		return fmt.Errorf("wire: sign message: %w", err)
	}
	m.Header.Signature = sig
	return nil
}

// Verify checks m.Header.Signature against m.Header.Sender over the
// canonical (signature-zeroed) encoding.
func (m *Message) Verify() (bool, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Message.Verify",
		"package":  "wire",
		"type":     m.Header.Type.String(),
	})

	ok, err := crypto.Verify(m.canonicalForSigning(), m.Header.Signature, m.Header.Sender)
	if err != nil {
		logger.WithError(err).Debug("signature verification errored")
		return false, err
	}
	if !ok {
		logger.Debug("signature verification failed")
	}
	return ok, nil
}

// ContentHash returns the deduplication key: a digest over the canonical
// (signature-zeroed) encoding. Two messages with the same content hash are
// treated as the same message regardless of TTL, which is mutated on
// forward.
func (m *Message) ContentHash() crypto.ContentHash {
	return crypto.HashContent(m.canonicalForSigning())
}

// DecrementTTL returns a shallow copy of m with TTL reduced by one. It does
// not mutate m; relay forwarding always works from a copy so the
// originator's in-memory message (if retained for retry) keeps its TTL.
func (m *Message) DecrementTTL() *Message {
	clone := *m
	if clone.Header.TTL > 0 {
		clone.Header.TTL--
	}
	return &clone
}

// Expired reports whether TTL has reached zero and the message must be
// dropped rather than forwarded further.
func (m *Message) Expired() bool {
	return m.Header.TTL == 0
}
