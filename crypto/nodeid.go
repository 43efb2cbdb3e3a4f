package crypto

import (
	"encoding/hex"
	"errors"
	"math/big"
	"math/bits"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// NodeIDSize is the fixed width, in bytes, of a NodeId.
const NodeIDSize = 32

// ErrInvalidNodeID is returned when a hex string does not decode to a
// well-formed NodeId.
var ErrInvalidNodeID = errors.New("invalid node id")

// NodeID is a fixed-width identifier derived from a node's long-term public
// key. It is the domain of the Kademlia XOR metric: two NodeIDs are equal
// iff their normalized (lowercase, unpadded) hex forms are equal.
type NodeID [NodeIDSize]byte

// NodeIDFromPublicKey derives the canonical NodeId for a public key by
// hashing it with blake2b-256. The derivation is deterministic: the same
// public key always yields the same NodeId.
func NodeIDFromPublicKey(publicKey [32]byte) NodeID {
	sum := blake2b.Sum256(publicKey[:])
	var id NodeID
	copy(id[:], sum[:])
	return id
}

// ParseNodeID normalizes (whitespace-stripped, case-folded) and decodes a
// hex string into a NodeID. It rejects malformed input at the boundary
// rather than panicking downstream.
func ParseNodeID(s string) (NodeID, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	raw, err := hex.DecodeString(normalized)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ParseNodeID",
			"input":    s,
			"error":    err.Error(),
		}).Warn("Rejected malformed NodeId hex")
		return NodeID{}, ErrInvalidNodeID
	}
	if len(raw) != NodeIDSize {
		return NodeID{}, ErrInvalidNodeID
	}
	var id NodeID
	copy(id[:], raw)
	return id, nil
}

// String returns the normalized (lowercase hex) representation of the id.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is the all-zero value (never a real
// derived identity; used as a sentinel for "no id").
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Xor returns the bytewise XOR of two NodeIDs, interpreted as a big-endian
// nonnegative integer under Kademlia's distance metric.
func (id NodeID) Xor(other NodeID) NodeID {
	var out NodeID
	for i := range id {
		out[i] = id[i] ^ other[i]
	}
	return out
}

// BitLen returns the position of the highest set bit in the NodeId's
// big-endian integer interpretation (0 if the id is all zero). This is the
// bigint-exact replacement for a floating-point log2, which loses precision
// past 2^53 and cannot be trusted for a 256-bit distance.
func (id NodeID) BitLen() int {
	for i := 0; i < len(id); i++ {
		if id[i] != 0 {
			return (len(id)-1-i)*8 + bits.Len8(id[i])
		}
	}
	return 0
}

// Int returns the NodeId's big-endian big.Int interpretation, for callers
// that need arbitrary-precision distance comparisons beyond BitLen.
func (id NodeID) Int() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Less reports whether id, interpreted as a big-endian integer, is
// numerically less than other. Used to order XOR distances (DHT shortlists
// and bucket scans) and to break ranking ties deterministically.
func (id NodeID) Less(other NodeID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}
