package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIDFromPublicKeyDeterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	a := NodeIDFromPublicKey(kp.Public)
	b := NodeIDFromPublicKey(kp.Public)
	assert.Equal(t, a, b)
}

func TestParseNodeIDNormalizes(t *testing.T) {
	id := NodeIDFromPublicKey([32]byte{1, 2, 3})
	upper := strings.ToUpper(id.String())

	parsed, err := ParseNodeID("  " + upper + "  ")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseNodeIDRejectsMalformed(t *testing.T) {
	_, err := ParseNodeID("not-hex")
	assert.ErrorIs(t, err, ErrInvalidNodeID)

	_, err = ParseNodeID("aabbcc")
	assert.ErrorIs(t, err, ErrInvalidNodeID)
}

func TestNodeIDXorSelfIsZero(t *testing.T) {
	id := NodeIDFromPublicKey([32]byte{9, 9, 9})
	assert.True(t, id.Xor(id).IsZero())
}

func TestNodeIDBitLen(t *testing.T) {
	var zero NodeID
	assert.Equal(t, 0, zero.BitLen())

	var one NodeID
	one[31] = 1
	assert.Equal(t, 1, one.BitLen())

	var high NodeID
	high[0] = 0x80
	assert.Equal(t, 256, high.BitLen())
}

func TestNodeIDLessIsDeterministicTotalOrder(t *testing.T) {
	var a, b NodeID
	a[31] = 1
	b[31] = 2
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
