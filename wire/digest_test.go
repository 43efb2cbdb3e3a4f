package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
)

func TestDigestEncodeDecodeRoundTrip(t *testing.T) {
	d := &Digest{Hashes: []crypto.ContentHash{{1, 2, 3}, {4, 5, 6}}}
	decoded, err := DecodeDigest(d.Encode())
	require.NoError(t, err)
	assert.Equal(t, d.Hashes, decoded.Hashes)
}

func TestDigestEncodeDecodeEmpty(t *testing.T) {
	d := &Digest{}
	decoded, err := DecodeDigest(d.Encode())
	require.NoError(t, err)
	assert.Empty(t, decoded.Hashes)
}

func TestDecodeDigestTruncatedFails(t *testing.T) {
	_, err := DecodeDigest([]byte{0x00})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDigestReplyEncodeDecodeRoundTrip(t *testing.T) {
	r := &DigestReply{Messages: [][]byte{[]byte("first"), []byte("second-message")}}
	decoded, err := DecodeDigestReply(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, r.Messages, decoded.Messages)
}

func TestDecodeDigestReplyTruncatedFails(t *testing.T) {
	_, err := DecodeDigestReply([]byte{0x00, 0x02})
	assert.ErrorIs(t, err, ErrTruncated)
}
