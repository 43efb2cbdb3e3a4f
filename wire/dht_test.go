package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
)

func TestFindNodeRequestRoundTrip(t *testing.T) {
	req := &FindNodeRequest{RequestID: 42, Target: crypto.NodeID{1, 2, 3}}
	decoded, err := DecodeFindNodeRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestFoundNodesReplyRoundTrip(t *testing.T) {
	reply := &FoundNodesReply{RequestID: 7, Contacts: []crypto.NodeID{{1}, {2}, {3}}}
	decoded, err := DecodeFoundNodesReply(reply.Encode())
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)
}

func TestFindValueRequestRoundTrip(t *testing.T) {
	req := &FindValueRequest{RequestID: 9, Key: crypto.ContentHash{9, 9}}
	decoded, err := DecodeFindValueRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestFoundValueReplyRoundTripWithValue(t *testing.T) {
	reply := &FoundValueReply{RequestID: 1, Found: true, Value: []byte("hello"), Contacts: nil}
	decoded, err := DecodeFoundValueReply(reply.Encode())
	require.NoError(t, err)
	assert.Equal(t, reply.RequestID, decoded.RequestID)
	assert.Equal(t, reply.Found, decoded.Found)
	assert.Equal(t, reply.Value, decoded.Value)
	assert.Empty(t, decoded.Contacts)
}

func TestFoundValueReplyRoundTripWithContactsOnly(t *testing.T) {
	reply := &FoundValueReply{RequestID: 2, Found: false, Contacts: []crypto.NodeID{{4}, {5}}}
	decoded, err := DecodeFoundValueReply(reply.Encode())
	require.NoError(t, err)
	assert.Equal(t, reply.Contacts, decoded.Contacts)
	assert.False(t, decoded.Found)
	assert.Empty(t, decoded.Value)
}

func TestStoreRequestRoundTrip(t *testing.T) {
	req := &StoreRequest{RequestID: 3, Key: crypto.ContentHash{1}, Value: []byte("payload"), TTLSeconds: 3600}
	decoded, err := DecodeStoreRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestStoreAckRoundTrip(t *testing.T) {
	ack := &StoreAck{RequestID: 4, OK: true}
	decoded, err := DecodeStoreAck(ack.Encode())
	require.NoError(t, err)
	assert.Equal(t, ack, decoded)
}

func TestDecodeTruncatedDHTPayloadsReturnError(t *testing.T) {
	_, err := DecodeFindNodeRequest([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DecodeFoundNodesReply([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DecodeStoreRequest([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}
