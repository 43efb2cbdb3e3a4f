package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/wire"
)

func signerFor(t *testing.T, kp *crypto.Identity) Signer {
	t.Helper()
	return func(msg *wire.Message) error {
		return msg.Sign(kp.Private)
	}
}

func TestFragmentForSendSmallPayloadProducesOneCarrier(t *testing.T) {
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	header := wire.Header{
		Version:   1,
		Type:      wire.TypeText,
		TTL:       4,
		Timestamp: time.Now().UnixMilli(),
		Sender:    kp.Public,
	}

	carriers, err := FragmentForSend(header, []byte("hello mesh"), 1500, signerFor(t, kp))
	require.NoError(t, err)
	require.Len(t, carriers, 1)
	assert.Equal(t, wire.TypeFileChunk, carriers[0].Header.Type)
}

func TestFragmentForSendLargePayloadProducesMultipleCarriers(t *testing.T) {
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	header := wire.Header{
		Version:   1,
		Type:      wire.TypeFileMetadata,
		TTL:       4,
		Timestamp: time.Now().UnixMilli(),
		Sender:    kp.Public,
	}

	large := make([]byte, 3*wire.MinFragmentSize)
	carriers, err := FragmentForSend(header, large, wire.MinFragmentSize+64, signerFor(t, kp))
	require.NoError(t, err)
	assert.Greater(t, len(carriers), 1)
	for _, c := range carriers {
		assert.Equal(t, wire.TypeFileChunk, c.Header.Type)
	}
}

func TestHandleFragmentCarrierReassemblesAndDeliversLocally(t *testing.T) {
	tbl, self := newFloodTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	header := wire.Header{
		Version:   1,
		Type:      wire.TypePeerDiscovery,
		TTL:       4,
		Timestamp: time.Now().UnixMilli(),
		Sender:    kp.Public,
	}
	large := make([]byte, 3*wire.MinFragmentSize)
	for i := range large {
		large[i] = byte(i)
	}
	carriers, err := FragmentForSend(header, large, wire.MinFragmentSize+64, signerFor(t, kp))
	require.NoError(t, err)
	require.Greater(t, len(carriers), 1)

	sender := newRecordingSender()
	r := New(self, tbl, sender, nil, Config{})

	var delivered *wire.Message
	r.OnMessage(func(from crypto.NodeID, msg *wire.Message) {
		delivered = msg
	})

	from := addConnectedPeer(t, tbl)
	for _, carrier := range carriers {
		r.handleFragmentCarrier(from, carrier)
	}

	require.NotNil(t, delivered)
	assert.Equal(t, large, delivered.Payload)
	assert.Equal(t, wire.TypePeerDiscovery, delivered.Header.Type)
}

func TestHandleFragmentCarrierMalformedPayloadIsDropped(t *testing.T) {
	tbl, self := newFloodTestTable(t)
	sender := newRecordingSender()
	r := New(self, tbl, sender, nil, Config{})

	bogus := &wire.Message{
		Header:  wire.Header{Version: 1, Type: wire.TypeFileChunk, TTL: 4},
		Payload: []byte{0x01},
	}
	r.handleFragmentCarrier(crypto.NodeID{}, bogus)

	assert.Equal(t, uint64(1), r.Stats().Drops[DropDecodeFailed])
}
