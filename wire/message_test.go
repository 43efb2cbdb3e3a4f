package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
)

func newSignedMessage(t *testing.T, typ Type, payload []byte) (*Message, *crypto.Identity) {
	t.Helper()
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	msg := &Message{
		Header: Header{
			Version:   CurrentVersion,
			Type:      typ,
			TTL:       8,
			Timestamp: time.Now().UnixMilli(),
			Sender:    kp.Public,
		},
		Payload: payload,
	}
	require.NoError(t, msg.Sign(kp.Private))
	return msg, kp
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, []byte("hello mesh"))

	encoded := msg.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, msg.Header.Version, decoded.Header.Version)
	assert.Equal(t, msg.Header.Type, decoded.Header.Type)
	assert.Equal(t, msg.Header.TTL, decoded.Header.TTL)
	assert.Equal(t, msg.Header.Timestamp, decoded.Header.Timestamp)
	assert.Equal(t, msg.Header.Sender, decoded.Header.Sender)
	assert.Equal(t, msg.Header.Signature, decoded.Header.Signature)
	assert.Equal(t, msg.Payload, decoded.Payload)
}

func TestMessageSignatureVerifies(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeControlPing, nil)
	ok, err := msg.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMessageSignatureRejectsTamperedPayload(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, []byte("original"))
	msg.Payload = []byte("tampered!")

	ok, err := msg.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageSignatureSurvivesTTLMutation(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, []byte("payload"))
	decremented := msg.DecrementTTL()

	ok, err := decremented.Verify()
	require.NoError(t, err)
	assert.True(t, ok, "TTL is excluded from the canonical signing input so decrementing must not invalidate the signature")
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, []byte("x"))
	encoded := msg.Encode()
	encoded[0] = 99

	_, err := Decode(encoded)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeRejectsPayloadLengthMismatch(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, []byte("x"))
	encoded := msg.Encode()
	truncated := encoded[:len(encoded)-1]

	_, err := Decode(truncated)
	assert.ErrorIs(t, err, ErrPayloadLength)
}

func TestContentHashStableAcrossTTL(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, []byte("stable"))
	h1 := msg.ContentHash()
	h2 := msg.DecrementTTL().ContentHash()
	assert.Equal(t, h1, h2)
}

func TestContentHashChangesWithPayload(t *testing.T) {
	a, kp := newSignedMessage(t, TypeText, []byte("a"))
	b := &Message{Header: a.Header, Payload: []byte("b")}
	require.NoError(t, b.Sign(kp.Private))

	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}

func TestExpiredAtZeroTTL(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, nil)
	msg.Header.TTL = 1

	decremented := msg.DecrementTTL()
	assert.True(t, decremented.Expired())
	assert.False(t, msg.Expired())
}

func TestDecrementTTLFloorsAtZero(t *testing.T) {
	msg, _ := newSignedMessage(t, TypeText, nil)
	msg.Header.TTL = 0

	decremented := msg.DecrementTTL()
	assert.Equal(t, uint8(0), decremented.Header.TTL)
}

func TestTypeIsBroadcastSet(t *testing.T) {
	broadcastTypes := []Type{TypePeerDiscovery, TypePeerIntroduction, TypeControlPing, TypeControlPong}
	for _, typ := range broadcastTypes {
		assert.True(t, typ.IsBroadcast(), typ.String())
	}
	assert.False(t, TypeText.IsBroadcast())
	assert.False(t, TypeDHTStore.IsBroadcast())
}
