package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
)

func newTestKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestNoiseSessionHandshakeAndEncryptedRoundTrip(t *testing.T) {
	dialer := NewDialer()
	kpA := newTestKeyPair(t)
	kpB := newTestKeyPair(t)
	idA := crypto.NodeIDFromPublicKey(kpA.Public)
	idB := crypto.NodeIDFromPublicKey(kpB.Public)

	localA := NewLocal(idA, dialer)
	localB := NewLocal(idB, dialer)

	sessionA := NewNoiseSession(localA, kpA.Private[:])
	sessionB := NewNoiseSession(localB, kpB.Private[:])

	connectedB := make(chan crypto.NodeID, 1)
	receivedB := make(chan []byte, 1)
	require.NoError(t, sessionB.Start(Callbacks{
		OnPeerConnected: func(peer crypto.NodeID) { connectedB <- peer },
		OnMessage:       func(peer crypto.NodeID, data []byte) { receivedB <- data },
	}))

	connectedA := make(chan crypto.NodeID, 1)
	require.NoError(t, sessionA.Start(Callbacks{
		OnPeerConnected: func(peer crypto.NodeID) { connectedA <- peer },
	}))

	require.NoError(t, sessionA.Connect(context.Background(), idB, ""))

	select {
	case peer := <-connectedA:
		assert.Equal(t, idB, peer)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initiator handshake completion")
	}
	select {
	case peer := <-connectedB:
		assert.Equal(t, idA, peer)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for responder handshake completion")
	}

	require.NoError(t, sessionA.Send(idB, []byte("encrypted payload")))
	select {
	case data := <-receivedB:
		assert.Equal(t, []byte("encrypted payload"), data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decrypted message")
	}
}

func TestNoiseSessionSendBeforeHandshakeFails(t *testing.T) {
	dialer := NewDialer()
	kpA := newTestKeyPair(t)
	idA := crypto.NodeIDFromPublicKey(kpA.Public)
	localA := NewLocal(idA, dialer)
	sessionA := NewNoiseSession(localA, kpA.Private[:])
	require.NoError(t, sessionA.Start(Callbacks{}))

	err := sessionA.Send(newTestNodeID(t), []byte("x"))
	assert.ErrorIs(t, err, ErrPeerNotFound)
}
