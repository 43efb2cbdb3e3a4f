package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/routing"
	"github.com/meshnet/meshcore/transport"
	"github.com/meshnet/meshcore/wire"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []crypto.NodeID
	failFor map[crypto.NodeID]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failFor: make(map[crypto.NodeID]bool)}
}

func (s *recordingSender) Send(peer crypto.NodeID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, peer)
	if s.failFor[peer] {
		return assert.AnError
	}
	return nil
}

func (s *recordingSender) sentTo() []crypto.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crypto.NodeID, len(s.sent))
	copy(out, s.sent)
	return out
}

func newFloodTestTable(t *testing.T) (*routing.Table, crypto.NodeID) {
	t.Helper()
	selfKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	self := crypto.NodeIDFromPublicKey(selfKP.Public)
	tbl := routing.New(self, routing.Config{TimeProvider: crypto.DefaultTimeProvider{}})
	return tbl, self
}

func addConnectedPeer(t *testing.T, tbl *routing.Table) crypto.NodeID {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	id := crypto.NodeIDFromPublicKey(kp.Public)
	_, err = tbl.AddPeer(id, kp.Public, transport.KindLocal)
	require.NoError(t, err)
	require.True(t, tbl.SetPeerState(id, routing.StateConnected))
	return id
}

func newSignedBroadcast(t *testing.T, senderKP *crypto.KeyPair) *wire.Message {
	t.Helper()
	msg := &wire.Message{
		Header: wire.Header{
			Version:   1,
			Type:      wire.TypePeerDiscovery,
			TTL:       4,
			Timestamp: time.Now().UnixMilli(),
			Sender:    senderKP.Public,
		},
	}
	require.NoError(t, msg.Sign(senderKP.Private))
	return msg
}

func TestFloodForwardSendsToAllConnectedPeersForBroadcast(t *testing.T) {
	tbl, self := newFloodTestTable(t)
	inbound := addConnectedPeer(t, tbl)
	peerA := addConnectedPeer(t, tbl)
	peerB := addConnectedPeer(t, tbl)

	senderKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	msg := newSignedBroadcast(t, senderKP)

	sender := newRecordingSender()
	r := New(self, tbl, sender, nil, Config{})

	r.floodForward(msg, inbound)

	sentTo := sender.sentTo()
	assert.Contains(t, sentTo, peerA)
	assert.Contains(t, sentTo, peerB)
	assert.NotContains(t, sentTo, inbound, "must never forward back to the inbound peer")
	assert.NotContains(t, sentTo, self)
}

func TestFloodForwardUpdatesStatsOnSuccessAndFailure(t *testing.T) {
	tbl, self := newFloodTestTable(t)
	_ = addConnectedPeer(t, tbl)
	peerB := addConnectedPeer(t, tbl)

	sender := newRecordingSender()
	sender.failFor[peerB] = true

	senderKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	msg := newSignedBroadcast(t, senderKP)

	r := New(self, tbl, sender, nil, Config{})
	r.floodForward(msg, crypto.NodeID{})

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.ForwardSuccess)
	assert.Equal(t, uint64(1), stats.ForwardFailure)
}

func TestFloodForwardWithNoCandidatesIsNoop(t *testing.T) {
	tbl, self := newFloodTestTable(t)
	sender := newRecordingSender()

	senderKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	msg := newSignedBroadcast(t, senderKP)

	r := New(self, tbl, sender, nil, Config{})
	r.floodForward(msg, crypto.NodeID{})

	assert.Empty(t, sender.sentTo())
}

func TestFloodForwardUnicastUsesRecipientRanking(t *testing.T) {
	tbl, self := newFloodTestTable(t)
	recipient := addConnectedPeer(t, tbl)
	other := addConnectedPeer(t, tbl)

	senderKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	payload := &wire.UnicastPayload{Recipient: recipient, Body: []byte("hi")}
	msg := &wire.Message{
		Header: wire.Header{
			Version:   1,
			Type:      wire.TypeText,
			TTL:       4,
			Timestamp: time.Now().UnixMilli(),
			Sender:    senderKP.Public,
		},
		Payload: payload.Encode(),
	}
	require.NoError(t, msg.Sign(senderKP.Private))

	sender := newRecordingSender()
	r := New(self, tbl, sender, nil, Config{})
	r.floodForward(msg, crypto.NodeID{})

	sentTo := sender.sentTo()
	assert.Contains(t, sentTo, recipient)
	assert.Contains(t, sentTo, other)
}
