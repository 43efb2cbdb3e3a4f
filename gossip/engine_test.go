package gossip

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

type fakeGossipClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeGossipClock) Now() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.now }
func (c *fakeGossipClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}
func (c *fakeGossipClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedRand picks push or pull by comparing floatValue against the
// push/pull ratio (0 always pushes, 0.99 pulls at the default ratio) and
// always picks the first candidate in any shuffle (Intn returns 0),
// giving deterministic tests.
type fixedRand struct {
	floatValue float64
}

func (f fixedRand) Float64() float64 { return f.floatValue }
func (f fixedRand) Intn(n int) int   { return 0 }

type gossipRecordingSender struct {
	mu   sync.Mutex
	sent map[crypto.NodeID][][]byte
}

func newGossipRecordingSender() *gossipRecordingSender {
	return &gossipRecordingSender{sent: make(map[crypto.NodeID][][]byte)}
}

func (s *gossipRecordingSender) Send(peer crypto.NodeID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[peer] = append(s.sent[peer], data)
	return nil
}

func (s *gossipRecordingSender) countFor(peer crypto.NodeID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[peer])
}

func newGossipTestTable(t *testing.T) (*routing.Table, crypto.NodeID) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	return routing.New(self, routing.Config{TimeProvider: crypto.DefaultTimeProvider{}}), self
}

func addGossipConnectedPeer(t *testing.T, tbl *routing.Table) crypto.NodeID {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	id := crypto.NodeIDFromPublicKey(kp.Public)
	_, err = tbl.AddPeer(id, kp.Public, transport.KindLocal)
	require.NoError(t, err)
	require.True(t, tbl.SetPeerState(id, routing.StateConnected))
	return id
}

func testSigner(kp *crypto.Identity) Signer {
	return func(msg *wire.Message) error { return msg.Sign(kp.Private) }
}

func newGossipedMessage(t *testing.T, kp *crypto.Identity, typ wire.Type) *wire.Message {
	t.Helper()
	msg := &wire.Message{
		Header: wire.Header{
			Version:   wire.CurrentVersion,
			Type:      typ,
			TTL:       4,
			Timestamp: time.Now().UnixMilli(),
			Sender:    kp.Public,
		},
		Payload: []byte("gossip payload"),
	}
	require.NoError(t, msg.Sign(kp.Private))
	return msg
}

func TestPushRoundSendsBufferedMessagesToFanoutPeers(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	peerA := addGossipConnectedPeer(t, tbl)
	peerB := addGossipConnectedPeer(t, tbl)

	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	clock := &fakeGossipClock{now: time.Now()}
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{
		TimeProvider: clock,
		Fanout:       2,
		Rand:         fixedRand{floatValue: 0},
	})
	e.Push(newGossipedMessage(t, kp, wire.TypeSessionPresence))

	e.gossipRound()

	assert.Equal(t, 1, sender.countFor(peerA))
	assert.Equal(t, 1, sender.countFor(peerB))
	assert.Equal(t, uint64(1), e.Stats().PushRounds)
}

func TestPullRoundSendsSignedDigest(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	peer := addGossipConnectedPeer(t, tbl)

	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	clock := &fakeGossipClock{now: time.Now()}
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{
		TimeProvider: clock,
		Fanout:       1,
		Rand:         fixedRand{floatValue: 0.99},
	})
	e.Push(newGossipedMessage(t, kp, wire.TypeSessionPresence))

	e.gossipRound()

	require.Equal(t, 1, sender.countFor(peer))
	sent := sender.sent[peer][0]
	decoded, err := wire.Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeGossipDigest, decoded.Header.Type)
	ok, err := decoded.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandleDigestRepliesWithMissingMessages(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	clock := &fakeGossipClock{now: time.Now()}
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{TimeProvider: clock})
	msg := newGossipedMessage(t, kp, wire.TypeSessionPresence)
	e.Push(msg)

	from := addGossipConnectedPeer(t, tbl)
	emptyDigest := &wire.Digest{}
	digestMsg := &wire.Message{
		Header:  wire.Header{Version: wire.CurrentVersion, Type: wire.TypeGossipDigest, TTL: 1, Sender: from},
		Payload: emptyDigest.Encode(),
	}

	e.HandleDigest(from, digestMsg)

	require.Equal(t, 1, sender.countFor(from))
	reply, err := wire.Decode(sender.sent[from][0])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeGossipDigestReply, reply.Header.Type)

	decodedReply, err := wire.DecodeDigestReply(reply.Payload)
	require.NoError(t, err)
	require.Len(t, decodedReply.Messages, 1)
}

func TestHandleDigestWithNothingMissingSendsNoReply(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{})
	msg := newGossipedMessage(t, kp, wire.TypeSessionPresence)
	e.Push(msg)

	from := addGossipConnectedPeer(t, tbl)
	fullDigest := &wire.Digest{Hashes: []crypto.ContentHash{msg.ContentHash()}}
	digestMsg := &wire.Message{
		Header:  wire.Header{Version: wire.CurrentVersion, Type: wire.TypeGossipDigest, TTL: 1, Sender: from},
		Payload: fullDigest.Encode(),
	}

	e.HandleDigest(from, digestMsg)

	assert.Equal(t, 0, sender.countFor(from))
}

func TestHandleDigestReplyLearnsNewMessageAndNotifiesListeners(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{})

	var learned *wire.Message
	e.OnMessage(func(from crypto.NodeID, msg *wire.Message) {
		learned = msg
	})

	innerMsg := newGossipedMessage(t, kp, wire.TypeRendezvousAnnounce)
	reply := &wire.DigestReply{Messages: [][]byte{innerMsg.Encode()}}
	replyEnvelope := &wire.Message{
		Header:  wire.Header{Version: wire.CurrentVersion, Type: wire.TypeGossipDigestReply, TTL: 1},
		Payload: reply.Encode(),
	}

	from := addGossipConnectedPeer(t, tbl)
	e.HandleDigestReply(from, replyEnvelope)

	require.NotNil(t, learned)
	assert.Equal(t, innerMsg.ContentHash(), learned.ContentHash())
	assert.Equal(t, uint64(1), e.Stats().MessagesLearned)
	assert.Equal(t, 1, e.Stats().BufferedMessages)
}

func TestEscalatePromotesStarvedEntry(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	clock := &fakeGossipClock{now: time.Now()}
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{
		TimeProvider:        clock,
		EscalationThreshold: time.Second,
	})
	msg := newGossipedMessage(t, kp, wire.TypeFileMetadata)
	e.Push(msg)

	clock.advance(2 * time.Second)
	e.escalate()

	e.mu.Lock()
	ent := e.entries[msg.ContentHash()]
	e.mu.Unlock()
	require.NotNil(t, ent)
	assert.Equal(t, wire.PriorityFileChunk, ent.effectiveClass)
}

func TestPruneRemovesExpiredEntries(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	clock := &fakeGossipClock{now: time.Now()}
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{
		TimeProvider:  clock,
		MaxMessageAge: time.Minute,
	})
	msg := newGossipedMessage(t, kp, wire.TypeText)
	e.Push(msg)

	clock.advance(2 * time.Minute)
	e.prune()

	assert.Equal(t, 0, e.Stats().BufferedMessages)
	assert.Equal(t, uint64(1), e.Stats().Pruned)
}

func TestPushIsIdempotentForDuplicateContentHash(t *testing.T) {
	tbl, self := newGossipTestTable(t)
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	sender := newGossipRecordingSender()

	e := New(self, kp.Public, tbl, sender, testSigner(kp), Config{})
	msg := newGossipedMessage(t, kp, wire.TypeText)
	e.Push(msg)
	e.Push(msg)

	assert.Equal(t, 1, e.Stats().BufferedMessages)
}
