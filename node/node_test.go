package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/transport"
	"github.com/meshnet/meshcore/wire"
)

func newTestIdentity(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return id
}

func newTestConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Identity:                newTestIdentity(t),
		HeartbeatInterval:       20 * time.Millisecond,
		HealthCheckInterval:     20 * time.Millisecond,
		SessionPresenceInterval: 20 * time.Millisecond,
		OfflineAfter:            200 * time.Millisecond,
		PoorAfter:               100 * time.Millisecond,
	}
}

func TestNewRejectsMissingIdentity(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewBuildsNodeWithDerivedSelf(t *testing.T) {
	cfg := newTestConfig(t)
	n, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, crypto.NodeIDFromPublicKey(cfg.Identity.Public), n.Self())
}

func TestSendMessageRejectsBroadcastSetTypes(t *testing.T) {
	n, err := New(newTestConfig(t))
	require.NoError(t, err)
	err = n.SendMessage(crypto.NodeID{1}, []byte("hi"), wire.TypeControlPing)
	assert.Error(t, err)
}

func TestSendMessageWithoutRouteStillStoresForForward(t *testing.T) {
	n, err := New(newTestConfig(t))
	require.NoError(t, err)
	dest := crypto.NodeID{9, 9, 9}
	err = n.SendMessage(dest, []byte("hello"), wire.TypeText)
	assert.NoError(t, err)
}

func TestBroadcastPushesIntoGossip(t *testing.T) {
	n, err := New(newTestConfig(t))
	require.NoError(t, err)
	err = n.Broadcast([]byte("hello mesh"))
	require.NoError(t, err)
	assert.Equal(t, 1, n.gossip.Stats().BufferedMessages)
}

// twoNodePair builds two Nodes wired together over an in-process Local
// transport pair, started and connected, for integration-style tests.
func twoNodePair(t *testing.T) (a, b *Node, cleanup func()) {
	t.Helper()
	dialer := transport.NewDialer()

	cfgA := newTestConfig(t)
	cfgB := newTestConfig(t)
	// DHT mode puts each connected peer into the K-bucket table, so DHT
	// lookups have someone to query.
	cfgA.RoutingConfig.DHTEnabled = true
	cfgB.RoutingConfig.DHTEnabled = true

	selfA := crypto.NodeIDFromPublicKey(cfgA.Identity.Public)
	selfB := crypto.NodeIDFromPublicKey(cfgB.Identity.Public)

	localA := transport.NewLocal(selfA, dialer)
	localB := transport.NewLocal(selfB, dialer)

	a, err := New(cfgA, localA)
	require.NoError(t, err)
	b, err = New(cfgB, localB)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.ConnectToPeer(ctx, selfB, transport.KindLocal, ""))

	require.Eventually(t, func() bool {
		_, ok := a.routes.Peer(selfB)
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := b.routes.Peer(selfA)
		return ok
	}, time.Second, 5*time.Millisecond)

	return a, b, func() {
		_ = a.Stop()
		_ = b.Stop()
	}
}

func TestSendMessageDeliversDirectlyToConnectedPeer(t *testing.T) {
	a, b, cleanup := twoNodePair(t)
	defer cleanup()

	var mu sync.Mutex
	var gotBody []byte
	b.OnMessage(func(from crypto.NodeID, msg *wire.Message) {
		payload, err := wire.DecodeUnicastPayload(msg.Payload)
		if err != nil {
			return
		}
		mu.Lock()
		gotBody = payload.Body
		mu.Unlock()
	})

	selfB := b.Self()
	require.NoError(t, a.SendMessage(selfB, []byte("ping"), wire.TypeText))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(gotBody) == "ping"
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeatUpdatesRouteMetrics(t *testing.T) {
	a, b, cleanup := twoNodePair(t)
	defer cleanup()

	selfB := b.Self()
	require.Eventually(t, func() bool {
		peer, ok := a.routes.Peer(selfB)
		return ok && peer.LastSeen.After(time.Time{})
	}, time.Second, 5*time.Millisecond)

	// A heartbeat round trip (PING from a, PONG from b) should occur
	// within a couple of intervals given the 20ms test configuration.
	require.Eventually(t, func() bool {
		return a.Stats().HeartbeatsSent > 0
	}, time.Second, 5*time.Millisecond)
	// The PONG's echoed timestamp feeds a successful RTT sample into a's
	// metrics for b.
	require.Eventually(t, func() bool {
		peer, ok := a.routes.Peer(selfB)
		return ok && peer.SuccessCount > 0
	}, time.Second, 5*time.Millisecond)
}

func TestDHTFindNodeRoundTripsBetweenTwoNodes(t *testing.T) {
	a, b, cleanup := twoNodePair(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	contacts := a.FindNode(ctx, b.Self())
	assert.Contains(t, contacts, b.Self())
}

func TestDHTStoreAndFindValueRoundTrip(t *testing.T) {
	a, b, cleanup := twoNodePair(t)
	defer cleanup()
	_ = b

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := crypto.ContentHash{1, 2, 3}
	require.NoError(t, a.DHTStore(ctx, key, []byte("payload"), time.Minute))

	value, found := a.FindValue(ctx, key)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), value)
}
