package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/transport"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time                  { return c.current }
func (c *fakeClock) Since(t time.Time) time.Duration { return c.current.Sub(t) }
func (c *fakeClock) advance(d time.Duration)         { c.current = c.current.Add(d) }

func newTestTable(t *testing.T, clock *fakeClock) (*Table, crypto.NodeID) {
	t.Helper()
	selfKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	self := crypto.NodeIDFromPublicKey(selfKP.Public)
	tbl := New(self, Config{TimeProvider: clock})
	return tbl, self
}

func newTestPeerID(t *testing.T) (crypto.NodeID, [32]byte) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return crypto.NodeIDFromPublicKey(kp.Public), kp.Public
}

func TestAddPeerInstallsZeroHopRoute(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)

	peer, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, peer.State)

	nextHop, ok := tbl.GetNextHop(peerID)
	require.True(t, ok)
	assert.Equal(t, peerID, nextHop, "I1: CONNECTED peer must have a zero-hop route to itself")
}

func TestAddPeerRejectsZeroID(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	_, err := tbl.AddPeer(crypto.NodeID{}, [32]byte{}, transport.KindLocal)
	assert.ErrorIs(t, err, ErrInvalidPeer)
}

func TestAddPeerIsIdempotent(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)

	_, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)
	_, err = tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)

	assert.Len(t, tbl.Peers(), 1)
}

func TestRemovePeerDeletesRoutesThroughIt(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)
	_, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)

	dest, _ := newTestPeerID(t)
	ok := tbl.AddRoute(&Route{
		Destination: dest,
		NextHop:     peerID,
		HopCount:    1,
		CreatedAt:   clock.Now(),
		ExpiresAt:   clock.Now().Add(time.Hour),
	})
	require.True(t, ok)

	tbl.RemovePeer(peerID)

	_, ok = tbl.GetNextHop(dest)
	assert.False(t, ok)
	_, ok = tbl.GetNextHop(peerID)
	assert.False(t, ok)
}

func TestAddRouteConflictPolicyFewerHopsWins(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	dest, _ := newTestPeerID(t)
	hopA, _ := newTestPeerID(t)
	hopB, _ := newTestPeerID(t)

	require.True(t, tbl.AddRoute(&Route{Destination: dest, NextHop: hopA, HopCount: 3, CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}))
	// Same hop count, worse latency: should lose.
	assert.False(t, tbl.AddRoute(&Route{Destination: dest, NextHop: hopB, HopCount: 3, Metrics: RouteMetrics{LatencyMs: 999}, CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}))
	// Fewer hops: should win.
	assert.True(t, tbl.AddRoute(&Route{Destination: dest, NextHop: hopB, HopCount: 1, CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}))

	nextHop, ok := tbl.GetNextHop(dest)
	require.True(t, ok)
	assert.Equal(t, hopB, nextHop)
}

func TestAddRouteConflictPolicyExpiredAlwaysLoses(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	dest, _ := newTestPeerID(t)
	hopA, _ := newTestPeerID(t)
	hopB, _ := newTestPeerID(t)

	require.True(t, tbl.AddRoute(&Route{Destination: dest, NextHop: hopA, HopCount: 0, CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Millisecond)}))
	clock.advance(time.Second)

	assert.True(t, tbl.AddRoute(&Route{Destination: dest, NextHop: hopB, HopCount: 5, CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}))
	nextHop, ok := tbl.GetNextHop(dest)
	require.True(t, ok)
	assert.Equal(t, hopB, nextHop)
}

func TestBlacklistExpiresAfterDuration(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)
	_, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)

	tbl.BlacklistPeer(peerID, time.Minute)
	assert.True(t, tbl.IsBlacklisted(peerID))

	clock.advance(2 * time.Minute)
	assert.False(t, tbl.IsBlacklisted(peerID))
}

func TestBlacklistPermanentNeverExpires(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)
	_, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)

	tbl.BlacklistPeer(peerID, 0)
	clock.advance(24 * time.Hour)
	assert.True(t, tbl.IsBlacklisted(peerID))
}

func TestFindClosestPeersExcludesBlacklisted(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)

	var ids []crypto.NodeID
	for i := 0; i < 5; i++ {
		id, pub := newTestPeerID(t)
		_, err := tbl.AddPeer(id, pub, transport.KindWebRTC)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	tbl.BlacklistPeer(ids[0], 0)

	target, _ := newTestPeerID(t)
	closest := tbl.FindClosestPeers(target, 10)
	for _, id := range closest {
		assert.NotEqual(t, ids[0], id)
	}
	assert.Len(t, closest, 4)
}

func TestUpdateRouteMetricsTransitionsDegradedAndBack(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)
	_, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)
	tbl.mu.Lock()
	tbl.peers[peerID].State = StateConnected
	tbl.mu.Unlock()

	var p Peer
	for i := 0; i < 40; i++ {
		tbl.UpdateRouteMetrics(peerID, 10, false, nil)
	}
	p, _ = tbl.Peer(peerID)
	assert.Equal(t, StateDegraded, p.State)
	assert.Less(t, p.Reputation, reputationDegradeBelow)

	// Reputation bottoms out at 0; recovery needs it strictly above 40.
	for i := 0; i < 41; i++ {
		tbl.UpdateRouteMetrics(peerID, 10, true, nil)
	}
	p, _ = tbl.Peer(peerID)
	assert.Equal(t, StateConnected, p.State)
}

func TestGetRankedPeersForTargetDirectMatchWins(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)

	target, targetPub := newTestPeerID(t)
	_, err := tbl.AddPeer(target, targetPub, transport.KindWebRTC)
	require.NoError(t, err)
	tbl.mu.Lock()
	tbl.peers[target].State = StateConnected
	tbl.mu.Unlock()

	other, otherPub := newTestPeerID(t)
	_, err = tbl.AddPeer(other, otherPub, transport.KindWebRTC)
	require.NoError(t, err)
	tbl.mu.Lock()
	tbl.peers[other].State = StateConnected
	tbl.mu.Unlock()

	ranked := tbl.GetRankedPeersForTarget(target)
	require.NotEmpty(t, ranked)
	assert.Equal(t, target, ranked[0].ID)
}

func TestGetRankedPeersForTargetExcludesDisconnected(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	peerID, pubKey := newTestPeerID(t)
	_, err := tbl.AddPeer(peerID, pubKey, transport.KindWebRTC)
	require.NoError(t, err)
	tbl.mu.Lock()
	tbl.peers[peerID].State = StateDisconnected
	tbl.mu.Unlock()

	target, _ := newTestPeerID(t)
	ranked := tbl.GetRankedPeersForTarget(target)
	assert.Empty(t, ranked)
}

func TestFloodCandidatesSmallSetSelectsAll(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	inbound, inboundPub := newTestPeerID(t)
	_, err := tbl.AddPeer(inbound, inboundPub, transport.KindWebRTC)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id, pub := newTestPeerID(t)
		_, err := tbl.AddPeer(id, pub, transport.KindWebRTC)
		require.NoError(t, err)
		tbl.mu.Lock()
		tbl.peers[id].State = StateConnected
		tbl.mu.Unlock()
	}

	candidates := tbl.FloodCandidates(crypto.NodeID{}, inbound)
	assert.Len(t, candidates, 3)
}

func TestFloodCandidatesLargeSetUsesTenPercentCeiling(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)

	for i := 0; i < 60; i++ {
		id, pub := newTestPeerID(t)
		_, err := tbl.AddPeer(id, pub, transport.KindWebRTC)
		require.NoError(t, err)
		tbl.mu.Lock()
		tbl.peers[id].State = StateConnected
		tbl.mu.Unlock()
	}

	// A known recipient takes the ranked path; a zero recipient would be a
	// full broadcast to every connected peer.
	target, _ := newTestPeerID(t)
	candidates := tbl.FloodCandidates(target, crypto.NodeID{})
	assert.Len(t, candidates, 6) // ceil(0.1 * 60) = 6
}

func TestSeenCacheDedupViaTable(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	tbl, _ := newTestTable(t, clock)
	hash := crypto.ContentHash{1, 2, 3}

	assert.False(t, tbl.HasSeen(hash))
	tbl.MarkSeen(hash)
	assert.True(t, tbl.HasSeen(hash))
}
