package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
	"github.com/meshnet/meshcore/transport"
)

const (
	// DefaultRouteTTL is how long a freshly installed direct route lives
	// before add_peer's install would need to refresh it.
	DefaultRouteTTL = 10 * time.Minute
	// DefaultMaxPeers bounds the peer registry (I6).
	DefaultMaxPeers = 2000
	// DefaultMaxRoutes bounds the route table (I6).
	DefaultMaxRoutes = 4000

	floodThreshold      = 5
	directMatchBonus    = 2000.0
	knownRouteBonus     = 300.0
	localTransportBonus = 50.0
	bluetoothPenalty    = 50.0
	tieBreakWindow      = 10.0

	reputationSuccessDelta = 1
	reputationFailureDelta = 2
	reputationDegradeBelow = 20
	reputationRecoverAbove = 40

	reliabilityEMAAlpha = 0.3
)

// Config bounds and tunables for a Table.
type Config struct {
	MaxPeers      int
	MaxRoutes     int
	RouteTTL      time.Duration
	SeenCacheSize int
	SeenCacheTTL  time.Duration
	DHTEnabled    bool
	TimeProvider  crypto.TimeProvider
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxPeers <= 0 {
		out.MaxPeers = DefaultMaxPeers
	}
	if out.MaxRoutes <= 0 {
		out.MaxRoutes = DefaultMaxRoutes
	}
	if out.RouteTTL <= 0 {
		out.RouteTTL = DefaultRouteTTL
	}
	if out.TimeProvider == nil {
		out.TimeProvider = crypto.DefaultTimeProvider{}
	}
	return out
}

// KBucketAdder is the DHT-side hook add_peer invokes when DHT mode is
// active, so a freshly registered peer also becomes a K-bucket contact.
// The dht package's Table satisfies it structurally; neither package
// imports the other.
type KBucketAdder interface {
	AddContact(id crypto.NodeID, lastSeen time.Time) error
}

// Table is the authoritative peer registry and route table.
type Table struct {
	mu     sync.RWMutex
	self   crypto.NodeID
	cfg    Config
	peers  map[crypto.NodeID]*Peer
	routes map[crypto.NodeID]*Route
	seen   *SeenCache
	kbucket KBucketAdder

	logger *logrus.Entry
}

// New creates a Table for the local identity self.
func New(self crypto.NodeID, cfg Config) *Table {
	resolved := cfg.withDefaults()
	return &Table{
		self:   self,
		cfg:    resolved,
		peers:  make(map[crypto.NodeID]*Peer),
		routes: make(map[crypto.NodeID]*Route),
		seen:   NewSeenCache(resolved.SeenCacheSize, resolved.SeenCacheTTL),
		logger: logrus.WithFields(logrus.Fields{"package": "routing"}),
	}
}

// SetKBucketAdder wires the DHT hook used by AddPeer when Config.DHTEnabled.
func (t *Table) SetKBucketAdder(adder KBucketAdder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kbucket = adder
}

func (t *Table) now() time.Time { return t.cfg.TimeProvider.Now() }

// AddPeer normalizes and installs/refreshes a Peer plus its zero-hop
// direct Route. Idempotent.
func (t *Table) AddPeer(id crypto.NodeID, publicKey [32]byte, kind transport.Kind) (*Peer, error) {
	if id.IsZero() {
		return nil, ErrInvalidPeer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	peer, exists := t.peers[id]
	if !exists {
		if len(t.peers) >= t.cfg.MaxPeers {
			t.evictOnePeerLocked()
		}
		peer = NewPeer(id, publicKey, kind, now)
		t.peers[id] = peer
	} else {
		peer.LastSeen = now
		peer.PublicKey = publicKey
		peer.Transport = kind
	}

	t.installDirectRouteLocked(id, now)

	if t.cfg.DHTEnabled && t.kbucket != nil {
		if err := t.kbucket.AddContact(id, now); err != nil {
			t.logger.WithError(err).WithField("peer", id.String()).Debug("k-bucket contact add failed")
		}
	}

	return peer, nil
}

func (t *Table) installDirectRouteLocked(id crypto.NodeID, now time.Time) {
	t.routes[id] = &Route{
		Destination: id,
		NextHop:     id,
		HopCount:    0,
		CreatedAt:   now,
		ExpiresAt:   now.Add(t.cfg.RouteTTL),
		Metrics: RouteMetrics{
			HopCount:    0,
			Reliability: 1,
			LastUsed:    now,
		},
	}
}

// evictOnePeerLocked drops the least-recently-seen peer to stay within
// MaxPeers. Must hold t.mu.
func (t *Table) evictOnePeerLocked() {
	var oldestID crypto.NodeID
	var oldestSeen time.Time
	first := true
	for id, p := range t.peers {
		if first || p.LastSeen.Before(oldestSeen) {
			oldestID = id
			oldestSeen = p.LastSeen
			first = false
		}
	}
	if !first {
		t.removePeerLocked(oldestID)
	}
}

// RemovePeer deletes the Peer and every Route whose next-hop is id.
func (t *Table) RemovePeer(id crypto.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removePeerLocked(id)
}

func (t *Table) removePeerLocked(id crypto.NodeID) {
	delete(t.peers, id)
	for dest, route := range t.routes {
		if route.NextHop == id {
			delete(t.routes, dest)
		}
	}
}

// SetPeerState transitions id's lifecycle state, e.g. when a transport
// reports a completed handshake (CONNECTING -> CONNECTED) or a link drop
// (-> DISCONNECTED). Reports false if id is unknown.
func (t *Table) SetPeerState(id crypto.NodeID, state State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return false
	}
	p.State = state
	return true
}

// Peer returns a copy of the current Peer record for id.
func (t *Table) Peer(id crypto.NodeID) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Peers returns a snapshot copy of every known Peer.
func (t *Table) Peers() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}

// AddRoute inserts route if no conflicting route exists for its
// destination, else replaces the incumbent iff route wins the conflict
// policy. MaxRoutes is enforced by evicting expired routes first, then
// LRU by Metrics.LastUsed.
func (t *Table) AddRoute(route *Route) bool {
	if route.Destination.IsZero() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	incumbent, exists := t.routes[route.Destination]
	if exists && !wins(route, incumbent, now) {
		return false
	}

	if !exists && len(t.routes) >= t.cfg.MaxRoutes {
		t.evictOneRouteLocked(now)
	}

	t.routes[route.Destination] = route
	return true
}

func (t *Table) evictOneRouteLocked(now time.Time) {
	// First pass: drop any expired route.
	for dest, r := range t.routes {
		if r.expiredAt(now) {
			delete(t.routes, dest)
			return
		}
	}
	// Second pass: LRU by Metrics.LastUsed.
	var oldestDest crypto.NodeID
	var oldestUsed time.Time
	first := true
	for dest, r := range t.routes {
		if first || r.Metrics.LastUsed.Before(oldestUsed) {
			oldestDest = dest
			oldestUsed = r.Metrics.LastUsed
			first = false
		}
	}
	if !first {
		delete(t.routes, oldestDest)
	}
}

// GetNextHop returns the next-hop NodeID for dest if a live Route exists,
// garbage-collecting it first if it has expired.
func (t *Table) GetNextHop(dest crypto.NodeID) (crypto.NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	route, ok := t.routes[dest]
	if !ok {
		return crypto.NodeID{}, false
	}
	now := t.now()
	if route.expiredAt(now) {
		delete(t.routes, dest)
		return crypto.NodeID{}, false
	}
	return route.NextHop, true
}

// HasSeen reports whether the given content hash has already been
// observed and not yet expired from the SeenCache.
func (t *Table) HasSeen(hash crypto.ContentHash) bool {
	return t.seen.HasSeen(hash)
}

// MarkSeen records hash as seen as of now.
func (t *Table) MarkSeen(hash crypto.ContentHash) {
	t.seen.MarkSeen(hash, t.now())
}

// UpdateRouteMetrics folds a delivery observation into the Route and the
// owning Peer's success/failure counters, reputation, and state.
func (t *Table) UpdateRouteMetrics(dest crypto.NodeID, latencyMs float64, success bool, bandwidthBps *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	route, ok := t.routes[dest]
	if ok {
		route.Metrics.LatencyMs = latencyMs
		sample := 0.0
		if success {
			sample = 1.0
		}
		route.Metrics.Reliability = reliabilityEMAAlpha*sample + (1-reliabilityEMAAlpha)*route.Metrics.Reliability
		if bandwidthBps != nil {
			route.Metrics.BandwidthBps = bandwidthBps
		}
		route.Metrics.LastUsed = now
	}

	peer, ok := t.peers[routeNextHopOrDest(route, dest)]
	if !ok {
		return
	}

	if success {
		peer.SuccessCount++
		peer.Reputation = clamp(peer.Reputation+reputationSuccessDelta, 0, 100)
	} else {
		peer.FailureCount++
		peer.Reputation = clamp(peer.Reputation-reputationFailureDelta, 0, 100)
	}

	switch {
	case peer.State == StateConnected && peer.Reputation < reputationDegradeBelow:
		peer.State = StateDegraded
	case peer.State == StateDegraded && peer.Reputation > reputationRecoverAbove:
		peer.State = StateConnected
	}
}

func routeNextHopOrDest(route *Route, dest crypto.NodeID) crypto.NodeID {
	if route != nil {
		return route.NextHop
	}
	return dest
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BlacklistPeer blacklists id. A zero duration blacklists permanently.
func (t *Table) BlacklistPeer(id crypto.NodeID, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	peer, ok := t.peers[id]
	if !ok {
		return
	}
	peer.Blacklisted = true
	if duration > 0 {
		peer.BlacklistedUntil = t.now().Add(duration)
	} else {
		peer.BlacklistedUntil = time.Time{}
	}
}

// UnblacklistPeer clears id's blacklist status immediately.
func (t *Table) UnblacklistPeer(id crypto.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if peer, ok := t.peers[id]; ok {
		peer.Blacklisted = false
		peer.BlacklistedUntil = time.Time{}
	}
}

// IsBlacklisted reports id's current blacklist status, lazily expiring a
// stale entry.
func (t *Table) IsBlacklisted(id crypto.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	peer, ok := t.peers[id]
	if !ok {
		return false
	}
	return peer.IsBlacklistedAt(t.now())
}

// FindClosestPeers returns up to k Peers ordered by ascending XOR
// distance to target, excluding blacklisted peers. DHT-mode callers
// should prefer the dht package's K-bucket index for O(log N) lookup;
// this linear scan is the non-DHT fallback and the ground truth the DHT
// index is built to approximate.
func (t *Table) FindClosestPeers(target crypto.NodeID, k int) []crypto.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	type candidate struct {
		id       crypto.NodeID
		distance crypto.NodeID
	}
	candidates := make([]candidate, 0, len(t.peers))
	for id, p := range t.peers {
		if p.IsBlacklistedAt(now) {
			continue
		}
		candidates = append(candidates, candidate{id: id, distance: id.Xor(target)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance.Less(candidates[j].distance)
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]crypto.NodeID, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].id
	}
	return out
}

// RankedPeer is one entry of a get_ranked_peers_for_target result.
type RankedPeer struct {
	ID    crypto.NodeID
	Score float64
}

// GetRankedPeersForTarget scores every known peer (excluding DISCONNECTED
// ones) for adaptive forwarding toward target, per the ranking policy in
// spec §4.1. Ties within tieBreakWindow of score are broken by ascending
// XOR distance to target.
func (t *Table) GetRankedPeersForTarget(target crypto.NodeID) []RankedPeer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]RankedPeer, 0, len(t.peers))
	for id, p := range t.peers {
		if p.State == StateDisconnected {
			continue
		}
		if p.IsBlacklistedAt(now) {
			continue
		}
		out = append(out, RankedPeer{ID: id, Score: t.scoreLocked(p, target)})
	}

	sort.Slice(out, func(i, j int) bool {
		if abs(out[i].Score-out[j].Score) <= tieBreakWindow {
			return out[i].ID.Xor(target).Less(out[j].ID.Xor(target))
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func (t *Table) scoreLocked(p *Peer, target crypto.NodeID) float64 {
	score := float64(p.Quality)

	if p.State == StateDegraded {
		score -= 4 * float64(100-p.Quality)
	}

	if p.ID == target {
		score += directMatchBonus
	} else if route, ok := t.routes[target]; ok && route.NextHop == p.ID {
		score += knownRouteBonus * (float64(p.Quality) / 100)
	}

	score += min(100, p.MeasuredBandwidthBps/100000)
	score += min(50, float64(p.Capabilities.MaxBandwidthBps)/1000000)

	switch p.Transport {
	case transport.KindLocal:
		score += localTransportBonus
	case transport.KindBluetooth:
		score -= bluetoothPenalty
	}

	return score
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// FloodCandidates filters peers eligible as Smart Flood forwarding
// targets: CONNECTED state, excluding self and the inbound peer, then
// returns the top-count candidates ranked toward recipient (or all
// connected peers except excluded when recipient is the zero value,
// i.e. unknown/broadcast).
func (t *Table) FloodCandidates(recipient, inboundPeer crypto.NodeID) []crypto.NodeID {
	if recipient.IsZero() {
		return t.connectedExcept(inboundPeer)
	}

	ranked := t.GetRankedPeersForTarget(recipient)
	candidates := make([]crypto.NodeID, 0, len(ranked))
	t.mu.RLock()
	for _, r := range ranked {
		if r.ID == t.self || r.ID == inboundPeer {
			continue
		}
		if p, ok := t.peers[r.ID]; ok && p.State == StateConnected {
			candidates = append(candidates, r.ID)
		}
	}
	t.mu.RUnlock()

	n := len(candidates)
	count := n
	if n > floodThreshold {
		ceilTenPercent := (n + 9) / 10
		count = ceilTenPercent
		if count < floodThreshold {
			count = floodThreshold
		}
	}
	if count > n {
		count = n
	}
	return candidates[:count]
}

func (t *Table) connectedExcept(exclude crypto.NodeID) []crypto.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]crypto.NodeID, 0, len(t.peers))
	for id, p := range t.peers {
		if id == t.self || id == exclude {
			continue
		}
		if p.State == StateConnected {
			out = append(out, id)
		}
	}
	return out
}
