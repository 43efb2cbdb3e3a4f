package dht

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// LookupConfig tunes an iterative lookup.
type LookupConfig struct {
	Alpha        int
	K            int
	MaxRounds    int
	QueryTimeout time.Duration
}

func (c LookupConfig) withDefaults() LookupConfig {
	out := c
	if out.Alpha <= 0 {
		out.Alpha = Alpha
	}
	if out.K <= 0 {
		out.K = K
	}
	if out.MaxRounds <= 0 {
		out.MaxRounds = DefaultMaxRounds
	}
	if out.QueryTimeout <= 0 {
		out.QueryTimeout = DefaultQueryTimeout
	}
	return out
}

type shortlistEntry struct {
	id       crypto.NodeID
	distance crypto.NodeID
	queried  bool
}

// shortlist is the iterative-lookup working set: candidates ordered by
// ascending distance to target, tracking which have already been queried.
type shortlist struct {
	target  crypto.NodeID
	entries []shortlistEntry
	seen    map[crypto.NodeID]bool
}

func newShortlist(target crypto.NodeID, seed []crypto.NodeID) *shortlist {
	sl := &shortlist{target: target, seen: make(map[crypto.NodeID]bool)}
	for _, id := range seed {
		sl.insert(id)
	}
	return sl
}

func (sl *shortlist) insert(id crypto.NodeID) bool {
	if sl.seen[id] {
		return false
	}
	sl.seen[id] = true
	sl.entries = append(sl.entries, shortlistEntry{id: id, distance: id.Xor(sl.target)})
	sort.Slice(sl.entries, func(i, j int) bool {
		return sl.entries[i].distance.Less(sl.entries[j].distance)
	})
	return true
}

// unqueriedClosest returns up to n unqueried entries, closest first.
func (sl *shortlist) unqueriedClosest(n int) []crypto.NodeID {
	var out []crypto.NodeID
	for i := range sl.entries {
		if len(out) >= n {
			break
		}
		if !sl.entries[i].queried {
			out = append(out, sl.entries[i].id)
		}
	}
	return out
}

func (sl *shortlist) markQueried(id crypto.NodeID) {
	for i := range sl.entries {
		if sl.entries[i].id == id {
			sl.entries[i].queried = true
			return
		}
	}
}

func (sl *shortlist) closestID() (crypto.NodeID, bool) {
	if len(sl.entries) == 0 {
		return crypto.NodeID{}, false
	}
	return sl.entries[0].id, true
}

func (sl *shortlist) closest(k int) []crypto.NodeID {
	if k > len(sl.entries) {
		k = len(sl.entries)
	}
	out := make([]crypto.NodeID, k)
	for i := 0; i < k; i++ {
		out[i] = sl.entries[i].id
	}
	return out
}

// FindNode performs an iterative FIND_NODE lookup for target, seeded
// with the local table's own closest known contacts, returning up to
// cfg.K closest contacts observed across the whole lookup.
func (t *Table) FindNode(ctx context.Context, sender Sender, feedback ReliabilityFeedback, target crypto.NodeID, cfg LookupConfig) []crypto.NodeID {
	cfg = cfg.withDefaults()
	logger := logrus.WithFields(logrus.Fields{
		"function": "Table.FindNode",
		"package":  "dht",
		"target":   target.String(),
	})

	seed := t.FindClosestContacts(target, cfg.K)
	if len(seed) == 0 {
		logger.Debug("find_node: empty shortlist, returning empty result")
		return nil
	}
	sl := newShortlist(target, seed)

	for round := 0; round < cfg.MaxRounds; round++ {
		batch := sl.unqueriedClosest(cfg.Alpha)
		if len(batch) == 0 {
			break
		}

		closestBefore, _ := sl.closestID()
		distanceBefore := closestBefore.Xor(target)

		results := t.queryBatchFindNode(ctx, sender, feedback, batch, target, cfg, sl)

		anyNewCloser := false
		for _, contacts := range results {
			for _, c := range contacts {
				if c == t.self {
					continue
				}
				if sl.insert(c) {
					if c.Xor(target).Less(distanceBefore) {
						anyNewCloser = true
					}
				}
			}
		}

		if !anyNewCloser {
			break
		}
	}

	return sl.closest(cfg.K)
}

// queryBatchFindNode fires FIND_NODE against batch concurrently and
// returns each peer's reported contacts.
func (t *Table) queryBatchFindNode(ctx context.Context, sender Sender, feedback ReliabilityFeedback, batch []crypto.NodeID, target crypto.NodeID, cfg LookupConfig, sl *shortlist) [][]crypto.NodeID {
	results := make([][]crypto.NodeID, len(batch))
	var wg sync.WaitGroup
	for i, peer := range batch {
		sl.markQueried(peer)
		wg.Add(1)
		go func(i int, peer crypto.NodeID) {
			defer wg.Done()
			queryCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
			defer cancel()

			start := time.Now()
			contacts, err := sender.FindNode(queryCtx, peer, target)
			success := err == nil
			if feedback != nil {
				feedback.UpdateRouteMetrics(peer, float64(time.Since(start).Milliseconds()), success, nil)
			}
			if success {
				results[i] = contacts
			}
		}(i, peer)
	}
	wg.Wait()
	return results
}

// FindValue performs an iterative FIND_VALUE lookup: identical to
// FindNode except any responder that holds the value short-circuits the
// remaining queries (the spec-mandated "first responder with the value
// wins, remaining queries cancelled").
func (t *Table) FindValue(ctx context.Context, sender Sender, feedback ReliabilityFeedback, key crypto.ContentHash, cfg LookupConfig) (value []byte, found bool, contacts []crypto.NodeID) {
	cfg = cfg.withDefaults()
	target := crypto.NodeID(key)

	seed := t.FindClosestContacts(target, cfg.K)
	if len(seed) == 0 {
		return nil, false, nil
	}
	sl := newShortlist(target, seed)

	lookupCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	for round := 0; round < cfg.MaxRounds; round++ {
		batch := sl.unqueriedClosest(cfg.Alpha)
		if len(batch) == 0 {
			break
		}

		closestBefore, _ := sl.closestID()
		distanceBefore := closestBefore.Xor(target)

		type outcome struct {
			peer     crypto.NodeID
			contacts []crypto.NodeID
			value    []byte
			found    bool
			success  bool
			latency  time.Duration
		}
		outcomes := make([]outcome, len(batch))
		var wg sync.WaitGroup
		for i, peer := range batch {
			sl.markQueried(peer)
			wg.Add(1)
			go func(i int, peer crypto.NodeID) {
				defer wg.Done()
				queryCtx, cancel := context.WithTimeout(lookupCtx, cfg.QueryTimeout)
				defer cancel()

				start := time.Now()
				contacts, val, found, err := sender.FindValue(queryCtx, peer, key)
				outcomes[i] = outcome{
					peer: peer, contacts: contacts, value: val, found: found,
					success: err == nil, latency: time.Since(start),
				}
			}(i, peer)
		}
		wg.Wait()

		anyNewCloser := false
		for _, o := range outcomes {
			if feedback != nil {
				feedback.UpdateRouteMetrics(o.peer, float64(o.latency.Milliseconds()), o.success, nil)
			}
			if !o.success {
				continue
			}
			if o.found {
				cancelAll()
				return o.value, true, nil
			}
			for _, c := range o.contacts {
				if c == t.self {
					continue
				}
				if sl.insert(c) && c.Xor(target).Less(distanceBefore) {
					anyNewCloser = true
				}
			}
		}

		if !anyNewCloser {
			break
		}
	}

	return nil, false, sl.closest(cfg.K)
}
