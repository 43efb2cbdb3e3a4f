package routing

import (
	"time"

	"github.com/meshnet/meshcore/crypto"
)

// RouteMetrics carries the feedback signals update_route_metrics folds
// into a Route and that the conflict policy and ranking consult.
type RouteMetrics struct {
	HopCount      int
	LatencyMs     float64
	Reliability   float64 // EMA in [0,1]
	BandwidthBps  *float64
	LastUsed      time.Time
}

// Route maps a destination to the next hop that reaches it.
type Route struct {
	Destination crypto.NodeID
	NextHop     crypto.NodeID
	HopCount    int
	CreatedAt   time.Time
	Metrics     RouteMetrics
	ExpiresAt   time.Time
}

// expiredAt reports whether the route's expiry has passed at instant now.
func (r *Route) expiredAt(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// wins implements the conflict policy: whether candidate replaces
// incumbent. Each clause is evaluated in order; the first that
// distinguishes the two routes decides.
func wins(candidate, incumbent *Route, now time.Time) bool {
	if incumbent.expiredAt(now) {
		return true
	}
	if candidate.HopCount != incumbent.HopCount {
		return candidate.HopCount < incumbent.HopCount
	}
	if candidate.Metrics.LatencyMs != incumbent.Metrics.LatencyMs {
		return candidate.Metrics.LatencyMs < incumbent.Metrics.LatencyMs
	}
	if candidate.Metrics.Reliability != incumbent.Metrics.Reliability {
		return candidate.Metrics.Reliability > incumbent.Metrics.Reliability
	}
	candidateBW, incumbentBW := bandwidthOf(candidate), bandwidthOf(incumbent)
	if candidateBW != incumbentBW {
		return candidateBW > incumbentBW
	}
	return candidate.CreatedAt.After(incumbent.CreatedAt)
}

func bandwidthOf(r *Route) float64 {
	if r.Metrics.BandwidthBps == nil {
		return 0
	}
	return *r.Metrics.BandwidthBps
}
