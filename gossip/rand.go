package gossip

import "math/rand"

// defaultRandSource wraps the package-level math/rand functions behind
// RandSource so production code doesn't need to thread a *rand.Rand
// through Config unless a test wants determinism.
type defaultRandSource struct{}

func (defaultRandSource) Float64() float64 { return rand.Float64() }
func (defaultRandSource) Intn(n int) int   { return rand.Intn(n) }
