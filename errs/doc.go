// Package errs centralizes the engine's error taxonomy: InvalidInput,
// Integrity, Policy, Transport, Resource, and Timeout. Every other package
// keeps its own sentinel errors (the teacher's `var Err... = errors.New(...)`
// style, visible throughout async/crypto); this package wraps those
// sentinels in a Class so the orchestrator can dispatch on the class alone
// — dropping the datum, penalizing a peer's reputation, or escalating to
// shutdown — without enumerating every concrete sentinel from every
// package.
package errs
