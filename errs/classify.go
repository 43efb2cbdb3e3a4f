package errs

import (
	"errors"
	"fmt"
)

// Class names one of the engine's six error categories.
type Class string

const (
	// InvalidInput covers malformed NodeIds/hex, unknown message types,
	// oversized messages, or a missing recipient where one is required.
	InvalidInput Class = "invalid_input"
	// Integrity covers decode failures, signature verification failures,
	// and out-of-range fragment indices.
	Integrity Class = "integrity"
	// Policy covers TTL expiry, duplicate delivery, loop detection, rate
	// limiting, and blacklisted peers.
	Policy Class = "policy"
	// Transport covers send failures, unknown peers, and closed
	// connections.
	Transport Class = "transport"
	// Resource covers a cache, queue, or ledger at capacity, or no
	// eligible peer for forwarding.
	Resource Class = "resource"
	// Timeout covers DHT query timeouts, reassembly timeouts, and blob
	// request timeouts.
	Timeout Class = "timeout"
)

// Error pairs an underlying sentinel or wrapped error with its class.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// WrapInvalidInput classifies err as InvalidInput. Returns nil if err is nil.
func WrapInvalidInput(err error) error { return wrap(InvalidInput, err) }

// WrapIntegrity classifies err as Integrity. Returns nil if err is nil.
func WrapIntegrity(err error) error { return wrap(Integrity, err) }

// WrapPolicy classifies err as Policy. Returns nil if err is nil.
func WrapPolicy(err error) error { return wrap(Policy, err) }

// WrapTransport classifies err as Transport. Returns nil if err is nil.
func WrapTransport(err error) error { return wrap(Transport, err) }

// WrapResource classifies err as Resource. Returns nil if err is nil.
func WrapResource(err error) error { return wrap(Resource, err) }

// WrapTimeout classifies err as Timeout. Returns nil if err is nil.
func WrapTimeout(err error) error { return wrap(Timeout, err) }

// ClassOf returns the class of err and true if err (or something it wraps)
// is a *Error. Unclassified errors report ("", false).
func ClassOf(err error) (Class, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return "", false
}

// Is reports whether err is classified as class.
func Is(err error, class Class) bool {
	c, ok := ClassOf(err)
	return ok && c == class
}

// PenalizesReputation reports whether an error of this class should count
// against the originating peer's reputation score, per the engine's
// propagation policy: every Integrity or Policy fault does, everything
// else does not.
func (c Class) PenalizesReputation() bool {
	return c == Integrity || c == Policy
}
