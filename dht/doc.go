// Package dht implements the Kademlia-style distributed hash table: a
// K-bucket overlay keyed by XOR distance, iterative FIND_NODE/FIND_VALUE
// lookups, and STORE with K-way replication.
//
// The package never talks to a transport directly. It asks a Sender
// (wired by the node package, which owns the relay and transport) to
// perform the actual FIND_NODE/FIND_VALUE/STORE round trips, so dht stays
// testable with a fake Sender and ignorant of wire framing.
//
// Table additionally implements routing.KBucketAdder so routing.Table's
// add_peer can feed newly connected peers into the K-bucket overlay.
// The interface is satisfied structurally: neither dht nor routing
// imports the other.
package dht
