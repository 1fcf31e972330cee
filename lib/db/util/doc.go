// Package util provides the low-level building blocks used by the database
// registry and the subscriber hub.
//
// The package contains:
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue, used as
//     the per-subscriber delivery queue so broadcasts never block the mutating caller
//   - mapheap: a min-heap with key-based access, used to order ephemeral databases
//     by their last mutation for the reclamation sweep
//   - functions: FNV-1a string hashing for id nonces and session identifiers
//   - statistics: a SizeHistogram tracking the sizes of persisted values and blobs
package util
