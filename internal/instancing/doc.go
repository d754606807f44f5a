// Package instancing computes instance keys: fingerprints that tell a
// caching layer when two locations are guaranteed to compose identically
// and may share one computed result.
//
// A key is built from two things, both in strength order:
//   - an Arc for every eligible node of the location's composition graph
//   - the authored variant selections of every node that can contribute
//     specs, first (strongest) selection per variant set wins
//
// A node is eligible when some node on its path from the root, itself
// included, was introduced by a direct (non-ancestral) arc, and the node
// has specs. The root is never eligible.
//
// Everything here is a pure function of an immutable graph. Builder and Key
// may be used from any number of goroutines without synchronization. Keys
// are plain values: compare them with Equal, bucket them with Hash, persist
// them with Digest.
//
// Equal keys are a necessary condition for sharing, not a proof of deep
// equivalence: two compositions with equal arcs and selections are assumed
// identical.
package instancing
