// Package graph is the read-only view of a finished composition graph.
//
// The graph is built by an upstream composition step and is immutable once
// Build returns. Node and Graph are the accessor interfaces the instancing
// package consumes; Index is the arena-backed implementation used by scene
// fixtures and tests. Nodes live in one slice and refer to each other by
// index, so walking a graph never chases pointers and an Index can be shared
// by any number of goroutines without locking.
//
// Authored opinions (variant selections, the instanceable flag) are stored
// per Site, not per node: two nodes that point at the same site see the same
// opinions.
package graph
