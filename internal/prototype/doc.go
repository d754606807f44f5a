// Package prototype shares one composed prototype among every location
// whose instance key is equal.
//
// A Registry maps key digests to prototypes. Acquire builds a missing
// prototype at most once per key at a time, even under concurrent
// callers, and counts the locations that reference it. Release drops a
// location's reference; a prototype with no references left is evicted.
//
// Locations whose key is empty are not instanceable and never share.
package prototype
