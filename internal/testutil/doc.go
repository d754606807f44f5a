// Package testutil holds helpers shared by tests across instkey packages:
// terse constructors for composition graph nodes and deterministic run ids.
package testutil
