// Package node models a single member of the cluster as seen by the client.
//
// A Node is identified by an ID derived from its base address (a FNV-1a hash
// of the normalized address), so the same member always maps to the same ID,
// both within a process and across restarts.
//
// Error Tracking:
//
//	Every node owns an error counter with a time window. RecordError increments
//	the counter while the window (started at node creation or at the last reset)
//	is active. Once the window expired the next error restarts counting at 1 and
//	opens a new window. Every call that leaves the counter above the configured
//	threshold notifies the FailureListener, the listener is responsible for an
//	idempotent removal of the node.
//
// Query Templates:
//
//	QueryTemplate returns a fresh copy of the node's canonical query builder,
//	seeded with the base address. Callers extend the copy, the node itself is
//	never mutated by query executions.
package node
