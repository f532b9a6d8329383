// Package pool implements the cluster topology tracker and the query executor
// of the client.
//
// A Pool keeps the set of live nodes of a cluster, refreshes it periodically
// from the metadata api of any reachable seed server, evicts failing nodes and
// rebuilds the downstream cache client whenever the membership changes. View
// queries are executed against a randomly chosen node with bounded retries.
//
// Topology Refresh:
//
//	Seeds are tried in order, the first seed that returns metadata with at least
//	one active and healthy member wins. New members are added to the node set,
//	members reported as not active or not healthy are evicted. If no seed
//	answers, the node set is kept unchanged and the refresh is retried on the
//	next tick. Refresh failures never reach callers of Cache or Execute.
//
// Eviction:
//
//	Health driven removals (refresh) and error driven removals (a node crossed
//	its error threshold) share one path. Removing an absent node is a no-op,
//	removing a present node triggers a cache client rebuild.
//
// Cache Client Rebuild:
//
//	Rebuilds are serialized. Each rebuild takes a snapshot of the node set,
//	builds a new client through the cache.Factory, probes it, publishes it with
//	an atomic pointer swap and closes the previous client. The published client
//	is never nil once the first rebuild succeeded, and a failed build keeps the
//	previous client.
//
// Query Execution:
//
//	Every attempt samples a node uniformly at random from the current set. Node
//	level failures (transport.NodeOfflineError) are recorded against the node,
//	other failures are only logged. After the retry budget is used up an
//	*errs.QueryFailedError is returned.
//
// Blocking:
//
//	While the node set is empty, Cache and SelectNode block until a node is
//	available or the caller's context is done. Waiters are woken up by every
//	membership change and re-check at least every 200ms.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
package pool
