// Package cache provides the downstream cache client used for item storage
// and retrieval through the memcached proxy of the cluster nodes.
//
// The package focuses on:
//   - A narrow client interface (IClient) the pool rebuilds on every topology change
//   - A Factory type so the pool does not depend on a concrete memcached library
//   - JSON helpers to store and load documents
//
// Key Components:
//
//   - IClient: item operations (Get, Set, Add, Replace, CompareAndSwap, Delete),
//     a synchronous Ping used as warm-up probe and Close.
//
//   - Factory / NewMemcacheFactory: builds a client for a list of (host, port)
//     pairs. The default factory uses github.com/bradfitz/gomemcache.
//
//   - StoreJSON / CasJSON / GetJSON / GetsJSON: encode values as json before
//     storing them and decode them on read, with Set, Add and Replace store modes.
//
// Usage Example:
//
//	c, _ := client.Cache(ctx)
//	_ = cache.StoreJSON(c, cache.StoreModeSet, "beer::1", beer, time.Hour)
//	beer, found, err := cache.GetJSON[Beer](c, "beer::1")
package cache
