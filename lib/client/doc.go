// Package client is the entry point for applications. It wires the REST transport,
// the topology tracking pool and the cache client factory into a single Client.
//
// The package focuses on:
//   - Validating the configuration before anything is started
//   - Starting the background topology refresh
//   - Handing out typed view queries and the current cache client
//
// Key Components:
//
//   - New: Creates and starts a Client. It fails immediately with
//     errs.ErrMisconfiguration if the configuration is incomplete.
//
//   - View: Creates a typed, paginated view query that is executed on a random
//     healthy node of the cluster.
//
//   - Client.Cache: Returns the cache client for the current topology. The call
//     blocks until at least one node is known or the context is done.
//
// Usage Example:
//
//	config := common.DefaultClientConfig("beer-sample", "user", "secret", "http://10.0.0.1:8091")
//	c, err := client.New(config)
//	if err != nil {
//	  return err
//	}
//	defer c.Close()
//
//	for beer, err := range client.View[Beer](c, "beer", "by_name").Limit(50).Query(ctx, true) {
//	  if err != nil {
//	    return err
//	  }
//	  fmt.Println(beer.Name)
//	}
//
//	mc, _ := c.Cache(ctx)
//	_ = cache.StoreJSON(mc, cache.StoreModeSet, "beer::1", beer, time.Hour)
//
// Thread Safety:
//
//	A Client can be used concurrently from multiple goroutines. The view queries it
//	hands out are not safe for concurrent use.
package client
