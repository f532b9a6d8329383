// Package testing provides test doubles and standardised tests for the
// cbrest packages.
//
// The package contains:
//   - cluster: FakeCluster, an in-process REST server that mimics the metadata
//     and view api of a cluster with several logical nodes, including health
//     changes and failure injection
//   - cache: MemoryCache, an in-memory cache.IClient, and RecordingFactory, a
//     cache.Factory that records every client it builds
//   - cache_suite: RunCacheClientTests, a conformance suite for cache.IClient implementations
//
// Example usage:
//
//	fc := testing.NewFakeCluster("default")
//	defer fc.Close()
//	n1 := fc.AddNode("n1", testing.Healthy)
//	fc.SetRows("beer", "by_name", rows)
//
//	config := common.DefaultClientConfig("default", "admin", "secret", fc.URL())
package testing
