// Package cmd implements the command-line interface of cbrest. It provides a
// hierarchical command structure to inspect the cluster topology, run view queries
// and work with the cache of a bucket.
//
// The package is organized into several subpackages:
//
//   - topology: Prints the nodes the client discovered and the pool counters
//   - view: Runs paginated view queries and prints the rows as json lines
//   - cache: Commands for cache operations (get, set, del, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the CBREST_ prefix
// (e.g. CBREST_SERVERS), .env and .env.local files are loaded automatically.
//
// See cbrest -help for a list of all commands.
package cmd
