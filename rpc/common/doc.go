// Package common provides the data structures and utilities shared across
// the cbrest packages.
//
// The package focuses on:
//   - Wire structures of the cluster REST api (pool metadata and view results)
//   - The client configuration with defaults and validation
//   - A custom logging implementation integrated with the dragonboat logger package
//
// Key Components:
//
//   - PoolInfo / PoolNode: cluster metadata as returned by GET /pools/<name>.
//     A member is usable when it is "active" and "healthy".
//
//   - ViewResult / ProjectRow: the envelope of a view query. ProjectRow selects
//     the part of a row that is decoded into the caller's result type, which is
//     the embedded document for queries with include_docs=true.
//
//   - ClientConfig: seed servers, bucket credentials, polling interval, request
//     timeout, node error threshold and window, cache proxy port and log level.
//     Validate fails with errs.ErrMisconfiguration when required values are missing.
//
//   - Logger: named loggers ("pool", "node", "view", "transport", "cache", "client")
//     with a consistent "LEVEL | name | message" format.
package common
