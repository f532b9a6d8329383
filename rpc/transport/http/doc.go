// Package http implements the REST transport of the cluster client on top of
// net/http.
//
// The transport sends GET requests with basic authentication, negotiates gzip
// and deflate compression and decodes the json responses into the structures
// of the common package. Every request is bounded by the configured request
// timeout (ClientConfig.RequestTimeoutMillis).
//
// Error classification:
//
//   - connection failures, non-200 responses and empty bodies yield a
//     *transport.NodeOfflineError, which the pool records against the node
//
//   - json decoding failures are returned as plain errors
//
//   - if the caller's context is done, its error is returned unchanged
//
// Thread Safety:
//
//	The transport is safe for concurrent use once Connect returned.
package http
