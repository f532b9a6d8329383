// Package rpc provides the communication layer between the client and the
// REST api of the cluster nodes.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the client, including the wire
//     types of the metadata and view api, the client configuration and logging.
//
//   - transport: Network communication abstraction (IRESTTransport) and the
//     typed NodeOfflineError that marks a node as unreachable.
//
//   - transport/http: The net/http based implementation with basic auth and
//     gzip/deflate response decoding.
package rpc
