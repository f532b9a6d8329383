// Package transport defines the contract between the cluster client and the
// REST api of the cluster nodes.
//
// The package focuses on:
//   - A narrow interface for the two calls the client needs: loading the
//     cluster metadata and executing a view query
//   - A shared error type that classifies node-level failures
//
// Key Components:
//
//   - IRESTTransport: Interface for client-side transport implementations. The
//     http sub package provides the default implementation on top of net/http.
//
//   - NodeOfflineError: Returned when a node could not be contacted, answered
//     with a non-success status or returned an empty body. The pool converts
//     these errors into node health signals, all other errors are only logged.
package transport
