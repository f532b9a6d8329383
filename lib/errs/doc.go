// Package errs defines the error taxonomy shared by all cbrest packages.
//
// Sentinel errors describe the failure classes of the cluster client:
//
//   - ErrNodeUnreachable: a single node could not be contacted or answered
//     with a non-success status / empty body. These errors are absorbed by the
//     pool and converted into node health signals.
//
//   - ErrTopologyUnavailable: no seed server yielded valid cluster metadata.
//     Refresh failures are logged and retried on the next tick, they never
//     reach callers of query or cache operations.
//
//   - ErrQueryExhausted: all retry attempts of a view query failed. This is the
//     only node-level failure that is surfaced to the caller. The concrete
//     error is a *QueryFailedError carrying the request for diagnostics.
//
//   - ErrMisconfiguration: required configuration is missing. Returned
//     immediately on construction and never retried.
//
// All errors returned by cbrest wrap one of these sentinels and can be
// inspected with errors.Is / errors.As.
package errs
