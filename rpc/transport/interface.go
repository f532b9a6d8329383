package transport

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"net/url"
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRESTTransport is the interface for the transport used to talk to the REST api of the cluster nodes
type IRESTTransport interface {
	// Connect initializes the transport with the given configuration (credentials and timeout)
	Connect(config common.ClientConfig) error
	// FetchPool loads the cluster metadata from the given address
	// It returns a *NodeOfflineError if the node could not be reached, answered
	// with a non-success status or returned an empty body.
	FetchPool(ctx context.Context, address *url.URL) (*common.PoolInfo, error)
	// FetchRows executes a view query at the given address and returns the decoded envelope
	// The same NodeOfflineError rules as for FetchPool apply.
	FetchRows(ctx context.Context, address *url.URL) (*common.ViewResult, error)
	// Close releases all idle connections of the transport
	Close() error
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// NodeOfflineError is returned by a transport when a node must be considered unreachable
type NodeOfflineError struct {
	Address    string // the address that was requested
	StatusCode int    // the http status code, 0 if no response was received
	Reason     string // human readable reason
	Err        error  // the underlying error, may be nil
}

// Error implements the error interface.
func (e *NodeOfflineError) Error() string {
	msg := fmt.Sprintf("node offline at %s: %s", e.Address, e.Reason)
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap makes the error match errs.ErrNodeUnreachable with errors.Is.
func (e *NodeOfflineError) Unwrap() []error {
	if e.Err != nil {
		return []error{errs.ErrNodeUnreachable, e.Err}
	}
	return []error{errs.ErrNodeUnreachable}
}
