package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/lib/query"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/ValentinKolb/cbrest/rpc/transport"
)

// DefaultRetries is the number of attempts of a query if the caller does not choose one
const DefaultRetries = 3

// RowDecoder consumes the projected rows of a successful response.
// An error returned by the decoder counts as a failed attempt.
type RowDecoder func(rows []json.RawMessage) error

// --------------------------------------------------------------------------
// Executor
// --------------------------------------------------------------------------

// ExecuteView runs the request against randomly chosen nodes until decode succeeds
// or retries attempts are used up. A retries value below 1 is treated as 1.
//
// Every attempt resolves the request against the base address of the chosen node.
// Node level failures are recorded against that node, which may evict it from the pool.
// If the context is done, its error is returned instead of a *errs.QueryFailedError.
func (p *Pool) ExecuteView(ctx context.Context, req *query.Builder, retries int, decode RowDecoder) error {
	if retries < 1 {
		retries = 1
	}

	var last error
	for attempt := 1; attempt <= retries; attempt++ {
		n, err := p.SelectNode(ctx)
		if err != nil {
			return err
		}

		address := n.QueryTemplate().Merge(req).Address()
		p.queryAttempts.Inc()
		Logger.Debugf("Executing view query (attempt %d/%d): %s", attempt, retries, address)

		err = p.attempt(ctx, address.String(), func(reqCtx context.Context) error {
			result, err := p.transport.FetchRows(reqCtx, address)
			if err != nil {
				return err
			}
			return decodeResult(result, decode)
		})
		if err == nil {
			return nil
		}
		last = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var offline *transport.NodeOfflineError
		if errors.As(err, &offline) {
			Logger.Errorf("Failed view query on node %s: %v", n, err)
			p.nodeErrors.Inc()
			n.RecordError()
		} else {
			Logger.Warningf("The following query failed: %s. Attempt=%d Error=%v", address, attempt, err)
		}
	}

	p.queryFailures.Inc()
	return &errs.QueryFailedError{Request: req.String(), Attempts: retries, Last: last}
}

// attempt runs a single request bounded by the request timeout
func (p *Pool) attempt(ctx context.Context, address string, fn func(ctx context.Context) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout())
	defer cancel()

	if err := fn(reqCtx); err != nil {
		// a request that ran into its own timeout is a node failure
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &transport.NodeOfflineError{Address: address, Reason: "request timed out", Err: err}
		}
		return err
	}
	return nil
}

// Execute runs the request and decodes every projected row into T
func Execute[T any](ctx context.Context, p *Pool, req *query.Builder, retries int) ([]T, error) {
	var out []T
	err := p.ExecuteView(ctx, req, retries, func(rows []json.RawMessage) error {
		decoded, err := DecodeRows[T](rows)
		if err != nil {
			return err
		}
		out = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeRows unmarshals every row into T
func DecodeRows[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var v T
		if err := json.Unmarshal(row, &v); err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decodeResult projects the rows of a view result and hands them to decode
func decodeResult(result *common.ViewResult, decode RowDecoder) error {
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		return fmt.Errorf("view returned %d error(s), first from %s: %s", len(result.Errors), e.From, e.Reason)
	}

	rows := make([]json.RawMessage, 0, len(result.Rows))
	for i, row := range result.Rows {
		projected, err := common.ProjectRow(row)
		if err != nil {
			return fmt.Errorf("failed to project row %d: %w", i, err)
		}
		rows = append(rows, projected)
	}
	return decode(rows)
}
