package view

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/pool"
	"github.com/ValentinKolb/cbrest/lib/query"
	"github.com/lni/dragonboat/v4/logger"
	"iter"
	"time"
)

var Logger = logger.GetLogger("view")

// DefaultLimit is the page size of a query
const DefaultLimit = 10

// IExecutor executes a view request with retries, it is implemented by *pool.Pool
type IExecutor interface {
	ExecuteView(ctx context.Context, req *query.Builder, retries int, decode pool.RowDecoder) error
}

// --------------------------------------------------------------------------
// Stale
// --------------------------------------------------------------------------

// Stale controls whether the index may be stale when the view is queried
type Stale int

const (
	StaleOk          Stale = iota // serve from the index as it is
	StaleUpdateAfter              // serve from the index and update it afterwards
	NotStale                      // update the index before serving
)

// String returns the value of the stale parameter
func (s Stale) String() string {
	switch s {
	case StaleOk:
		return "ok"
	case StaleUpdateAfter:
		return "update_after"
	case NotStale:
		return "false"
	default:
		return fmt.Sprintf("Stale(%d)", int(s))
	}
}

// ParseStale parses the value of the stale parameter
func ParseStale(s string) (Stale, error) {
	switch s {
	case "ok":
		return StaleOk, nil
	case "update_after":
		return StaleUpdateAfter, nil
	case "false":
		return NotStale, nil
	default:
		return 0, fmt.Errorf("unsupported stale value %q", s)
	}
}

// --------------------------------------------------------------------------
// ViewQuery
// --------------------------------------------------------------------------

// ViewQuery is a paginated query of a single view, decoding every row into T
type ViewQuery[T any] struct {
	executor IExecutor
	request  *query.Builder
	limit    int
	skip     int
	retries  int
	err      error // first option error, reported by Query
}

// New creates a query for <bucket>/_design/<group>/_view/<view>
func New[T any](executor IExecutor, clientID, bucket, group, view string) *ViewQuery[T] {
	q := &ViewQuery[T]{
		executor: executor,
		request:  query.New(),
		limit:    DefaultLimit,
		retries:  pool.DefaultRetries,
	}
	q.request.
		AddCommand(bucket, "_design", group, "_view", view).
		AddParameter("client_id", clientID).
		AddParameter("limit", q.limit).
		AddParameter("skip", q.skip)
	return q
}

// Request returns a copy of the request that the next page would be fetched with
func (q *ViewQuery[T]) Request() *query.Builder {
	return q.request.Clone()
}

// Retries returns the number of attempts per page
func (q *ViewQuery[T]) Retries() int {
	return q.retries
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Key only returns rows with the given key
func (q *ViewQuery[T]) Key(key any) *ViewQuery[T] {
	return q.addJSON("key", key)
}

// Keys only returns rows matching one of the given keys
func (q *ViewQuery[T]) Keys(keys ...any) *ViewQuery[T] {
	if keys == nil {
		keys = []any{}
	}
	return q.addJSON("keys", keys)
}

// Descending reverses the order of the rows
func (q *ViewQuery[T]) Descending() *ViewQuery[T] {
	q.request.AddParameter("descending", true)
	return q
}

// StartKey returns rows starting with the given key
func (q *ViewQuery[T]) StartKey(key any) *ViewQuery[T] {
	return q.addJSON("startkey", key)
}

// EndKey stops returning rows at the given key
func (q *ViewQuery[T]) EndKey(key any) *ViewQuery[T] {
	return q.addJSON("endkey", key)
}

// Group enables grouping of reduced rows
func (q *ViewQuery[T]) Group(enable bool) *ViewQuery[T] {
	q.request.AddParameter("group", enable)
	return q
}

// GroupLevel sets the group level of reduced rows
func (q *ViewQuery[T]) GroupLevel(level int) *ViewQuery[T] {
	q.request.AddParameter("group_level", level)
	return q
}

// InclusiveEnd controls whether the end key is included
func (q *ViewQuery[T]) InclusiveEnd(enable bool) *ViewQuery[T] {
	q.request.AddParameter("inclusive_end", enable)
	return q
}

// IncludeDocs embeds the full document into every row
func (q *ViewQuery[T]) IncludeDocs(enable bool) *ViewQuery[T] {
	q.request.AddParameter("include_docs", enable)
	return q
}

// Debug enables debug information in the response
func (q *ViewQuery[T]) Debug(enable bool) *ViewQuery[T] {
	q.request.AddParameter("debug", enable)
	return q
}

// Stale sets the staleness of the index
func (q *ViewQuery[T]) Stale(stale Stale) *ViewQuery[T] {
	switch stale {
	case StaleOk, StaleUpdateAfter, NotStale:
		q.request.AddParameter("stale", stale.String())
	default:
		q.fail(fmt.Errorf("unsupported stale type: %v", stale))
	}
	return q
}

// ViewWaitTimeout sets the time the server waits for the view index
func (q *ViewQuery[T]) ViewWaitTimeout(timeout time.Duration) *ViewQuery[T] {
	q.request.AddParameter("connection_timeout", timeout.Milliseconds())
	return q
}

// Limit sets the page size
func (q *ViewQuery[T]) Limit(limit int) *ViewQuery[T] {
	q.limit = limit
	q.request.SetParameter("limit", limit)
	return q
}

// Skip sets the number of rows skipped before the first page
func (q *ViewQuery[T]) Skip(skip int) *ViewQuery[T] {
	q.skip = skip
	q.request.SetParameter("skip", skip)
	return q
}

// Retry sets the number of attempts per page
func (q *ViewQuery[T]) Retry(count int) *ViewQuery[T] {
	q.retries = count
	return q
}

// --------------------------------------------------------------------------
// Query
// --------------------------------------------------------------------------

// Query returns an iterator over the decoded rows. With autoPaginate all pages
// are fetched until the first empty page, otherwise only the next page.
func (q *ViewQuery[T]) Query(ctx context.Context, autoPaginate bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if q.err != nil {
			yield(zero, q.err)
			return
		}

		for {
			var page []T
			err := q.executor.ExecuteView(ctx, q.request.Clone(), q.retries, func(rows []json.RawMessage) error {
				decoded, err := pool.DecodeRows[T](rows)
				if err != nil {
					return err
				}
				page = decoded
				return nil
			})
			if err != nil {
				yield(zero, err)
				return
			}
			if len(page) == 0 {
				return
			}

			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}

			q.advance(q.limit)
			Logger.Debugf("Page of %d rows done, next skip is %d", len(page), q.skip)

			if !autoPaginate {
				return
			}
		}
	}
}

// Collect runs the query and returns all rows
func (q *ViewQuery[T]) Collect(ctx context.Context, autoPaginate bool) ([]T, error) {
	var out []T
	for item, err := range q.Query(ctx, autoPaginate) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// advance moves the skip forward by n rows
func (q *ViewQuery[T]) advance(n int) {
	q.skip += n
	q.request.SetParameter("skip", q.skip)
}

// addJSON adds a json encoded parameter
func (q *ViewQuery[T]) addJSON(key string, value any) *ViewQuery[T] {
	encoded, err := json.Marshal(value)
	if err != nil {
		q.fail(fmt.Errorf("failed to encode %s: %w", key, err))
		return q
	}
	q.request.AddParameter(key, string(encoded))
	return q
}

// fail remembers the first option error
func (q *ViewQuery[T]) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}
