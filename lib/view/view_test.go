package view_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/lib/pool"
	"github.com/ValentinKolb/cbrest/lib/query"
	cbtesting "github.com/ValentinKolb/cbrest/lib/testing"
	"github.com/ValentinKolb/cbrest/lib/view"
	"github.com/ValentinKolb/cbrest/rpc/common"
	httptransport "github.com/ValentinKolb/cbrest/rpc/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Fake Executor
// --------------------------------------------------------------------------

// fakeExecutor serves the rows 0..total-1 honoring limit and skip
type fakeExecutor struct {
	total    int
	err      error
	requests []*query.Builder
	retries  []int
}

func (f *fakeExecutor) ExecuteView(_ context.Context, req *query.Builder, retries int, decode pool.RowDecoder) error {
	f.requests = append(f.requests, req)
	f.retries = append(f.retries, retries)
	if f.err != nil {
		return f.err
	}

	limitRaw, _ := req.Parameters().Get("limit")
	skipRaw, _ := req.Parameters().Get("skip")
	limit, _ := strconv.Atoi(limitRaw)
	skip, _ := strconv.Atoi(skipRaw)

	var rows []json.RawMessage
	for i := skip; i < f.total && i < skip+limit; i++ {
		rows = append(rows, json.RawMessage(strconv.Itoa(i)))
	}
	return decode(rows)
}

func (f *fakeExecutor) skips() []string {
	var out []string
	for _, req := range f.requests {
		skip, _ := req.Parameters().Get("skip")
		out = append(out, skip)
	}
	return out
}

// --------------------------------------------------------------------------
// Pagination
// --------------------------------------------------------------------------

func TestAutoPaginationFetchesAllPages(t *testing.T) {
	exec := &fakeExecutor{total: 25}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name")

	items, err := q.Collect(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 25)
	for i, item := range items {
		assert.Equal(t, i, item)
	}

	// pages of 10, 10 and 5 rows, then an empty probe
	assert.Equal(t, []string{"0", "10", "20", "30"}, exec.skips())
}

func TestAutoPaginationEndsAfterEmptyProbe(t *testing.T) {
	exec := &fakeExecutor{total: 20}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name")

	items, err := q.Collect(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, items, 20)
	assert.Equal(t, []string{"0", "10", "20"}, exec.skips())
}

func TestSinglePageWithoutAutoPagination(t *testing.T) {
	exec := &fakeExecutor{total: 25}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name")

	items, err := q.Collect(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, items)
	assert.Len(t, exec.requests, 1)

	// the next call continues with the following page
	items, err = q.Collect(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, items)
	assert.Equal(t, []string{"0", "10"}, exec.skips())
}

func TestLimitAndSkip(t *testing.T) {
	exec := &fakeExecutor{total: 25}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name").Limit(4).Skip(18)

	items, err := q.Collect(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []int{18, 19, 20, 21, 22, 23, 24}, items)
	assert.Equal(t, []string{"18", "22", "26"}, exec.skips())
}

func TestEarlyBreakStopsFetching(t *testing.T) {
	exec := &fakeExecutor{total: 25}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name")

	var seen []int
	for item, err := range q.Query(context.Background(), true) {
		require.NoError(t, err)
		seen = append(seen, item)
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Len(t, exec.requests, 1)
}

func TestErrorIsYieldedOnce(t *testing.T) {
	failure := &errs.QueryFailedError{Request: "x", Attempts: 3, Last: errors.New("boom")}
	exec := &fakeExecutor{total: 25, err: failure}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name").Retry(5)

	count := 0
	for item, err := range q.Query(context.Background(), true) {
		count++
		assert.Zero(t, item)
		assert.ErrorIs(t, err, errs.ErrQueryExhausted)
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []int{5}, exec.retries)
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

func TestRequestParameters(t *testing.T) {
	exec := &fakeExecutor{}
	q := view.New[int](exec, "my-app", "beer-sample", "beer", "by_name").
		Key("abc").
		Keys(1, "two").
		Descending().
		StartKey([]any{"a", 1}).
		EndKey("z").
		Group(true).
		GroupLevel(2).
		InclusiveEnd(false).
		IncludeDocs(true).
		Debug(false).
		Stale(view.StaleUpdateAfter).
		ViewWaitTimeout(1500 * time.Millisecond).
		Limit(25)

	req := q.Request()
	assert.Equal(t, []string{"beer-sample", "_design", "beer", "_view", "by_name"}, req.Commands())
	assert.Equal(t,
		"client_id=my-app&limit=25&skip=0"+
			"&key=%22abc%22&keys=%5B1%2C%22two%22%5D&descending=true"+
			"&startkey=%5B%22a%22%2C1%5D&endkey=%22z%22&group=true&group_level=2"+
			"&inclusive_end=false&include_docs=true&debug=false&stale=update_after"+
			"&connection_timeout=1500",
		req.Parameters().Encode())
	assert.Equal(t, pool.DefaultRetries, q.Retries())
}

func TestInvalidOptionsAreReported(t *testing.T) {
	exec := &fakeExecutor{total: 5}
	q := view.New[int](exec, "cbrest", "beer-sample", "beer", "by_name").
		Key(func() {}).
		Stale(view.Stale(42))

	_, err := q.Collect(context.Background(), true)
	assert.ErrorContains(t, err, "failed to encode key")
	assert.Empty(t, exec.requests)
}

func TestStaleValues(t *testing.T) {
	for _, s := range []view.Stale{view.StaleOk, view.StaleUpdateAfter, view.NotStale} {
		parsed, err := view.ParseStale(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := view.ParseStale("maybe")
	assert.Error(t, err)
}

// --------------------------------------------------------------------------
// Against a Pool
// --------------------------------------------------------------------------

type doc struct {
	N int `json:"n"`
}

func TestQueryAgainstPool(t *testing.T) {
	cluster := cbtesting.NewFakeCluster("beer-sample")
	t.Cleanup(cluster.Close)
	cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	rows := make([]any, 25)
	for i := range rows {
		rows[i] = map[string]any{"id": strconv.Itoa(i), "doc": map[string]any{"json": doc{N: i}}}
	}
	require.NoError(t, cluster.SetRows("beer", "by_name", rows...))

	config := common.DefaultClientConfig("beer-sample", "admin", "secret", cluster.URL())
	p, err := pool.New(config, httptransport.NewHttpClientTransport(), cbtesting.NewRecordingFactory().Factory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.Refresh(context.Background()))

	docs, err := view.New[doc](p, config.ClientID, config.Bucket, "beer", "by_name").IncludeDocs(true).Collect(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, docs, 25)
	for i, d := range docs {
		assert.Equal(t, i, d.N)
	}
	assert.Equal(t, 4, cluster.TotalViewRequests())
	assert.Contains(t, cluster.LastViewQuery(), "client_id=cbrest")
}
