package pool_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/lib/node"
	"github.com/ValentinKolb/cbrest/lib/pool"
	cbtesting "github.com/ValentinKolb/cbrest/lib/testing"
	"github.com/ValentinKolb/cbrest/rpc/common"
	httptransport "github.com/ValentinKolb/cbrest/rpc/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const bucket = "beer-sample"

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newTestPool(t *testing.T, cluster *cbtesting.FakeCluster, mutate func(*common.ClientConfig)) (*pool.Pool, *cbtesting.RecordingFactory) {
	t.Helper()

	config := common.DefaultClientConfig(bucket, "admin", "secret", cluster.URL())
	config.RequestTimeoutMillis = 2000
	if mutate != nil {
		mutate(&config)
	}

	factory := cbtesting.NewRecordingFactory()
	p, err := pool.New(config, httptransport.NewHttpClientTransport(), factory.Factory(), pool.WithSeed(7))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, factory
}

func newCluster(t *testing.T) *cbtesting.FakeCluster {
	t.Helper()
	cluster := cbtesting.NewFakeCluster(bucket)
	t.Cleanup(cluster.Close)
	return cluster
}

func nodeID(t *testing.T, raw string) node.ID {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return node.IDOf(u)
}

func addresses(p *pool.Pool) []string {
	var out []string
	for _, n := range p.Nodes() {
		out = append(out, n.String())
	}
	return out
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNewRejectsInvalidConfig(t *testing.T) {
	factory := cbtesting.NewRecordingFactory()

	_, err := pool.New(common.ClientConfig{Bucket: bucket}, httptransport.NewHttpClientTransport(), factory.Factory())
	assert.ErrorIs(t, err, errs.ErrMisconfiguration)

	config := common.DefaultClientConfig(bucket, "admin", "secret", "http://localhost:8091")
	_, err = pool.New(config, nil, factory.Factory())
	assert.ErrorIs(t, err, errs.ErrMisconfiguration)

	_, err = pool.New(config, httptransport.NewHttpClientTransport(), nil)
	assert.ErrorIs(t, err, errs.ErrMisconfiguration)
}

// --------------------------------------------------------------------------
// Refresh
// --------------------------------------------------------------------------

func TestRefreshAddsOnlyHealthyMembers(t *testing.T) {
	cluster := newCluster(t)
	a := cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Unhealthy)
	cluster.AddNode("c", cbtesting.Inactive)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, []string{a}, addresses(p))
	assert.Equal(t, uint64(1), p.Stats().Rebuilds)
	assert.Equal(t, 1, factory.Builds())

	auth := factory.LastAuth()
	assert.Equal(t, bucket, auth.Zone)
	assert.Equal(t, "admin", auth.Username)
	assert.Equal(t, "secret", auth.Password)
}

func TestRefreshIsIdempotent(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Refresh(context.Background()))
	}

	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 1, factory.Builds(), "unchanged membership must not rebuild")
	assert.Equal(t, uint64(3), p.Stats().Refreshes)
}

func TestRefreshEvictsMembersThatBecameUnhealthy(t *testing.T) {
	cluster := newCluster(t)
	a := cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, 2, p.Size())

	cluster.SetState("b", cbtesting.Inactive)
	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, []string{a}, addresses(p))
	assert.Equal(t, 2, factory.Builds())
	assert.Equal(t, uint64(1), p.Stats().Evictions)
}

func TestRefreshEvictsActiveButUnhealthyMembers(t *testing.T) {
	cluster := newCluster(t)
	a := cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, 2, p.Size())
	builds := factory.Builds()

	cluster.SetState("b", cbtesting.Unhealthy)
	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, []string{a}, addresses(p))
	assert.Equal(t, builds+1, factory.Builds())
	assert.Equal(t, uint64(1), p.Stats().Evictions)

	// a second refresh with the same metadata changes nothing
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, builds+1, factory.Builds())
}

func TestRefreshKeepsMembersMissingFromMetadata(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))

	// only members explicitly reported as failed are evicted
	cluster.RemoveNode("b")
	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 1, factory.Builds())
}

func TestRefreshFailureKeepsNodeSet(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))

	cluster.FailPool(http.StatusServiceUnavailable)
	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTopologyUnavailable)
	assert.ErrorIs(t, err, errs.ErrNodeUnreachable)

	assert.Equal(t, 1, p.Size())
	assert.Equal(t, 1, factory.Builds())
	assert.Equal(t, uint64(1), p.Stats().RefreshFailures)
}

func TestRefreshWithoutHealthyMembersFails(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Unhealthy)

	p, factory := newTestPool(t, cluster, nil)
	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, errs.ErrTopologyUnavailable)
	assert.Equal(t, 0, p.Size())
	assert.Equal(t, 0, factory.Builds())
}

func TestRefreshFallsBackToNextSeed(t *testing.T) {
	cluster := newCluster(t)
	a := cluster.AddNode("a", cbtesting.Healthy)

	broken := newCluster(t)
	broken.FailPool(http.StatusInternalServerError)

	p, _ := newTestPool(t, cluster, func(config *common.ClientConfig) {
		config.Servers = []string{broken.URL(), cluster.URL()}
	})
	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, []string{a}, addresses(p))
	assert.Equal(t, 1, broken.PoolRequests())
	assert.Equal(t, 1, cluster.PoolRequests())
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

func TestOnNodeFailedForAbsentNodeIsNoop(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))

	p.OnNodeFailed(node.ID(42))
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, 1, factory.Builds())
}

func TestNodeErrorThresholdEvictsNode(t *testing.T) {
	cluster := newCluster(t)
	a := cluster.AddNode("a", cbtesting.Healthy)
	b := cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, func(config *common.ClientConfig) {
		config.FailNodeOnErrorCount = 2
	})
	require.NoError(t, p.Refresh(context.Background()))

	n, ok := p.Node(nodeID(t, b))
	require.True(t, ok)

	assert.False(t, n.RecordError())
	assert.False(t, n.RecordError())
	assert.True(t, n.RecordError())
	assert.Equal(t, []string{a}, addresses(p))
	assert.Equal(t, 2, factory.Builds())

	// a listener call for the already removed node changes nothing
	assert.True(t, n.RecordError())
	assert.Equal(t, 2, factory.Builds())
	assert.Equal(t, uint64(1), p.Stats().Evictions)
}

// --------------------------------------------------------------------------
// Cache Client
// --------------------------------------------------------------------------

func TestCacheBlocksWhileEmpty(t *testing.T) {
	cluster := newCluster(t)
	p, _ := newTestPool(t, cluster, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Cache(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	_, err = p.SelectNode(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheUnblocksWhenNodesAppear(t *testing.T) {
	cluster := newCluster(t)
	p, factory := newTestPool(t, cluster, nil)

	type result struct {
		client any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := p.Cache(ctx)
		done <- result{c, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cluster.AddNode("a", cbtesting.Healthy)
	require.NoError(t, p.Refresh(context.Background()))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Same(t, factory.Last(), r.client)
	case <-time.After(5 * time.Second):
		t.Fatal("Cache did not unblock")
	}
}

func TestCacheServersAreDeduplicated(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, func(config *common.ClientConfig) {
		config.CacheProxyPort = 11299
	})
	require.NoError(t, p.Refresh(context.Background()))

	// both fake nodes live on the same host
	servers := p.CacheServers()
	require.Len(t, servers, 1)
	assert.Equal(t, 11299, servers[0].Port)
	assert.Equal(t, servers, factory.Last().Servers)
}

func TestRebuildFailureKeepsPreviousClient(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))
	first := factory.Last()

	factory.Fail(errors.New("proxy unavailable"))
	cluster.AddNode("b", cbtesting.Healthy)
	require.NoError(t, p.Refresh(context.Background()))

	c, err := p.Cache(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, c)
	assert.False(t, first.Closed())
	assert.Equal(t, 2, p.Size())
	assert.Equal(t, uint64(1), p.Stats().RebuildFailures)
}

func TestWarmUpFailureStillPublishesClient(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	factory.FailPings(errors.New("connection refused"))
	require.NoError(t, p.Refresh(context.Background()))

	c, err := p.Cache(context.Background())
	require.NoError(t, err)
	assert.Same(t, factory.Last(), c)
	assert.Greater(t, factory.Last().Pings(), int64(1), "warm-up is retried")
	assert.Equal(t, uint64(1), p.Stats().Rebuilds)
}

func TestConcurrentCacheReadersDuringRebuilds(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)
	cluster.AddNode("b", cbtesting.Healthy)

	p, factory := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var failures sync.Map
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				c, err := p.Cache(ctx)
				cancel()
				if err != nil || c == nil {
					failures.Store(i, err)
					return
				}
			}
		}(i)
	}

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			cluster.SetState("b", cbtesting.Inactive)
		} else {
			cluster.SetState("b", cbtesting.Healthy)
		}
		require.NoError(t, p.Refresh(context.Background()))
	}
	close(stop)
	wg.Wait()

	failures.Range(func(key, value any) bool {
		t.Errorf("reader %v observed no client: %v", key, value)
		return true
	})

	clients := factory.Clients()
	require.Len(t, clients, 21)
	for _, c := range clients[:len(clients)-1] {
		assert.True(t, c.Closed(), "replaced clients are closed")
	}
	assert.False(t, clients[len(clients)-1].Closed())
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func TestStartRefreshesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	cluster := cbtesting.NewFakeCluster(bucket)
	defer cluster.Close()
	cluster.AddNode("a", cbtesting.Healthy)

	config := common.DefaultClientConfig(bucket, "admin", "secret", cluster.URL())
	factory := cbtesting.NewRecordingFactory()
	p, err := pool.New(config, httptransport.NewHttpClientTransport(), factory.Factory())
	require.NoError(t, err)

	p.Start()
	p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := p.Cache(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)

	require.NoError(t, p.Close())
	assert.True(t, factory.Last().Closed())
	assert.ErrorIs(t, p.Close(), errs.ErrClosed)

	_, err = p.Cache(context.Background())
	assert.ErrorIs(t, err, errs.ErrClosed)
	assert.ErrorIs(t, p.Refresh(context.Background()), errs.ErrClosed)
}

func TestWriteMetrics(t *testing.T) {
	cluster := newCluster(t)
	cluster.AddNode("a", cbtesting.Healthy)

	p, _ := newTestPool(t, cluster, nil)
	require.NoError(t, p.Refresh(context.Background()))

	var sb strings.Builder
	p.WriteMetrics(&sb)
	out := sb.String()
	assert.Contains(t, out, "cbrest_pool_rebuilds_total 1")
	assert.Contains(t, out, "cbrest_pool_nodes 1")
	assert.Contains(t, out, "cbrest_pool_refreshes_total 1")
}
