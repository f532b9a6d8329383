package pool

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/lib/node"
	"github.com/ValentinKolb/cbrest/lib/query"
	"github.com/ValentinKolb/cbrest/rpc/common"
	goset "github.com/deckarep/golang-set/v2"
	"github.com/flowchartsman/retry"
	"go.uber.org/multierr"
	"net/url"
	"sort"
	"time"
)

// warm-up probe of a freshly built cache client
var (
	warmUpAttempts     = 3
	warmUpInitialDelay = 10 * time.Millisecond
	warmUpMaxDelay     = 100 * time.Millisecond
)

// --------------------------------------------------------------------------
// Refresh
// --------------------------------------------------------------------------

// Refresh loads the topology from the first seed server that answers with at least
// one active and healthy member and reconciles the node set with it.
// If no seed answers, the node set is left unchanged and an error wrapping
// errs.ErrTopologyUnavailable is returned.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.closed.Load() {
		return errs.ErrClosed
	}
	p.refreshes.Inc()

	var seedErrs error
	for _, seed := range p.config.Servers {
		info, err := p.fetchPool(ctx, seed)
		if err != nil {
			Logger.Warningf("Could not load topology from %s: %v", seed, err)
			seedErrs = multierr.Append(seedErrs, fmt.Errorf("%s: %w", seed, err))

			// stop early if the caller gave up
			if ctx.Err() != nil {
				break
			}
			continue
		}

		p.reconcile(info)
		return nil
	}

	p.refreshFailures.Inc()
	if p.nodes.Size() == 0 {
		Logger.Errorf("Could not load topology from any seed server and the pool is empty")
	} else {
		Logger.Warningf("Could not load topology from any seed server, keeping %d known nodes", p.nodes.Size())
	}
	return fmt.Errorf("%w: %w", errs.ErrTopologyUnavailable, seedErrs)
}

// fetchPool loads the pool metadata from a single seed.
// Metadata without any active and healthy member is treated as a failure of the seed.
func (p *Pool) fetchPool(ctx context.Context, seed string) (*common.PoolInfo, error) {
	builder, err := query.Parse(seed)
	if err != nil {
		return nil, err
	}
	address := builder.AddCommand("pools", p.config.Bucket).Address()

	reqCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout())
	defer cancel()

	info, err := p.transport.FetchPool(reqCtx, address)
	if err != nil {
		return nil, err
	}
	for _, member := range info.Nodes {
		if member.IsActiveHealthy() {
			return info, nil
		}
	}
	return nil, errors.New("no active and healthy members")
}

// reconcile adds the healthy members of the pool that are not known yet and
// evicts the members that are reported as not active or not healthy
func (p *Pool) reconcile(info *common.PoolInfo) {
	healthy := goset.NewThreadUnsafeSet[node.ID]()
	failed := goset.NewThreadUnsafeSet[node.ID]()
	nodeConfig := node.Config{
		FailNodeOnErrorCount: p.config.FailNodeOnErrorCount,
		ErrorWindow:          p.config.ErrorWindow(),
	}

	added := 0
	for _, member := range info.Nodes {
		address, err := url.Parse(member.CouchAPIBase)
		if err != nil || address.Scheme == "" || address.Host == "" {
			Logger.Warningf("Ignoring member %s with invalid couchApiBase %q", member.Hostname, member.CouchAPIBase)
			continue
		}
		id := node.IDOf(address)

		if !member.IsActiveHealthy() {
			failed.Add(id)
			continue
		}
		if !healthy.Add(id) {
			continue
		}

		_, loaded := p.nodes.LoadOrCompute(id, func() *node.Node {
			return node.New(address, nodeConfig, node.WithListener(p), node.WithClock(p.now))
		})
		if !loaded {
			Logger.Infof("Adding node to pool: %s", address)
			p.nodesAdded.Inc()
			added++
		}
	}

	if added > 0 {
		p.changed.Notify()
		p.rebuild(fmt.Sprintf("%d node(s) added", added))
	}

	// a member reported healthy under the same address wins
	for _, id := range failed.Difference(healthy).ToSlice() {
		p.evict(id, "reported as not active or not healthy")
	}
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

// OnNodeFailed removes a node that exceeded its error threshold.
// Repeated calls for the same node are no-ops.
func (p *Pool) OnNodeFailed(id node.ID) {
	p.evict(id, "error threshold exceeded")
}

// evict removes the node from the set and rebuilds the cache client.
// It returns false if the node was not part of the set.
func (p *Pool) evict(id node.ID, reason string) bool {
	n, ok := p.nodes.LoadAndDelete(id)
	if !ok {
		return false
	}
	Logger.Warningf("Removing node from pool: %s (%s)", n, reason)
	p.evictions.Inc()
	p.changed.Notify()
	p.rebuild("node removed")
	return true
}

// --------------------------------------------------------------------------
// Cache Client Rebuild
// --------------------------------------------------------------------------

// rebuild builds a cache client for the current node set and publishes it.
// On failure the previous client stays published.
func (p *Pool) rebuild(reason string) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	if p.closed.Load() {
		return
	}

	servers := p.cacheServers()
	auth := cache.Auth{
		Zone:     p.config.Bucket,
		Username: p.config.Username,
		Password: p.config.Password,
	}

	Logger.Infof("Rebuilding cache client with %d server(s): %s", len(servers), reason)
	client, err := p.factory(servers, auth)
	if err != nil {
		p.rebuildFailures.Inc()
		Logger.Errorf("Failed to build cache client, keeping the previous one: %v", err)
		return
	}

	// the probe only warms up connections, an unreachable proxy is not fatal
	if len(servers) > 0 {
		retrier := retry.NewRetrier(warmUpAttempts, warmUpInitialDelay, warmUpMaxDelay)
		if err := retrier.Run(client.Ping); err != nil {
			Logger.Warningf("Cache client warm-up failed: %v", err)
		}
	}

	old := p.client.Swap(&cacheHandle{client: client, servers: servers})
	p.rebuilds.Inc()
	p.changed.Notify()

	if old != nil {
		if err := old.client.Close(); err != nil {
			Logger.Debugf("Closing previous cache client: %v", err)
		}
	}
}

// cacheServers returns the distinct cache endpoints of the current node set in stable order
func (p *Pool) cacheServers() []cache.Server {
	seen := goset.NewThreadUnsafeSet[cache.Server]()
	servers := make([]cache.Server, 0, p.nodes.Size())
	p.nodes.Range(func(_ node.ID, n *node.Node) bool {
		server := cache.Server{Host: n.Host(), Port: p.config.CacheProxyPort}
		if seen.Add(server) {
			servers = append(servers, server)
		}
		return true
	})
	sort.Slice(servers, func(i, j int) bool { return servers[i].Address() < servers[j].Address() })
	return servers
}

// CacheServers returns the servers the published cache client was built for
func (p *Pool) CacheServers() []cache.Server {
	handle := p.client.Load()
	if handle == nil {
		return nil
	}
	return append([]cache.Server(nil), handle.servers...)
}
