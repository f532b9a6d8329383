package pool

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/lib/node"
	"github.com/ValentinKolb/cbrest/lib/util"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/ValentinKolb/cbrest/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

var Logger = logger.GetLogger("pool")

// waitInterval is the fallback interval in which blocked callers re-check the node set
const waitInterval = 200 * time.Millisecond

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// cacheHandle is the published cache client together with the servers it was built for
type cacheHandle struct {
	client  cache.IClient
	servers []cache.Server
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Nodes           int
	Refreshes       uint64
	RefreshFailures uint64
	NodesAdded      uint64
	Evictions       uint64
	Rebuilds        uint64
	RebuildFailures uint64
	QueryAttempts   uint64
	QueryFailures   uint64
	NodeErrors      uint64
}

// Pool tracks the nodes of a cluster and executes queries against them
type Pool struct {
	config    common.ClientConfig
	transport transport.IRESTTransport
	factory   cache.Factory

	nodes   *xsync.MapOf[node.ID, *node.Node]
	client  atomic.Pointer[cacheHandle]
	changed *util.Notifier

	rebuildMu sync.Mutex
	rngMu     sync.Mutex
	rng       *rand.Rand
	now       func() time.Time

	// lifecycle
	startOnce sync.Once
	closed    atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// metrics
	metrics         *metrics.Set
	refreshes       *metrics.Counter
	refreshFailures *metrics.Counter
	nodesAdded      *metrics.Counter
	evictions       *metrics.Counter
	rebuilds        *metrics.Counter
	rebuildFailures *metrics.Counter
	queryAttempts   *metrics.Counter
	queryFailures   *metrics.Counter
	nodeErrors      *metrics.Counter
}

// Option configures a pool
type Option func(*Pool)

// WithClock replaces the clock handed to the nodes of the pool, used by tests
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// WithSeed makes the node selection deterministic, used by tests
func WithSeed(seed uint64) Option {
	return func(p *Pool) {
		p.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// New creates a pool. The configuration is validated and the transport is connected,
// the topology is not loaded before Start or Refresh is called.
func New(config common.ClientConfig, t transport.IRESTTransport, factory cache.Factory, opts ...Option) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.Misconfigured("transport is required")
	}
	if factory == nil {
		return nil, errs.Misconfigured("cache factory is required")
	}
	if err := t.Connect(config); err != nil {
		return nil, fmt.Errorf("failed to connect transport: %w", err)
	}

	seed := util.GenerateSeed()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config:    config,
		transport: t,
		factory:   factory,
		nodes:     xsync.NewMapOf[node.ID, *node.Node](),
		changed:   util.NewNotifier(),
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		metrics:   metrics.NewSet(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.refreshes = p.metrics.NewCounter("cbrest_pool_refreshes_total")
	p.refreshFailures = p.metrics.NewCounter("cbrest_pool_refresh_failures_total")
	p.nodesAdded = p.metrics.NewCounter("cbrest_pool_nodes_added_total")
	p.evictions = p.metrics.NewCounter("cbrest_pool_evictions_total")
	p.rebuilds = p.metrics.NewCounter("cbrest_pool_rebuilds_total")
	p.rebuildFailures = p.metrics.NewCounter("cbrest_pool_rebuild_failures_total")
	p.queryAttempts = p.metrics.NewCounter("cbrest_pool_query_attempts_total")
	p.queryFailures = p.metrics.NewCounter("cbrest_pool_query_failures_total")
	p.nodeErrors = p.metrics.NewCounter("cbrest_pool_node_errors_total")
	p.metrics.NewGauge("cbrest_pool_nodes", func() float64 {
		return float64(p.nodes.Size())
	})

	Logger.Infof("Created pool for bucket %s", config.Bucket)
	Logger.Debugf("%s", config.String())
	return p, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start launches the background refresh loop. The first refresh runs immediately.
// Calling Start more than once has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.refreshLoop()
	})
}

// refreshLoop refreshes the topology on every tick until the pool is closed
func (p *Pool) refreshLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval())
	defer ticker.Stop()

	Logger.Infof("Topology refresh started with interval %v", p.config.PollInterval())

	// failures are logged by Refresh and retried on the next tick
	_ = p.Refresh(p.ctx)

	for {
		select {
		case <-ticker.C:
			_ = p.Refresh(p.ctx)
		case <-p.ctx.Done():
			Logger.Infof("Topology refresh stopped")
			return
		}
	}
}

// Close stops the refresh loop, closes the cache client and the transport
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return errs.ErrClosed
	}
	p.cancel()
	p.wg.Wait()

	// wait for a running rebuild, then release the client
	p.rebuildMu.Lock()
	handle := p.client.Load()
	p.rebuildMu.Unlock()

	// wake up blocked callers so they observe the closed pool
	p.changed.Notify()

	var err error
	if handle != nil {
		err = handle.client.Close()
	}
	if tErr := p.transport.Close(); err == nil {
		err = tErr
	}
	return err
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Nodes returns a snapshot of the current node set ordered by address
func (p *Pool) Nodes() []*node.Node {
	nodes := make([]*node.Node, 0, p.nodes.Size())
	p.nodes.Range(func(_ node.ID, n *node.Node) bool {
		nodes = append(nodes, n)
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })
	return nodes
}

// Size returns the number of nodes in the pool
func (p *Pool) Size() int {
	return p.nodes.Size()
}

// Node returns the node with the given id
func (p *Pool) Node(id node.ID) (*node.Node, bool) {
	return p.nodes.Load(id)
}

// Config returns the validated configuration of the pool
func (p *Pool) Config() common.ClientConfig {
	return p.config
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Nodes:           p.nodes.Size(),
		Refreshes:       p.refreshes.Get(),
		RefreshFailures: p.refreshFailures.Get(),
		NodesAdded:      p.nodesAdded.Get(),
		Evictions:       p.evictions.Get(),
		Rebuilds:        p.rebuilds.Get(),
		RebuildFailures: p.rebuildFailures.Get(),
		QueryAttempts:   p.queryAttempts.Get(),
		QueryFailures:   p.queryFailures.Get(),
		NodeErrors:      p.nodeErrors.Get(),
	}
}

// WriteMetrics writes the pool metrics in prometheus text format
func (p *Pool) WriteMetrics(w io.Writer) {
	p.metrics.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Blocking Accessors
// --------------------------------------------------------------------------

// Cache returns the current cache client. It blocks while the pool has no nodes
// or no client was built yet, until the context is done.
func (p *Pool) Cache(ctx context.Context) (cache.IClient, error) {
	var handle *cacheHandle
	err := p.waitFor(ctx, func() bool {
		if p.nodes.Size() == 0 {
			return false
		}
		handle = p.client.Load()
		return handle != nil
	})
	if err != nil {
		return nil, err
	}
	return handle.client, nil
}

// SelectNode returns a node chosen uniformly at random from the current node set.
// It blocks while the pool has no nodes, until the context is done.
func (p *Pool) SelectNode(ctx context.Context) (*node.Node, error) {
	var selected *node.Node
	err := p.waitFor(ctx, func() bool {
		snapshot := make([]*node.Node, 0, p.nodes.Size())
		p.nodes.Range(func(_ node.ID, n *node.Node) bool {
			snapshot = append(snapshot, n)
			return true
		})
		if len(snapshot) == 0 {
			return false
		}
		p.rngMu.Lock()
		selected = snapshot[p.rng.IntN(len(snapshot))]
		p.rngMu.Unlock()
		return true
	})
	return selected, err
}

// waitFor blocks until cond is true, the context is done or the pool is closed
func (p *Pool) waitFor(ctx context.Context, cond func() bool) error {
	var closed bool
	err := p.changed.WaitUntil(ctx, waitInterval, func() bool {
		if p.closed.Load() {
			closed = true
			return true
		}
		return cond()
	}, func() {
		Logger.Warningf("Pool has no nodes. Blocking until nodes come online")
	})
	if err != nil {
		return err
	}
	if closed {
		return errs.ErrClosed
	}
	return nil
}
