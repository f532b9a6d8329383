package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/ValentinKolb/cbrest/lib/node"
	"github.com/ValentinKolb/cbrest/lib/pool"
	"github.com/ValentinKolb/cbrest/lib/view"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/ValentinKolb/cbrest/rpc/transport"
	httptransport "github.com/ValentinKolb/cbrest/rpc/transport/http"
	"github.com/lni/dragonboat/v4/logger"
	"io"
)

var Logger = logger.GetLogger("client")

// options holds the pluggable parts of a client
type options struct {
	transport   transport.IRESTTransport
	factory     cache.Factory
	poolOptions []pool.Option
	noStart     bool
}

// Option configures a client
type Option func(*options)

// WithTransport replaces the default http transport
func WithTransport(t transport.IRESTTransport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithCacheFactory replaces the default memcached client factory
func WithCacheFactory(f cache.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithPoolOptions passes options through to the pool
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *options) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// WithoutRefreshLoop creates the client without starting the background refresh.
// The topology is loaded once during New.
func WithoutRefreshLoop() Option {
	return func(o *options) {
		o.noStart = true
	}
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client is a cluster aware client for view queries and the cache
type Client struct {
	config common.ClientConfig
	pool   *pool.Pool
}

// New validates the configuration, creates the pool and starts the topology refresh
func New(config common.ClientConfig, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.transport == nil {
		o.transport = httptransport.NewHttpClientTransport()
	}
	if o.factory == nil {
		o.factory = cache.NewMemcacheFactory(config.RequestTimeout())
	}

	p, err := pool.New(config, o.transport, o.factory, o.poolOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if o.noStart {
		if err := p.Refresh(context.Background()); err != nil {
			Logger.Warningf("Initial topology refresh failed: %v", err)
		}
	} else {
		p.Start()
	}

	Logger.Infof("Client for bucket %s created with %d seed server(s)", config.Bucket, len(config.Servers))
	return &Client{config: config, pool: p}, nil
}

// Config returns the validated configuration
func (c *Client) Config() common.ClientConfig {
	return c.config
}

// Pool returns the underlying pool
func (c *Client) Pool() *pool.Pool {
	return c.pool
}

// Cache returns the cache client of the current topology, it blocks until a node is known
func (c *Client) Cache(ctx context.Context) (cache.IClient, error) {
	return c.pool.Cache(ctx)
}

// Nodes returns the current node set
func (c *Client) Nodes() []*node.Node {
	return c.pool.Nodes()
}

// Refresh reloads the topology immediately
func (c *Client) Refresh(ctx context.Context) error {
	return c.pool.Refresh(ctx)
}

// Stats returns the pool counters
func (c *Client) Stats() pool.Stats {
	return c.pool.Stats()
}

// WriteMetrics writes the pool metrics in prometheus text format
func (c *Client) WriteMetrics(w io.Writer) {
	c.pool.WriteMetrics(w)
}

// Close stops the topology refresh and releases all connections
func (c *Client) Close() error {
	return c.pool.Close()
}

// View creates a query of <group>/<view> in the configured bucket
func View[T any](c *Client, group, name string) *view.ViewQuery[T] {
	return view.New[T](c.pool, c.config.ClientID, c.config.Bucket, group, name)
}
