package cache

import (
	"errors"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/atomic"
	"net"
	"strconv"
	"time"
)

var Logger = logger.GetLogger("cache")

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Item is a single cache entry
type Item = memcache.Item

// ErrCacheMiss is returned by Get if the key does not exist
var ErrCacheMiss = memcache.ErrCacheMiss

// ErrNotStored is returned by Add and Replace if the mode condition was not met
var ErrNotStored = memcache.ErrNotStored

// ErrCASConflict is returned by CompareAndSwap if the value was modified in between
var ErrCASConflict = memcache.ErrCASConflict

// IClient is the cache client handed out by the pool
type IClient interface {
	// Get returns the item for the key or ErrCacheMiss
	Get(key string) (*Item, error)
	// Set writes the item unconditionally
	Set(item *Item) error
	// Add writes the item only if the key does not exist yet
	Add(item *Item) error
	// Replace writes the item only if the key already exists
	Replace(item *Item) error
	// CompareAndSwap writes the item only if it was not modified since it was read with Get
	CompareAndSwap(item *Item) error
	// Delete removes the key
	Delete(key string) error
	// Ping is a cheap synchronous probe of all servers
	Ping() error
	// Close releases the client, it must not be used afterwards
	Close() error
}

// Server is a single memcached endpoint
type Server struct {
	Host string
	Port int
}

// Address returns host:port
func (s Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Auth holds the authentication parameters of the bucket
type Auth struct {
	Zone     string // the bucket name
	Username string
	Password string
}

// Factory creates a cache client for the given servers
type Factory func(servers []Server, auth Auth) (IClient, error)

// --------------------------------------------------------------------------
// gomemcache Implementation
// --------------------------------------------------------------------------

// NewMemcacheFactory returns a factory that builds gomemcache clients.
// The timeout applies to every socket read and write.
func NewMemcacheFactory(timeout time.Duration) Factory {
	return func(servers []Server, auth Auth) (IClient, error) {
		addresses := make([]string, len(servers))
		for i, s := range servers {
			addresses[i] = s.Address()
		}

		// gomemcache speaks the text protocol, the proxy port accepts it without SASL
		if auth.Username != "" {
			Logger.Debugf("Cache client for zone %s does not use SASL authentication", auth.Zone)
		}

		selector := &memcache.ServerList{}
		if err := selector.SetServers(addresses...); err != nil {
			return nil, err
		}

		mc := memcache.NewFromSelector(selector)
		if timeout > 0 {
			mc.Timeout = timeout
		}
		return &memcacheClient{Client: mc, servers: addresses}, nil
	}
}

// memcacheClient wraps a gomemcache client
type memcacheClient struct {
	*memcache.Client
	servers []string
	closed  atomic.Bool
}

// Ping checks all servers. A client without servers is reported as such.
func (c *memcacheClient) Ping() error {
	if len(c.servers) == 0 {
		return memcache.ErrNoServers
	}
	return c.Client.Ping()
}

// Close closes the pooled idle connections of all servers. A second call returns errs.ErrClosed.
func (c *memcacheClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return errs.ErrClosed
	}
	return c.Client.Close()
}

// IsCacheMiss returns true if the error reports a missing key
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
