package node

import (
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/query"
	"github.com/ValentinKolb/cbrest/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"net/url"
	"strings"
	"sync"
	"time"
)

var Logger = logger.GetLogger("node")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// ID identifies a node, it is derived from the node's base address
type ID uint64

// String returns the id in hex notation
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// FailureListener is notified when a node exceeded its error threshold
type FailureListener interface {
	// OnNodeFailed is called for every error that leaves the node above its threshold.
	// Implementations must tolerate repeated calls for the same id.
	OnNodeFailed(id ID)
}

// FailureListenerFunc adapts a function to the FailureListener interface
type FailureListenerFunc func(id ID)

// OnNodeFailed calls f(id)
func (f FailureListenerFunc) OnNodeFailed(id ID) {
	f(id)
}

// Config holds the error policy of a node
type Config struct {
	// FailNodeOnErrorCount is the number of errors inside the window a node may have before it is failed
	FailNodeOnErrorCount int
	// ErrorWindow is the duration in which errors are accumulated
	ErrorWindow time.Duration
}

// Option configures a node
type Option func(*Node)

// WithClock replaces the clock of the node, used by tests
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		n.now = now
	}
}

// WithListener sets the listener that is notified when the node fails
func WithListener(l FailureListener) Option {
	return func(n *Node) {
		n.listener = l
	}
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is a single cluster member reachable through a base address
type Node struct {
	id       ID
	address  *url.URL
	template *query.Builder
	config   Config
	listener FailureListener
	now      func() time.Time

	mu         sync.Mutex
	errorCount int
	errorAge   time.Time // start of the current error window
}

// New creates a node for the given base address
func New(address *url.URL, config Config, opts ...Option) *Node {
	n := &Node{
		id:       IDOf(address),
		address:  address,
		template: query.NewFromURL(address),
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.errorAge = n.now()
	return n
}

// Parse creates a node from a raw base address
func Parse(raw string, config Config, opts ...Option) (*Node, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid node address %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid node address %q: scheme and host are required", raw)
	}
	return New(u, config, opts...), nil
}

// IDOf derives the id of a node from its base address.
// Scheme and host are compared case-insensitive and a trailing slash is ignored.
func IDOf(address *url.URL) ID {
	return ID(util.HashString(normalize(address), 0))
}

// ID returns the identifier of the node
func (n *Node) ID() ID {
	return n.id
}

// Address returns a copy of the node's base address
func (n *Node) Address() *url.URL {
	u := *n.address
	return &u
}

// Host returns the host name (without port) of the node
func (n *Node) Host() string {
	return n.address.Hostname()
}

// String returns the base address of the node
func (n *Node) String() string {
	return n.address.String()
}

// QueryTemplate returns a copy of the node's query builder seeded with its base address
func (n *Node) QueryTemplate() *query.Builder {
	return n.template.Clone()
}

// ErrorCount returns the current error count and the start of the error window
func (n *Node) ErrorCount() (count int, windowStart time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errorCount, n.errorAge
}

// RecordError registers a failed request against this node.
// It returns true if the node is above its error threshold after this call,
// in which case the failure listener has been notified.
func (n *Node) RecordError() bool {
	n.mu.Lock()
	now := n.now()

	if now.Before(n.errorAge.Add(n.config.ErrorWindow)) {
		Logger.Warningf("Incrementing error count for node: %s. Current count: %d", n, n.errorCount)
		n.errorCount++
	} else {
		Logger.Warningf("Starting error tracking for node: %s", n)
		n.errorCount = 1
		n.errorAge = now
	}

	failed := n.errorCount > n.config.FailNodeOnErrorCount
	listener := n.listener
	n.mu.Unlock()

	// notify without holding the lock, the listener removes the node from the pool
	if failed && listener != nil {
		Logger.Errorf("Failing node: %s. Error count exceeded", n)
		listener.OnNodeFailed(n.id)
	}
	return failed
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// normalize returns the canonical string form of an address used for hashing
func normalize(address *url.URL) string {
	if address == nil {
		return ""
	}
	u := *address
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.Fragment = ""
	return u.String()
}
