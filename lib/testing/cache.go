package testing

import (
	"errors"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"go.uber.org/atomic"
	"sync"
)

// --------------------------------------------------------------------------
// MemoryCache (implements cache.IClient)
// --------------------------------------------------------------------------

type memoryEntry struct {
	value   []byte
	flags   uint32
	version uint64
}

// MemoryCache is an in-memory cache client. Expiration is stored but not enforced.
type MemoryCache struct {
	Servers []cache.Server

	mu      sync.Mutex
	entries map[string]memoryEntry
	issued  map[*cache.Item]uint64 // version handed out with an item, used for CompareAndSwap
	version uint64

	pingErr atomic.Error
	pings   atomic.Int64
	closed  atomic.Bool
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(servers ...cache.Server) *MemoryCache {
	return &MemoryCache{
		Servers: servers,
		entries: make(map[string]memoryEntry),
		issued:  make(map[*cache.Item]uint64),
	}
}

// FailPing makes Ping return err (nil to succeed again)
func (m *MemoryCache) FailPing(err error) {
	m.pingErr.Store(err)
}

// Pings returns how often Ping was called
func (m *MemoryCache) Pings() int64 {
	return m.pings.Load()
}

// Closed reports whether Close was called
func (m *MemoryCache) Closed() bool {
	return m.closed.Load()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see cache.IClient)
// --------------------------------------------------------------------------

func (m *MemoryCache) Get(key string) (*cache.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	item := &cache.Item{Key: key, Value: append([]byte(nil), e.value...), Flags: e.flags}
	m.issued[item] = e.version
	return item, nil
}

func (m *MemoryCache) Set(item *cache.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(item)
	return nil
}

func (m *MemoryCache) Add(item *cache.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[item.Key]; ok {
		return cache.ErrNotStored
	}
	m.store(item)
	return nil
}

func (m *MemoryCache) Replace(item *cache.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[item.Key]; !ok {
		return cache.ErrNotStored
	}
	m.store(item)
	return nil
}

func (m *MemoryCache) CompareAndSwap(item *cache.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	version, ok := m.issued[item]
	if !ok {
		return errors.New("item was not obtained by Get")
	}
	delete(m.issued, item)

	e, exists := m.entries[item.Key]
	if !exists {
		return cache.ErrNotStored
	}
	if e.version != version {
		return cache.ErrCASConflict
	}
	m.store(item)
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return cache.ErrCacheMiss
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) Ping() error {
	m.pings.Add(1)
	return m.pingErr.Load()
}

func (m *MemoryCache) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return errs.ErrClosed
	}
	return nil
}

// store writes an entry, the caller holds the lock
func (m *MemoryCache) store(item *cache.Item) {
	m.version++
	m.entries[item.Key] = memoryEntry{
		value:   append([]byte(nil), item.Value...),
		flags:   item.Flags,
		version: m.version,
	}
}

// --------------------------------------------------------------------------
// RecordingFactory
// --------------------------------------------------------------------------

// RecordingFactory builds MemoryCache clients and records every build
type RecordingFactory struct {
	mu      sync.Mutex
	clients []*MemoryCache
	auths   []cache.Auth
	err     error
	pingErr error

	// OnBuild is called (if set) at the start of every build, before the client exists
	OnBuild func(servers []cache.Server)
}

// NewRecordingFactory creates a new recording factory
func NewRecordingFactory() *RecordingFactory {
	return &RecordingFactory{}
}

// Factory returns the cache.Factory to hand to the pool
func (f *RecordingFactory) Factory() cache.Factory {
	return func(servers []cache.Server, auth cache.Auth) (cache.IClient, error) {
		if f.OnBuild != nil {
			f.OnBuild(servers)
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.err != nil {
			return nil, f.err
		}
		c := NewMemoryCache(append([]cache.Server(nil), servers...)...)
		c.FailPing(f.pingErr)
		f.clients = append(f.clients, c)
		f.auths = append(f.auths, auth)
		return c, nil
	}
}

// Fail makes all following builds fail with err (nil to succeed again)
func (f *RecordingFactory) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// FailPings makes Ping of all following clients fail with err (nil to succeed again)
func (f *RecordingFactory) FailPings(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// Builds returns the number of successfully built clients
func (f *RecordingFactory) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Clients returns all built clients in build order
func (f *RecordingFactory) Clients() []*MemoryCache {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MemoryCache(nil), f.clients...)
}

// Last returns the most recently built client or nil
func (f *RecordingFactory) Last() *MemoryCache {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

// LastAuth returns the auth parameters of the most recent build
func (f *RecordingFactory) LastAuth() cache.Auth {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.auths) == 0 {
		return cache.Auth{}
	}
	return f.auths[len(f.auths)-1]
}
