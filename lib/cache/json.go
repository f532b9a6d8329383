package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// --------------------------------------------------------------------------
// Store Modes
// --------------------------------------------------------------------------

// StoreMode selects the write condition of StoreJSON
type StoreMode int

const (
	StoreModeSet     StoreMode = iota // write unconditionally
	StoreModeAdd                      // write only if the key does not exist
	StoreModeReplace                  // write only if the key exists
)

// String returns the name of the store mode
func (m StoreMode) String() string {
	switch m {
	case StoreModeSet:
		return "set"
	case StoreModeAdd:
		return "add"
	case StoreModeReplace:
		return "replace"
	default:
		return fmt.Sprintf("StoreMode(%d)", int(m))
	}
}

// ParseStoreMode converts a name to a StoreMode
func ParseStoreMode(s string) (StoreMode, error) {
	switch s {
	case "set", "":
		return StoreModeSet, nil
	case "add":
		return StoreModeAdd, nil
	case "replace":
		return StoreModeReplace, nil
	default:
		return StoreModeSet, fmt.Errorf("invalid store mode %q (expected one of: set, add, replace)", s)
	}
}

// --------------------------------------------------------------------------
// JSON Helpers
// --------------------------------------------------------------------------

// maxRelativeExpiration is the largest expiration memcached interprets as relative (30 days)
const maxRelativeExpiration = 30 * 24 * time.Hour

// expiration converts a ttl into the memcached expiration value.
// Zero means no expiry, ttls above 30 days are sent as absolute unix time.
// Absolute times beyond the int32 range are clamped to its maximum.
func expiration(ttl time.Duration, now time.Time) int32 {
	switch {
	case ttl <= 0:
		return 0
	case ttl > maxRelativeExpiration:
		abs := now.Add(ttl).Unix()
		if abs > math.MaxInt32 {
			return math.MaxInt32
		}
		return int32(abs)
	default:
		secs := int32(ttl / time.Second)
		if secs == 0 {
			secs = 1
		}
		return secs
	}
}

// StoreJSON encodes value as json and writes it with the given mode. A ttl of 0 means no expiry.
func StoreJSON(c IClient, mode StoreMode, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}

	item := &Item{Key: key, Value: data, Expiration: expiration(ttl, time.Now())}
	switch mode {
	case StoreModeSet:
		return c.Set(item)
	case StoreModeAdd:
		return c.Add(item)
	case StoreModeReplace:
		return c.Replace(item)
	default:
		return fmt.Errorf("unsupported store mode %s", mode)
	}
}

// CasJSON encodes value as json and writes it only if the item (as returned by GetsJSON)
// was not modified in between. ErrCASConflict is returned on a conflict.
func CasJSON(c IClient, item *Item, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", item.Key, err)
	}
	item.Value = data
	item.Expiration = expiration(ttl, time.Now())
	return c.CompareAndSwap(item)
}

// GetJSON loads the key and decodes its json value. The boolean reports whether the key was found.
// A stored json null is reported as found with the zero value.
func GetJSON[T any](c IClient, key string) (value T, found bool, err error) {
	value, item, err := GetsJSON[T](c, key)
	if IsCacheMiss(err) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	return value, item != nil, nil
}

// GetsJSON loads the key and decodes its json value. The returned item can be passed to CasJSON.
// ErrCacheMiss is returned if the key does not exist.
func GetsJSON[T any](c IClient, key string) (value T, item *Item, err error) {
	item, err = c.Get(key)
	if err != nil {
		return value, nil, err
	}
	if len(item.Value) == 0 {
		return value, item, nil
	}
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return value, nil, fmt.Errorf("failed to decode value of key %s: %w", key, err)
	}
	return value, item, nil
}
