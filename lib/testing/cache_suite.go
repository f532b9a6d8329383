package testing

import (
	"testing"
	"time"

	"github.com/ValentinKolb/cbrest/lib/cache"
)

// CacheFactory creates a fresh, empty cache client
type CacheFactory func() cache.IClient

type suiteDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RunCacheClientTests runs a conformance suite for a cache.IClient implementation.
func RunCacheClientTests(t *testing.T, name string, factory CacheFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("StoreModes", func(t *testing.T) {
			testStoreModes(t, factory())
		})

		t.Run("JSONRoundTrip", func(t *testing.T) {
			testJSONRoundTrip(t, factory())
		})

		t.Run("CompareAndSwap", func(t *testing.T) {
			testCompareAndSwap(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})
	})
}

func testStoreModes(t *testing.T, c cache.IClient) {
	defer c.Close()

	if err := cache.StoreJSON(c, cache.StoreModeReplace, "modes", suiteDoc{Name: "a"}, 0); err != cache.ErrNotStored {
		t.Errorf("replace of a missing key: expected ErrNotStored, got %v", err)
	}
	if err := cache.StoreJSON(c, cache.StoreModeAdd, "modes", suiteDoc{Name: "a"}, 0); err != nil {
		t.Fatalf("add of a missing key failed: %v", err)
	}
	if err := cache.StoreJSON(c, cache.StoreModeAdd, "modes", suiteDoc{Name: "b"}, 0); err != cache.ErrNotStored {
		t.Errorf("add of an existing key: expected ErrNotStored, got %v", err)
	}
	if err := cache.StoreJSON(c, cache.StoreModeReplace, "modes", suiteDoc{Name: "c"}, time.Minute); err != nil {
		t.Errorf("replace of an existing key failed: %v", err)
	}
	if err := cache.StoreJSON(c, cache.StoreModeSet, "modes", suiteDoc{Name: "d"}, 0); err != nil {
		t.Errorf("set failed: %v", err)
	}

	doc, found, err := cache.GetJSON[suiteDoc](c, "modes")
	if err != nil || !found || doc.Name != "d" {
		t.Errorf("expected doc d, got %+v found=%v err=%v", doc, found, err)
	}
}

func testJSONRoundTrip(t *testing.T, c cache.IClient) {
	defer c.Close()

	want := suiteDoc{Name: "beer", Count: 7}
	if err := cache.StoreJSON(c, cache.StoreModeSet, "doc", want, 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, found, err := cache.GetJSON[suiteDoc](c, "doc")
	if err != nil || !found {
		t.Fatalf("get failed: found=%v err=%v", found, err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	_, found, err = cache.GetJSON[suiteDoc](c, "missing")
	if err != nil || found {
		t.Errorf("missing key: expected not found without error, got found=%v err=%v", found, err)
	}
}

func testCompareAndSwap(t *testing.T, c cache.IClient) {
	defer c.Close()

	if err := cache.StoreJSON(c, cache.StoreModeSet, "cas", suiteDoc{Count: 1}, 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	doc, item, err := cache.GetsJSON[suiteDoc](c, "cas")
	if err != nil {
		t.Fatalf("gets failed: %v", err)
	}
	stale, staleItem, err := cache.GetsJSON[suiteDoc](c, "cas")
	if err != nil {
		t.Fatalf("gets failed: %v", err)
	}

	doc.Count++
	if err := cache.CasJSON(c, item, doc, 0); err != nil {
		t.Fatalf("cas failed: %v", err)
	}

	stale.Count += 10
	if err := cache.CasJSON(c, staleItem, stale, 0); err != cache.ErrCASConflict {
		t.Errorf("cas with a stale item: expected ErrCASConflict, got %v", err)
	}

	got, _, _ := cache.GetJSON[suiteDoc](c, "cas")
	if got.Count != 2 {
		t.Errorf("expected count 2, got %d", got.Count)
	}
}

func testDelete(t *testing.T, c cache.IClient) {
	defer c.Close()

	if err := cache.StoreJSON(c, cache.StoreModeSet, "del", suiteDoc{}, 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := c.Delete("del"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := c.Get("del"); !cache.IsCacheMiss(err) {
		t.Errorf("expected a cache miss after delete, got %v", err)
	}
	if err := c.Delete("del"); !cache.IsCacheMiss(err) {
		t.Errorf("delete of a missing key: expected a cache miss, got %v", err)
	}
}
