package semjoin

import (
	"fmt"
	"sync"
	"testing"
)

func TestNormalizationCache(t *testing.T) {
	c := NewNormalizationCache(10)
	email := NewNormalizerRegistry().MustLookup(NormalizerEmail)

	if got := c.Normalize(email, "A@X.com"); got != "a@x.com" {
		t.Errorf("unexpected canonical value %q", got)
	}
	c.Normalize(email, "A@X.com")
	c.Normalize(email, nil)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", s)
	}
	if s.Size != 1 || s.Capacity != 10 {
		t.Errorf("unexpected size/capacity: %+v", s)
	}
	if s.HitRate() != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", s.HitRate())
	}
	if (CacheStats{}).HitRate() != 0 {
		t.Error("hit rate before any lookup should be 0")
	}
}

func TestNormalizationCacheKeys(t *testing.T) {
	c := NewNormalizationCache(10)
	r := NewNormalizerRegistry()

	// same raw text under different normalizers or dtypes is cached separately
	c.Normalize(r.MustLookup(NormalizerEmail), "42")
	c.Normalize(r.MustLookup(NormalizerNumeric), "42")
	c.Normalize(r.MustLookup(NormalizerNumeric), int64(42))
	if s := c.Stats(); s.Size != 3 || s.Hits != 0 {
		t.Errorf("expected 3 distinct entries, got %+v", s)
	}
}

func TestNormalizationCacheEvictsLRU(t *testing.T) {
	c := NewNormalizationCache(2)
	n := NewNormalizerRegistry().MustLookup(NormalizerDefault)

	c.Normalize(n, "a")
	c.Normalize(n, "b")
	c.Normalize(n, "a") // a is now most recent
	c.Normalize(n, "c") // evicts b

	if s := c.Stats(); s.Size != 2 {
		t.Fatalf("expected size 2, got %d", s.Size)
	}
	before := c.Stats().Hits
	c.Normalize(n, "a")
	if c.Stats().Hits != before+1 {
		t.Error("expected a to survive eviction")
	}
	before = c.Stats().Misses
	c.Normalize(n, "b")
	if c.Stats().Misses != before+1 {
		t.Error("expected b to have been evicted")
	}
}

func TestNormalizationCacheResizeAndClear(t *testing.T) {
	c := NewNormalizationCache(0)
	if c.Stats().Capacity != DefaultCacheSize {
		t.Errorf("expected default capacity, got %d", c.Stats().Capacity)
	}

	n := NewNormalizerRegistry().MustLookup(NormalizerDefault)
	for i := 0; i < 5; i++ {
		c.Normalize(n, fmt.Sprint(i))
	}
	c.Resize(3)
	if s := c.Stats(); s.Size != 3 || s.Capacity != 3 {
		t.Errorf("expected 3 entries after resize, got %+v", s)
	}
	c.Resize(-1)
	if c.Stats().Capacity != 3 {
		t.Error("non-positive resize should be ignored")
	}

	c.Clear()
	if s := c.Stats(); s.Size != 0 || s.Hits != 0 || s.Misses != 0 {
		t.Errorf("expected an empty cache, got %+v", s)
	}
}

func TestNormalizationCacheConcurrent(t *testing.T) {
	c := NewNormalizationCache(100)
	n := NewNormalizerRegistry().MustLookup(NormalizerEmail)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v := fmt.Sprintf("User%d@X.com", i%50)
				if got := c.Normalize(n, v); got != fmt.Sprintf("user%d@x.com", i%50) {
					t.Errorf("unexpected value %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
	if s := c.Stats(); s.Hits+s.Misses != 8*500 {
		t.Errorf("expected %d lookups, got %+v", 8*500, s)
	}
}
