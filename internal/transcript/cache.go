package transcript

import (
	"fmt"
	"os"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultCacheBytes bounds the raw log bytes represented in a Cache.
const DefaultCacheBytes = 64 << 20

// Cache memoizes parsed logs keyed by path, size and modification time,
// so repeated reads of an unchanged log are not re-parsed. A log that
// grows gets a new key.
type Cache struct {
	c *ristretto.Cache[string, []Event]
}

// NewCache creates a cache holding parses of up to maxBytes of raw log.
func NewCache(maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []Event]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Events parses the log at path, serving unchanged logs from the cache.
// A missing log returns an error satisfying os.IsNotExist.
func (c *Cache) Events(path string) ([]Event, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d|%d", path, st.Size(), st.ModTime().UnixNano())
	if events, ok := c.c.Get(key); ok {
		return events, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	events := Parse(string(data))
	// Size changed between stat and read; the key would be stale.
	if int64(len(data)) == st.Size() {
		c.c.Set(key, events, st.Size()+1)
	}
	return events, nil
}

// Close releases the cache.
func (c *Cache) Close() {
	c.c.Close()
}
