package finance

import (
	"sync"
	"time"
)

// Rendered chart PNGs are cached briefly so repeated tool calls for the
// same data within a turn or two reuse the image instead of re-rendering.
var (
	chartCache   = map[string]chartCacheEntry{}
	chartCacheMu sync.Mutex
)

// cacheGet returns a copy of a cached image that is still within TTL.
func cacheGet(key string) ([]byte, bool) {
	chartCacheMu.Lock()
	defer chartCacheMu.Unlock()
	if entry, ok := chartCache[key]; ok {
		if time.Now().Before(entry.createdAt.Add(chartCacheTTL)) {
			img := make([]byte, len(entry.image))
			copy(img, entry.image)
			return img, true
		}
	}
	return nil, false
}

func cacheSet(key string, img []byte) {
	chartCacheMu.Lock()
	chartCache[key] = chartCacheEntry{createdAt: time.Now(), image: img}
	chartCacheMu.Unlock()
}
