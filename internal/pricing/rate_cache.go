package pricing

import (
	"sync"
	"time"
)

type rateEntry struct {
	date  time.Time
	price float64
}

// RateCache holds the most recently resolved price per symbol. It is a
// single-entry-per-symbol cache, not a time series: a hit requires the
// requested bucketed date to exactly match the cached one, and storing a
// different bucket replaces the prior entry for that symbol.
type RateCache struct {
	mu      sync.Mutex
	entries map[string]rateEntry
}

func NewRateCache() *RateCache {
	return &RateCache{entries: make(map[string]rateEntry)}
}

// Get returns the cached price for symbol if the cached bucketed date
// equals bucketedDate.
func (c *RateCache) Get(symbol string, bucketedDate time.Time) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok || !entry.date.Equal(bucketedDate) {
		return 0, false
	}
	return entry.price, true
}

// Put stores the price for symbol at bucketedDate, evicting whatever
// bucket was cached for that symbol before.
func (c *RateCache) Put(symbol string, bucketedDate time.Time, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[symbol] = rateEntry{date: bucketedDate, price: price}
}
