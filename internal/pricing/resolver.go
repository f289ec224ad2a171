// Package pricing resolves historical USD prices for tokens, with a
// process-local cache keyed by symbol to keep provider call volume down.
package pricing

import (
	"context"
	"time"

	"github.com/fill-tracker/internal/logging"
)

// Resolver answers price lookups from the rate cache, falling back to the
// external provider on a miss. Provider failures and missing prices both
// degrade to not-found rather than erroring; callers skip the leg.
type Resolver struct {
	provider Provider
	cache    *RateCache
	logger   *logging.Logger
	now      func() time.Time
}

func NewResolver(provider Provider, logger *logging.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    NewRateCache(),
		logger:   logger,
		now:      time.Now,
	}
}

// ResolvePrice returns the USD unit price of the token at the given date,
// or false when no price could be determined.
func (r *Resolver) ResolvePrice(ctx context.Context, tokenAddress, symbol string, date time.Time) (float64, bool) {
	bucket := BucketDate(date, r.now())

	if price, ok := r.cache.Get(symbol, bucket); ok {
		return price, true
	}

	price, err := r.provider.HistoricalPrice(ctx, tokenAddress, symbol, bucket)
	if err != nil {
		r.logger.WithFields(map[string]interface{}{
			"tokenAddress": tokenAddress,
			"symbol":       symbol,
			"date":         bucket.Format(time.RFC3339),
		}).WithError(err).Warn("unable to resolve USD price")
		return 0, false
	}

	r.cache.Put(symbol, bucket, price)
	return price, true
}
