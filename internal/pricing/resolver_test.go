package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fill-tracker/internal/logging"
)

type fakeProvider struct {
	price float64
	err   error
	calls int
}

func (p *fakeProvider) HistoricalPrice(ctx context.Context, tokenAddress, symbol string, date time.Time) (float64, error) {
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.price, nil
}

func newTestResolver(provider Provider, now time.Time) *Resolver {
	r := NewResolver(provider, logging.NewLogger(logging.LevelError, logging.FormatText))
	r.now = func() time.Time { return now }
	return r
}

func TestResolverCachesSameBucket(t *testing.T) {
	now := time.Date(2021, 1, 15, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{price: 1.01}
	resolver := newTestResolver(provider, now)

	date := now.Add(-time.Hour)

	price, ok := resolver.ResolvePrice(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", "USDT", date)
	require.True(t, ok)
	assert.Equal(t, 1.01, price)
	assert.Equal(t, 1, provider.calls)

	// Same minute bucket, different seconds: must hit the cache.
	_, ok = resolver.ResolvePrice(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", "USDT", date.Add(30*time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, provider.calls)
}

func TestResolverEvictsOnDifferentBucket(t *testing.T) {
	now := time.Date(2021, 1, 15, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{price: 590.25}
	resolver := newTestResolver(provider, now)

	first := now.Add(-2 * time.Hour)
	second := first.Add(5 * time.Minute)

	_, ok := resolver.ResolvePrice(context.Background(), "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", "WETH", first)
	require.True(t, ok)
	_, ok = resolver.ResolvePrice(context.Background(), "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", "WETH", second)
	require.True(t, ok)
	assert.Equal(t, 2, provider.calls)

	// The first bucket was evicted by the second; asking again re-fetches.
	_, ok = resolver.ResolvePrice(context.Background(), "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", "WETH", first)
	require.True(t, ok)
	assert.Equal(t, 3, provider.calls)
}

func TestResolverSeparateSymbolsSeparateEntries(t *testing.T) {
	now := time.Date(2021, 1, 15, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{price: 7}
	resolver := newTestResolver(provider, now)

	date := now.Add(-time.Hour)

	_, _ = resolver.ResolvePrice(context.Background(), "0xaaa0000000000000000000000000000000000001", "AAA", date)
	_, _ = resolver.ResolvePrice(context.Background(), "0xbbb0000000000000000000000000000000000002", "BBB", date)
	assert.Equal(t, 2, provider.calls)

	_, _ = resolver.ResolvePrice(context.Background(), "0xaaa0000000000000000000000000000000000001", "AAA", date)
	assert.Equal(t, 2, provider.calls)
}

func TestResolverProviderFailureIsNotFound(t *testing.T) {
	now := time.Date(2021, 1, 15, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{err: errors.New("connection refused")}
	resolver := newTestResolver(provider, now)

	_, ok := resolver.ResolvePrice(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", "USDT", now.Add(-time.Hour))
	assert.False(t, ok)

	// Failures are not cached; a later request tries the provider again.
	_, _ = resolver.ResolvePrice(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", "USDT", now.Add(-time.Hour))
	assert.Equal(t, 2, provider.calls)
}
