package measure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fill-tracker/internal/chain"
	"github.com/fill-tracker/internal/config"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/types"
)

const (
	wethAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	daiAddress  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
)

type fakeTokenReader struct {
	metadata map[common.Address]*chain.TokenMetadata
}

func (r *fakeTokenReader) TokenMetadata(ctx context.Context, token common.Address) (*chain.TokenMetadata, error) {
	metadata, ok := r.metadata[token]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return metadata, nil
}

type fakeResolver struct {
	prices map[string]float64
	calls  []string
}

func (r *fakeResolver) ResolvePrice(ctx context.Context, tokenAddress, symbol string, date time.Time) (float64, bool) {
	r.calls = append(r.calls, symbol)
	price, ok := r.prices[symbol]
	return price, ok
}

type fakeFillStore struct {
	unmeasured   []*models.Fill
	committed    *models.Fill
	committedVal float64
	commitErr    error
	attempts     map[string]int
	immeasurable []string
}

func (s *fakeFillStore) GetUnmeasuredFills(ctx context.Context, limit int) ([]*models.Fill, error) {
	if limit < len(s.unmeasured) {
		return s.unmeasured[:limit], nil
	}
	return s.unmeasured, nil
}

func (s *fakeFillStore) CommitMeasuredFill(ctx context.Context, fill *models.Fill, totalValue float64) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = fill
	s.committedVal = totalValue
	return nil
}

func (s *fakeFillStore) IncrementFillMeasurementAttempts(ctx context.Context, id string) (int, error) {
	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.attempts[id]++
	return s.attempts[id], nil
}

func (s *fakeFillStore) MarkFillImmeasurable(ctx context.Context, id string) error {
	s.immeasurable = append(s.immeasurable, id)
	return nil
}

type fakeArchive struct {
	appended []*models.Fill
}

func (a *fakeArchive) Append(ctx context.Context, fill *models.Fill) error {
	a.appended = append(a.appended, fill)
	return nil
}

func decimals(d uint8) *uint8 { return &d }

func defaultTokenReader() *fakeTokenReader {
	return &fakeTokenReader{metadata: map[common.Address]*chain.TokenMetadata{
		common.HexToAddress(wethAddress): {Symbol: "WETH", Decimals: decimals(18)},
		common.HexToAddress(daiAddress):  {Symbol: "DAI", Decimals: decimals(18)},
	}}
}

func newTestMeasurer(reader TokenMetadataReader, resolver PriceResolver, store FillStore, archive ArchiveAppender) *Measurer {
	return NewMeasurer(reader, resolver, store, archive,
		&config.MeasurerConfig{BatchSize: 50, Interval: time.Minute, MaxAttempts: 10},
		logging.NewLogger(logging.LevelError, logging.FormatText))
}

func testFill(assets ...*models.Asset) *models.Fill {
	return &models.Fill{
		ID:              "fill-1",
		TransactionHash: "0x846d405f1ab318362bdeccc7e3ead7e08f4e3103ba2255a83316a57a5b85a0a2",
		Maker:           "0x4d91247ee756e77f815fea9de8df41114e23b5f4",
		Taker:           "0x6958f5e95332d93d21af0d7b9ca85b8212fee0a5",
		Date:            time.Date(2021, 1, 6, 10, 0, 0, 0, time.UTC),
		Assets:          assets,
	}
}

func TestMeasurableActor(t *testing.T) {
	t.Run("prefers maker", func(t *testing.T) {
		fill := testFill(
			&models.Asset{Actor: types.ActorMaker, TokenAddress: wethAddress, Amount: "1"},
			&models.Asset{Actor: types.ActorTaker, TokenAddress: daiAddress, Amount: "1"},
		)
		actor, ok := MeasurableActor(fill)
		require.True(t, ok)
		assert.Equal(t, types.ActorMaker, actor)
	})

	t.Run("falls back to taker", func(t *testing.T) {
		fill := testFill(&models.Asset{Actor: types.ActorTaker, TokenAddress: daiAddress, Amount: "1"})
		actor, ok := MeasurableActor(fill)
		require.True(t, ok)
		assert.Equal(t, types.ActorTaker, actor)
	})

	t.Run("no legs means no actor", func(t *testing.T) {
		_, ok := MeasurableActor(testFill())
		assert.False(t, ok)
	})
}

func TestMeasureFillCommitsFirstPriceableLeg(t *testing.T) {
	store := &fakeFillStore{}
	archive := &fakeArchive{}
	resolver := &fakeResolver{prices: map[string]float64{"ETH": 1000, "DAI": 1}}
	m := newTestMeasurer(defaultTokenReader(), resolver, store, archive)

	// Two maker legs; the first priceable one fixes the total, the second
	// is still annotated but never added.
	fill := testFill(
		&models.Asset{Actor: types.ActorMaker, TokenAddress: wethAddress, Amount: "2000000000000000000"},
		&models.Asset{Actor: types.ActorMaker, TokenAddress: daiAddress, Amount: "1500000000000000000000"},
		&models.Asset{Actor: types.ActorTaker, TokenAddress: daiAddress, Amount: "1"},
	)

	ok, err := m.MeasureFill(context.Background(), fill)
	require.NoError(t, err)
	require.True(t, ok)

	require.NotNil(t, store.committed)
	assert.Equal(t, 2000.0, store.committedVal)
	require.NotNil(t, fill.Conversions.USD.Amount)
	assert.Equal(t, 2000.0, *fill.Conversions.USD.Amount)
	assert.True(t, fill.HasValue)

	require.NotNil(t, fill.Assets[0].Price)
	assert.Equal(t, 1000.0, fill.Assets[0].Price.USD)
	assert.Equal(t, 2000.0, fill.Assets[0].Value.USD)
	require.NotNil(t, fill.Assets[1].Value)
	assert.Equal(t, 1500.0, fill.Assets[1].Value.USD)

	// Taker legs are never priced when the maker side is measurable.
	assert.Nil(t, fill.Assets[2].Price)
	assert.Equal(t, []string{"ETH", "DAI"}, resolver.calls)

	require.Len(t, archive.appended, 1)
}

func TestMeasureFillFallsThroughUnresolvableLegs(t *testing.T) {
	store := &fakeFillStore{}
	resolver := &fakeResolver{prices: map[string]float64{"DAI": 1}}
	m := newTestMeasurer(defaultTokenReader(), resolver, store, nil)

	// First leg's token is unknown on chain; second leg carries the value.
	fill := testFill(
		&models.Asset{Actor: types.ActorMaker, TokenAddress: "0x000000000000000000000000000000000000dead", Amount: "5"},
		&models.Asset{Actor: types.ActorMaker, TokenAddress: daiAddress, Amount: "250000000000000000000"},
	)

	ok, err := m.MeasureFill(context.Background(), fill)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 250.0, store.committedVal)
}

func TestMeasureFillNoPriceableLeg(t *testing.T) {
	store := &fakeFillStore{}
	resolver := &fakeResolver{prices: map[string]float64{}}
	m := newTestMeasurer(defaultTokenReader(), resolver, store, nil)

	fill := testFill(&models.Asset{Actor: types.ActorMaker, TokenAddress: wethAddress, Amount: "1000000000000000000"})

	ok, err := m.MeasureFill(context.Background(), fill)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, store.committed)
	assert.False(t, fill.HasValue)
}

func TestMeasureFillWithoutMeasurableActor(t *testing.T) {
	store := &fakeFillStore{}
	m := newTestMeasurer(defaultTokenReader(), &fakeResolver{}, store, nil)

	ok, err := m.MeasureFill(context.Background(), testFill())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunOnceMarksImmeasurableAfterMaxAttempts(t *testing.T) {
	fill := testFill(&models.Asset{Actor: types.ActorMaker, TokenAddress: wethAddress, Amount: "1000000000000000000"})
	fill.MeasurementAttempts = 9

	store := &fakeFillStore{unmeasured: []*models.Fill{fill}, attempts: map[string]int{fill.ID: 9}}
	resolver := &fakeResolver{prices: map[string]float64{}}
	m := newTestMeasurer(defaultTokenReader(), resolver, store, nil)

	measured, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, measured)
	assert.Equal(t, []string{fill.ID}, store.immeasurable)
}

func TestRunOnceCountsMeasuredFills(t *testing.T) {
	priceable := testFill(&models.Asset{Actor: types.ActorMaker, TokenAddress: daiAddress, Amount: "1000000000000000000"})
	unpriceable := testFill(&models.Asset{Actor: types.ActorMaker, TokenAddress: "0x000000000000000000000000000000000000dead", Amount: "5"})
	unpriceable.ID = "fill-2"

	store := &fakeFillStore{unmeasured: []*models.Fill{priceable, unpriceable}}
	resolver := &fakeResolver{prices: map[string]float64{"DAI": 1}}
	m := newTestMeasurer(defaultTokenReader(), resolver, store, nil)

	measured, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, measured)
	assert.Equal(t, 1, store.attempts["fill-2"])
	assert.Empty(t, store.immeasurable)
}

func TestFormatTokenAmount(t *testing.T) {
	amount, err := FormatTokenAmount("1500000000000000000", 18)
	require.NoError(t, err)
	assert.Equal(t, 1.5, amount)

	amount, err = FormatTokenAmount("250000", 6)
	require.NoError(t, err)
	assert.Equal(t, 0.25, amount)

	_, err = FormatTokenAmount("not-a-number", 18)
	assert.Error(t, err)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "ETH", NormalizeSymbol("WETH"))
	assert.Equal(t, "ETH", NormalizeSymbol("weth"))
	assert.Equal(t, "DAI", NormalizeSymbol("dai"))
	assert.Equal(t, "USDC", NormalizeSymbol("USDC"))
}
