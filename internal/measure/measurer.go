// Package measure assigns USD values to fills by pricing the asset legs of
// the measurable side against historical token prices.
package measure

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fill-tracker/internal/chain"
	"github.com/fill-tracker/internal/config"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/models"
)

// TokenMetadataReader resolves ERC-20 symbol and decimals from the chain.
type TokenMetadataReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (*chain.TokenMetadata, error)
}

// PriceResolver answers historical USD unit price lookups.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, tokenAddress, symbol string, date time.Time) (float64, bool)
}

// FillStore is the persistence surface of the measurer.
type FillStore interface {
	GetUnmeasuredFills(ctx context.Context, limit int) ([]*models.Fill, error)
	CommitMeasuredFill(ctx context.Context, fill *models.Fill, totalValue float64) error
	IncrementFillMeasurementAttempts(ctx context.Context, id string) (int, error)
	MarkFillImmeasurable(ctx context.Context, id string) error
}

// ArchiveAppender receives measured fills for analytics, outside the
// authoritative commit. May be nil when no archive is configured.
type ArchiveAppender interface {
	Append(ctx context.Context, fill *models.Fill) error
}

// Measurer values fills. Legs are priced sequentially so the "first
// priceable leg wins" rule holds and the price provider's call spacing is
// respected; concurrent fan-out over legs would break both.
type Measurer struct {
	chain       TokenMetadataReader
	prices      PriceResolver
	store       FillStore
	archive     ArchiveAppender
	batchSize   int
	interval    time.Duration
	maxAttempts int
	logger      *logging.Logger
}

func NewMeasurer(chainReader TokenMetadataReader, prices PriceResolver, store FillStore, archive ArchiveAppender, cfg *config.MeasurerConfig, logger *logging.Logger) *Measurer {
	return &Measurer{
		chain:       chainReader,
		prices:      prices,
		store:       store,
		archive:     archive,
		batchSize:   cfg.BatchSize,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}
}

// Run executes measurement rounds until the context is cancelled.
func (m *Measurer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.logger.WithError(err).Error("fill measurement round failed")
			}
		}
	}
}

// RunOnce measures one batch of unmeasured fills and returns how many
// gained a value. A fill that fails to measure does not stop the batch.
func (m *Measurer) RunOnce(ctx context.Context) (int, error) {
	fills, err := m.store.GetUnmeasuredFills(ctx, m.batchSize)
	if err != nil {
		return 0, err
	}

	measured := 0
	for _, fill := range fills {
		ok, err := m.MeasureFill(ctx, fill)
		if err != nil {
			m.logger.WithField("fillId", fill.ID).WithError(err).Error("failed to measure fill")
			continue
		}
		if ok {
			measured++
			continue
		}
		if err := m.recordFailedAttempt(ctx, fill); err != nil {
			m.logger.WithField("fillId", fill.ID).WithError(err).Error("failed to record measurement attempt")
		}
	}

	return measured, nil
}

// MeasureFill prices the measurable side of one fill and, when a positive
// value is found, commits the fill together with its index updates as one
// atomic unit. Returns false when no leg could be priced.
func (m *Measurer) MeasureFill(ctx context.Context, fill *models.Fill) (bool, error) {
	actor, ok := MeasurableActor(fill)
	if !ok {
		return false, nil
	}

	var total float64
	for _, asset := range fill.AssetsForActor(actor) {
		value := m.measureAssetValue(ctx, fill, asset)
		if total == 0 && value > 0 {
			total = value
		}
	}

	if total == 0 {
		return false, nil
	}

	fill.Conversions.USD.Amount = &total
	fill.HasValue = true

	if err := m.store.CommitMeasuredFill(ctx, fill, total); err != nil {
		return false, err
	}

	if m.archive != nil {
		if err := m.archive.Append(ctx, fill); err != nil {
			m.logger.WithField("fillId", fill.ID).WithError(err).Warn("failed to archive measured fill")
		}
	}

	return true, nil
}

// measureAssetValue resolves one leg's USD value. Any unresolvable step
// degrades to zero so the remaining legs still get a chance.
func (m *Measurer) measureAssetValue(ctx context.Context, fill *models.Fill, asset *models.Asset) float64 {
	logger := m.logger.WithFields(map[string]interface{}{
		"fillId":       fill.ID,
		"tokenAddress": asset.TokenAddress,
	})

	metadata, err := m.chain.TokenMetadata(ctx, common.HexToAddress(asset.TokenAddress))
	if err != nil {
		logger.WithError(err).Warn("could not resolve token metadata")
		return 0
	}
	if metadata.Symbol == "" {
		logger.Warn("could not determine symbol for token")
		return 0
	}
	if metadata.Decimals == nil {
		logger.Warn("could not determine decimals for token")
		return 0
	}

	amount, err := FormatTokenAmount(asset.Amount, *metadata.Decimals)
	if err != nil {
		logger.WithError(err).Warn("invalid token amount on asset leg")
		return 0
	}

	symbol := NormalizeSymbol(metadata.Symbol)
	price, ok := m.prices.ResolvePrice(ctx, asset.TokenAddress, symbol, fill.Date)
	if !ok {
		return 0
	}

	value := amount * price
	asset.Price = &models.AssetUSD{USD: price}
	asset.Value = &models.AssetUSD{USD: value}

	return value
}

// recordFailedAttempt counts a zero-value pass and marks the fill
// immeasurable once the configured maximum is reached.
func (m *Measurer) recordFailedAttempt(ctx context.Context, fill *models.Fill) error {
	attempts, err := m.store.IncrementFillMeasurementAttempts(ctx, fill.ID)
	if err != nil {
		return err
	}
	if attempts < m.maxAttempts {
		return nil
	}

	m.logger.WithFields(map[string]interface{}{
		"fillId":   fill.ID,
		"attempts": attempts,
	}).Info("marking fill immeasurable")

	return m.store.MarkFillImmeasurable(ctx, fill.ID)
}
