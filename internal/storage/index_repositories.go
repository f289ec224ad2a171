package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fill-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// The index repositories maintain the derived search/aggregate structures
// kept consistent with the authoritative fill record. All writes happen
// within the measurer's commit transaction: a fill's valuation and its
// indexes change together or not at all.

// FillValueIndexRepository maintains the fill value index
type FillValueIndexRepository struct{}

// NewFillValueIndexRepository creates a new fill value index repository
func NewFillValueIndexRepository() *FillValueIndexRepository {
	return &FillValueIndexRepository{}
}

// IndexWithinTx records the measured value of a fill
func (r *FillValueIndexRepository) IndexWithinTx(ctx context.Context, tx pgx.Tx, fill *models.Fill, totalValue float64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO fill_values (fill_id, value_usd, date)
		VALUES ($1, $2, $3)
		ON CONFLICT (fill_id) DO UPDATE SET value_usd = EXCLUDED.value_usd
	`, fill.ID, totalValue, fill.Date)
	if err != nil {
		return fmt.Errorf("failed to index fill value: %w", err)
	}

	return nil
}

// FillTraderIndexRepository maintains the trader index
type FillTraderIndexRepository struct{}

// NewFillTraderIndexRepository creates a new trader index repository
func NewFillTraderIndexRepository() *FillTraderIndexRepository {
	return &FillTraderIndexRepository{}
}

// IndexWithinTx records both trading parties of a fill
func (r *FillTraderIndexRepository) IndexWithinTx(ctx context.Context, tx pgx.Tx, fill *models.Fill) error {
	for _, trader := range []struct {
		address string
		actor   string
	}{
		{fill.Maker, "maker"},
		{fill.Taker, "taker"},
	} {
		if trader.address == "" {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO fill_traders (fill_id, address, actor, date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (fill_id, address, actor) DO NOTHING
		`, fill.ID, strings.ToLower(trader.address), trader.actor, fill.Date)
		if err != nil {
			return fmt.Errorf("failed to index fill trader %s: %w", trader.address, err)
		}
	}

	return nil
}

// TradedTokenIndexRepository maintains the traded token index
type TradedTokenIndexRepository struct{}

// NewTradedTokenIndexRepository creates a new traded token index repository
func NewTradedTokenIndexRepository() *TradedTokenIndexRepository {
	return &TradedTokenIndexRepository{}
}

// IndexWithinTx records every token leg of a fill, with the resolved USD
// value on legs that were priced
func (r *TradedTokenIndexRepository) IndexWithinTx(ctx context.Context, tx pgx.Tx, fill *models.Fill) error {
	for _, asset := range fill.Assets {
		var valueUSD *float64
		if asset.Value != nil {
			valueUSD = &asset.Value.USD
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO traded_tokens (fill_id, token_address, actor, value_usd, date)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (fill_id, token_address, actor) DO UPDATE SET value_usd = EXCLUDED.value_usd
		`, fill.ID, strings.ToLower(asset.TokenAddress), string(asset.Actor), valueUSD, fill.Date)
		if err != nil {
			return fmt.Errorf("failed to index traded token %s: %w", asset.TokenAddress, err)
		}
	}

	return nil
}
