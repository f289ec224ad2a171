package models

import (
	"time"

	"github.com/fill-tracker/internal/types"
)

// Fill represents a normalized record of one executed trade, derived from
// one or more events plus the owning transaction. The valuation fields
// (asset prices, conversions, hasValue, immeasurable) are owned by the fill
// value measurer; everything else is written at creation time by the
// fill-creation consumer.
type Fill struct {
	ID              string       `json:"id"`
	TransactionHash string       `json:"transactionHash"`
	Maker           string       `json:"maker"`
	Taker           string       `json:"taker"`
	Date            time.Time    `json:"date"`
	Assets          []*Asset     `json:"assets"`
	Conversions     Conversions  `json:"conversions"`
	HasValue        bool         `json:"hasValue"`
	Immeasurable    bool         `json:"immeasurable"`
	// MeasurementAttempts counts zero-value measurement passes. Once it
	// reaches the configured maximum the fill is marked immeasurable.
	MeasurementAttempts int `json:"measurementAttempts"`
}

// Asset represents one leg of a fill
type Asset struct {
	Actor        types.FillActor `json:"actor"`
	TokenAddress string          `json:"tokenAddress"`
	Amount       string          `json:"amount"`
	Price        *AssetUSD       `json:"price,omitempty"`
	Value        *AssetUSD       `json:"value,omitempty"`
}

// AssetUSD holds a USD-denominated figure on an asset leg. Price and value
// are set only together, and only on the leg chosen as measurable.
type AssetUSD struct {
	USD float64 `json:"USD"`
}

// Conversions holds resolved fiat conversions for a fill
type Conversions struct {
	USD Conversion `json:"USD"`
}

// Conversion holds a single resolved conversion amount. Amount is nil until
// the fill has been measured.
type Conversion struct {
	Amount *float64 `json:"amount,omitempty"`
}

// AssetsForActor returns the asset legs belonging to the given actor, in
// their original order
func (f *Fill) AssetsForActor(actor types.FillActor) []*Asset {
	var assets []*Asset
	for _, asset := range f.Assets {
		if asset.Actor == actor {
			assets = append(assets, asset)
		}
	}
	return assets
}
