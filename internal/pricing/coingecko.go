package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fill-tracker/internal/config"
	apperrors "github.com/fill-tracker/internal/errors"
)

// ErrPriceNotFound indicates the provider has no USD price for the
// requested coin and date.
var ErrPriceNotFound = errors.New("price not found")

const (
	// nativeAssetCoinID is the provider's fixed identifier for ether;
	// it never goes through contract-to-coin resolution.
	nativeAssetCoinID = "ethereum"

	// nativeAssetSymbol marks the native asset in fill legs.
	nativeAssetSymbol = "ETH"
)

// Provider resolves a historical USD unit price for a token at a date.
type Provider interface {
	HistoricalPrice(ctx context.Context, tokenAddress, symbol string, date time.Time) (float64, error)
}

// CoinGeckoClient fetches historical token prices from a CoinGecko-shaped
// HTTP API. Every outbound call is gated by a rate limiter so requests
// keep a minimum spacing regardless of success or failure.
type CoinGeckoClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewCoinGeckoClient(cfg config.PricingConfig) *CoinGeckoClient {
	return &CoinGeckoClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Every(cfg.MinCallInterval), 1),
	}
}

type contractResponse struct {
	ID string `json:"id"`
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice struct {
			USD *float64 `json:"usd"`
		} `json:"current_price"`
	} `json:"market_data"`
}

// HistoricalPrice resolves the provider coin id for the token, then looks
// up its market data on the given date (UTC day granularity on the wire).
func (c *CoinGeckoClient) HistoricalPrice(ctx context.Context, tokenAddress, symbol string, date time.Time) (float64, error) {
	coinID, err := c.resolveCoinID(ctx, tokenAddress, symbol)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false",
		c.endpoint, coinID, date.UTC().Format("02-01-2006"))

	var history historyResponse
	if err := c.getJSON(ctx, url, &history); err != nil {
		return 0, err
	}

	if history.MarketData == nil || history.MarketData.CurrentPrice.USD == nil {
		return 0, ErrPriceNotFound
	}

	return *history.MarketData.CurrentPrice.USD, nil
}

func (c *CoinGeckoClient) resolveCoinID(ctx context.Context, tokenAddress, symbol string) (string, error) {
	if strings.EqualFold(symbol, nativeAssetSymbol) {
		return nativeAssetCoinID, nil
	}

	url := fmt.Sprintf("%s/coins/%s/contract/%s",
		c.endpoint, nativeAssetCoinID, strings.ToLower(tokenAddress))

	var contract contractResponse
	if err := c.getJSON(ctx, url, &contract); err != nil {
		return "", err
	}

	if contract.ID == "" {
		return "", ErrPriceNotFound
	}

	return contract.ID, nil
}

func (c *CoinGeckoClient) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.NewProviderError("coingecko", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewProviderError("coingecko", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPriceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewProviderError("coingecko",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewProviderError("coingecko", err)
	}

	return nil
}
