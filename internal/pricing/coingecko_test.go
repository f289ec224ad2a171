package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fill-tracker/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*CoinGeckoClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewCoinGeckoClient(config.PricingConfig{
		Endpoint:        server.URL,
		RequestTimeout:  5 * time.Second,
		MinCallInterval: time.Millisecond,
	})

	return client, server
}

func TestHistoricalPriceForContract(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/coins/ethereum/contract/0xdac17f958d2ee523a2206206994597c13d831ec7":
			fmt.Fprint(w, `{"id": "tether"}`)
		case "/coins/tether/history":
			assert.Equal(t, "14-01-2021", r.URL.Query().Get("date"))
			fmt.Fprint(w, `{"market_data": {"current_price": {"usd": 1.001}}}`)
		default:
			http.NotFound(w, r)
		}
	}))

	date := time.Date(2021, 1, 14, 9, 37, 0, 0, time.UTC)
	price, err := client.HistoricalPrice(context.Background(), "0xDAC17F958D2ee523a2206206994597C13D831ec7", "USDT", date)
	require.NoError(t, err)
	assert.Equal(t, 1.001, price)
	assert.Len(t, paths, 2)
}

func TestHistoricalPriceNativeAssetSkipsContractLookup(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/ethereum/history", r.URL.Path)
		fmt.Fprint(w, `{"market_data": {"current_price": {"usd": 1250.5}}}`)
	}))

	price, err := client.HistoricalPrice(context.Background(),
		"0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "ETH",
		time.Date(2021, 1, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1250.5, price)
}

func TestHistoricalPriceMissingUSDField(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/coins/ethereum/contract/0x0000000000000000000000000000000000000abc" {
			fmt.Fprint(w, `{"id": "obscure-token"}`)
			return
		}
		fmt.Fprint(w, `{"market_data": {"current_price": {}}}`)
	}))

	_, err := client.HistoricalPrice(context.Background(),
		"0x0000000000000000000000000000000000000abc", "OBS",
		time.Date(2021, 1, 14, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestHistoricalPriceUnknownContract(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.HistoricalPrice(context.Background(),
		"0x0000000000000000000000000000000000000abc", "OBS",
		time.Date(2021, 1, 14, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrPriceNotFound)
}
