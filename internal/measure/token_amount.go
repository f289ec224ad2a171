package measure

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatTokenAmount converts a raw integer token amount into its decimal
// representation using the token's decimals.
func FormatTokenAmount(rawAmount string, decimals uint8) (float64, error) {
	raw, ok := new(big.Float).SetString(rawAmount)
	if !ok {
		return 0, fmt.Errorf("invalid token amount: %s", rawAmount)
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(
		big.NewInt(10), big.NewInt(int64(decimals)), nil))

	amount, _ := new(big.Float).Quo(raw, divisor).Float64()
	return amount, nil
}

// NormalizeSymbol maps a token symbol to the canonical form the price
// provider indexes. Wrapped ether trades at the ether price.
func NormalizeSymbol(symbol string) string {
	normalized := strings.ToUpper(symbol)
	if normalized == "WETH" {
		return "ETH"
	}
	return normalized
}
