/*
Crypto Compare is used for live stablecoin prices.

This file contains the mapping of token symbols to their corresponding Crypto Compare ID.
If a token doesnt have an entry here its symbol is used as the CCID.

Bridged and wrapped stablecoins usually trade under the canonical ticker, which is why
several symbols map to the same ID.

*/

package config

import "strings"

var (
	CoinToCCId = map[string]string{
		"USDC":  "USDC",
		"USDT":  "USDT",
		"BUSD":  "BUSD",
		"DAI":   "DAI",
		"FDUSD": "FDUSD",
		"TUSD":  "TUSD",
		"USDP":  "USDP",
		"PYUSD": "PYUSD",
		"USDE":  "USDE",
		"ELYS":  "ELYS",

		"USDC.E":  "USDC",
		"AXLUSDC": "USDC",
		"USDT.E":  "USDT",
		"WUSDT":   "USDT",
	}
)

// CCIdFor returns the Crypto Compare ID of a token symbol.
func CCIdFor(symbol string) string {
	upper := strings.ToUpper(symbol)
	if id, ok := CoinToCCId[upper]; ok {
		return id
	}
	return upper
}
