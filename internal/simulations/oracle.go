package simulations

import (
	"errors"
	"sync"

	sdkmath "cosmossdk.io/math"
)

var ErrPriceNotSet = errors.New("price not set")

type quote struct {
	price    sdkmath.Int
	decimals uint8
}

// Oracle is an in-memory price feed. Prices are set explicitly; a token never priced is
// reported unsupported.
type Oracle struct {
	mu     sync.RWMutex
	prices map[string]quote
}

func NewOracle() *Oracle {
	return &Oracle{prices: make(map[string]quote)}
}

// SetPrice sets the USD price of one whole token to price / 10^decimals.
func (o *Oracle) SetPrice(denom string, price sdkmath.Int, decimals uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[denom] = quote{price: price, decimals: decimals}
}

// SetPriceBps is SetPrice with four decimals, e.g. 10500 for $1.05.
func (o *Oracle) SetPriceBps(denom string, priceBps int64) {
	o.SetPrice(denom, sdkmath.NewInt(priceBps), 4)
}

// RemovePrice forgets the token's price.
func (o *Oracle) RemovePrice(denom string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.prices, denom)
}

func (o *Oracle) IsTokenSupported(denom string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.prices[denom]
	return ok
}

func (o *Oracle) GetUsdPrice(denom string) (sdkmath.Int, uint8, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.prices[denom]
	if !ok {
		return sdkmath.ZeroInt(), 0, ErrPriceNotSet
	}
	return q.price, q.decimals, nil
}
