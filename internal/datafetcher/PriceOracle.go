/*
This file is the live price oracle: spot USD prices from the CryptoCompare pricemulti API.

Prices are cached for a TTL. Once a token's price is older than the TTL and cannot be
refreshed, the oracle reports the token as unsupported, which makes every router operation
that needs its price fail instead of valuing it at a stale rate.
*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/config"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/utils"
)

var priceLogger = logger.GetForComponent("price_oracle")

var (
	ErrInvalidPriceData = errors.New("invalid price data received")
	ErrAPIConfiguration = errors.New("API configuration error")
	ErrUnknownDenom     = errors.New("denom has no price symbol")
	ErrStalePrice       = errors.New("price is stale")
)

const (
	DEFAULT_BASE_URL = "https://min-api.cryptocompare.com/data/pricemulti"
	MAX_RETRIES      = 3
	TIMEOUT_SECONDS  = 30

	// PriceDecimals is the scale of every price the oracle returns.
	PriceDecimals = 8
)

// PriceOracleConfig configures a PriceOracle.
type PriceOracleConfig struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration
	// Symbols maps a router denom to its token symbol. CoinToCCId translates symbols
	// to Crypto Compare IDs.
	Symbols map[string]string
	Client  *http.Client
	Clock   func() time.Time
	// RetryDelay is the base backoff between attempts; attempt n waits n*RetryDelay.
	RetryDelay time.Duration
}

type cachedPrice struct {
	price     sdkmath.Int
	fetchedAt time.Time
}

// PriceOracle implements vault.Oracle over the CryptoCompare API.
type PriceOracle struct {
	cfg PriceOracleConfig

	mu    sync.Mutex
	cache map[string]cachedPrice
}

// NewPriceOracle validates cfg and returns an oracle with an empty cache.
func NewPriceOracle(cfg PriceOracleConfig) (*PriceOracle, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DEFAULT_BASE_URL
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: TTL must be positive", ErrAPIConfiguration)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols configured", ErrAPIConfiguration)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: TIMEOUT_SECONDS * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &PriceOracle{cfg: cfg, cache: make(map[string]cachedPrice)}, nil
}

// IsTokenSupported reports whether a fresh price is available, refreshing a stale cache.
func (o *PriceOracle) IsTokenSupported(denom string) bool {
	_, err := o.freshPrice(denom)
	return err == nil
}

// GetUsdPrice returns the USD price of one whole token scaled by 10^PriceDecimals.
func (o *PriceOracle) GetUsdPrice(denom string) (sdkmath.Int, uint8, error) {
	price, err := o.freshPrice(denom)
	if err != nil {
		return sdkmath.ZeroInt(), 0, err
	}
	return price, PriceDecimals, nil
}

func (o *PriceOracle) freshPrice(denom string) (sdkmath.Int, error) {
	if _, ok := o.cfg.Symbols[denom]; !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	if price, ok := o.cached(denom); ok {
		return price, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), TIMEOUT_SECONDS*time.Second)
	defer cancel()
	if err := o.Refresh(ctx); err != nil {
		return sdkmath.Int{}, errors.Join(ErrStalePrice, err)
	}
	if price, ok := o.cached(denom); ok {
		return price, nil
	}
	return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrStalePrice, denom)
}

func (o *PriceOracle) cached(denom string) (sdkmath.Int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.cache[denom]
	if !ok || o.cfg.Clock().Sub(entry.fetchedAt) > o.cfg.TTL {
		return sdkmath.Int{}, false
	}
	return entry.price, true
}

// Refresh fetches every configured symbol in one request and updates the cache.
// Symbols missing from the response keep their previous (possibly stale) entry.
func (o *PriceOracle) Refresh(ctx context.Context) error {
	ids := make(map[string][]string) // CCID -> denoms
	for denom, symbol := range o.cfg.Symbols {
		id := config.CCIdFor(symbol)
		ids[id] = append(ids[id], denom)
	}
	fsyms := make([]string, 0, len(ids))
	for id := range ids {
		fsyms = append(fsyms, id)
	}

	prices, err := o.fetchWithRetry(ctx, fsyms)
	if err != nil {
		return err
	}

	now := o.cfg.Clock()
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, denoms := range ids {
		raw, ok := prices[id]
		if !ok {
			priceLogger.Warn().Str("ccid", id).Msg("No price returned for symbol")
			continue
		}
		scaled, err := toScaledPrice(raw, id)
		if err != nil {
			priceLogger.Warn().Err(err).Str("ccid", id).Msg("Rejected price")
			continue
		}
		for _, denom := range denoms {
			o.cache[denom] = cachedPrice{price: scaled, fetchedAt: now}
		}
	}
	return nil
}

func (o *PriceOracle) fetchWithRetry(ctx context.Context, fsyms []string) (map[string]float64, error) {
	query := url.Values{}
	query.Set("fsyms", strings.Join(fsyms, ","))
	query.Set("tsyms", "USD")
	if o.cfg.APIKey != "" {
		query.Set("api_key", o.cfg.APIKey)
	}
	requestURL := o.cfg.BaseURL + "?" + query.Encode()

	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		prices, err := o.fetchOnce(ctx, requestURL)
		if err == nil {
			priceLogger.Debug().Int("symbols", len(prices)).Int("attempt", attempt).Msg("Prices fetched")
			return prices, nil
		}
		lastErr = err
		priceLogger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxRetries", MAX_RETRIES).
			Msg("Price request failed, will retry if attempts remain")
		if attempt == MAX_RETRIES {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * o.cfg.RetryDelay):
		}
	}

	priceLogger.Error().Err(lastErr).Int("maxRetries", MAX_RETRIES).Msg("All retry attempts failed")
	return nil, fmt.Errorf("failed to fetch prices after %d attempts: %w", MAX_RETRIES, lastErr)
}

// fetchOnce decodes {"USDC":{"USD":1.0},...}. Errors come back as HTTP 200 with
// {"Response":"Error","Message":"..."}.
func (o *PriceOracle) fetchOnce(ctx context.Context, requestURL string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIConfiguration, err)
	}
	resp, err := o.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrInvalidPriceData)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPriceData, err)
	}
	if status, ok := raw["Response"]; ok {
		var response, message string
		_ = json.Unmarshal(status, &response)
		_ = json.Unmarshal(raw["Message"], &message)
		return nil, fmt.Errorf("API error: %s - %s", response, message)
	}

	prices := make(map[string]float64, len(raw))
	for id, quote := range raw {
		var quotes map[string]float64
		if err := json.Unmarshal(quote, &quotes); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPriceData, id, err)
		}
		if usd, ok := quotes["USD"]; ok {
			prices[id] = usd
		}
	}
	return prices, nil
}

// toScaledPrice applies the same sanity checks as every other price input.
func toScaledPrice(price float64, id string) (sdkmath.Int, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return sdkmath.Int{}, fmt.Errorf("%w: price for %s is not finite", ErrInvalidPriceData, id)
	}
	if price <= 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: price for %s must be positive: %f", ErrInvalidPriceData, id, price)
	}
	scaled, err := utils.Float64ToScaled(price, PriceDecimals)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if scaled.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: price for %s rounds to zero", ErrInvalidPriceData, id)
	}
	return scaled, nil
}
