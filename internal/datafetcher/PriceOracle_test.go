package datafetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type priceServer struct {
	*httptest.Server
	hits atomic.Int32
	body atomic.Value // string
}

func newPriceServer(t *testing.T, body string) *priceServer {
	t.Helper()
	s := &priceServer{}
	s.body.Store(body)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		assert.Equal(t, "USD", r.URL.Query().Get("tsyms"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.body.Load().(string)))
	}))
	t.Cleanup(s.Close)
	return s
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestOracle(t *testing.T, srv *priceServer, clock *testClock) *PriceOracle {
	t.Helper()
	o, err := NewPriceOracle(PriceOracleConfig{
		BaseURL:    srv.URL,
		TTL:        time.Minute,
		Symbols:    map[string]string{"usdc": "USDC", "axlusdc": "AXLUSDC", "usdt": "USDT"},
		Clock:      clock.Now,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return o
}

func TestNewPriceOracleValidation(t *testing.T) {
	_, err := NewPriceOracle(PriceOracleConfig{Symbols: map[string]string{"usdc": "USDC"}})
	require.ErrorIs(t, err, ErrAPIConfiguration)

	_, err = NewPriceOracle(PriceOracleConfig{TTL: time.Minute})
	require.ErrorIs(t, err, ErrAPIConfiguration)

	o, err := NewPriceOracle(PriceOracleConfig{TTL: time.Minute, Symbols: map[string]string{"usdc": "USDC"}})
	require.NoError(t, err)
	assert.Equal(t, DEFAULT_BASE_URL, o.cfg.BaseURL)
}

func TestGetUsdPrice(t *testing.T) {
	srv := newPriceServer(t, `{"USDC":{"USD":1.0002},"USDT":{"USD":0.9998}}`)
	clock := &testClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, srv, clock)

	price, decimals, err := o.GetUsdPrice("usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(PriceDecimals), decimals)
	assert.Equal(t, "100020000", price.String())

	// bridged symbols share the canonical quote
	price, _, err = o.GetUsdPrice("axlusdc")
	require.NoError(t, err)
	assert.Equal(t, "100020000", price.String())

	price, _, err = o.GetUsdPrice("usdt")
	require.NoError(t, err)
	assert.Equal(t, "99980000", price.String())
	assert.Equal(t, int32(1), srv.hits.Load())

	_, _, err = o.GetUsdPrice("dai")
	require.ErrorIs(t, err, ErrUnknownDenom)
	assert.False(t, o.IsTokenSupported("dai"))
}

func TestPriceTTL(t *testing.T) {
	srv := newPriceServer(t, `{"USDC":{"USD":1},"USDT":{"USD":1}}`)
	clock := &testClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, srv, clock)

	require.True(t, o.IsTokenSupported("usdc"))
	clock.now = clock.now.Add(30 * time.Second)
	require.True(t, o.IsTokenSupported("usdc"))
	assert.Equal(t, int32(1), srv.hits.Load())

	clock.now = clock.now.Add(time.Minute)
	require.True(t, o.IsTokenSupported("usdc"))
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestStalePriceMakesTokenUnsupported(t *testing.T) {
	srv := newPriceServer(t, `{"USDC":{"USD":1},"USDT":{"USD":1}}`)
	clock := &testClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, srv, clock)
	require.True(t, o.IsTokenSupported("usdt"))

	srv.body.Store(`{"Response":"Error","Message":"rate limit"}`)
	clock.now = clock.now.Add(2 * time.Minute)

	_, _, err := o.GetUsdPrice("usdt")
	require.ErrorIs(t, err, ErrStalePrice)
	assert.False(t, o.IsTokenSupported("usdt"))
}

func TestMissingSymbolIsStale(t *testing.T) {
	srv := newPriceServer(t, `{"USDC":{"USD":1}}`)
	clock := &testClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, srv, clock)

	assert.True(t, o.IsTokenSupported("usdc"))
	_, _, err := o.GetUsdPrice("usdt")
	require.ErrorIs(t, err, ErrStalePrice)
}

func TestRejectedPrices(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero", `{"USDC":{"USD":0},"USDT":{"USD":1}}`},
		{"negative", `{"USDC":{"USD":-1},"USDT":{"USD":1}}`},
		{"below precision", `{"USDC":{"USD":0.000000001},"USDT":{"USD":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPriceServer(t, tt.body)
			o := newTestOracle(t, srv, &testClock{now: time.Unix(0, 0)})
			assert.False(t, o.IsTokenSupported("usdc"))
			assert.True(t, o.IsTokenSupported("usdt"))
		})
	}
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"api error", `{"Response":"Error","Message":"invalid api key"}`},
		{"empty body", ``},
		{"not json", `<html>`},
		{"bad quote", `{"USDC":"one dollar"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPriceServer(t, tt.body)
			o := newTestOracle(t, srv, &testClock{now: time.Unix(0, 0)})
			require.Error(t, o.Refresh(context.Background()))
			assert.Equal(t, int32(MAX_RETRIES), srv.hits.Load())
		})
	}
}

func TestRefreshStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o, err := NewPriceOracle(PriceOracleConfig{
		BaseURL:    srv.URL,
		TTL:        time.Minute,
		Symbols:    map[string]string{"usdc": "USDC"},
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	err = o.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}
