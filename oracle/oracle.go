// Package oracle caches native-coin USD prices for human-readable log
// output. Every failure here is soft: callers get a plain wei rendering
// and the relay keeps going.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/sponsorlabs/gasrelay/logging"
)

// defaultTTL bounds cache staleness when no TTL is configured.
const defaultTTL = 5 * time.Minute

// defaultBaseURL is the CoinGecko simple-price endpoint.
const defaultBaseURL = "https://api.coingecko.com/api/v3"

// coin describes the native coin of a chain.
type coin struct {
	Symbol string
	ID     string
}

// coins maps chain ids to their native coin. Unknown chains fall back to
// wei-only rendering.
var coins = map[uint64]coin{
	1:        {Symbol: "ETH", ID: "ethereum"},
	5:        {Symbol: "ETH", ID: "ethereum"},
	11155111: {Symbol: "ETH", ID: "ethereum"},
	10:       {Symbol: "ETH", ID: "ethereum"},
	8453:     {Symbol: "ETH", ID: "ethereum"},
	42161:    {Symbol: "ETH", ID: "ethereum"},
	56:       {Symbol: "BNB", ID: "binancecoin"},
	137:      {Symbol: "POL", ID: "polygon-ecosystem-token"},
	43114:    {Symbol: "AVAX", ID: "avalanche-2"},
}

type cacheKey struct {
	coinID string
	quote  string
}

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// Oracle fetches and caches coin prices.
type Oracle struct {
	baseURL string
	ttl     time.Duration
	client  *http.Client

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry

	logger logging.Logger
}

// Option customizes the oracle.
type Option func(*Oracle)

// WithBaseURL overrides the price API endpoint.
func WithBaseURL(u string) Option {
	return func(o *Oracle) { o.baseURL = u }
}

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

// New creates a price oracle.
func New(opts ...Option) *Oracle {
	o := &Oracle{
		baseURL: defaultBaseURL,
		ttl:     defaultTTL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   make(map[cacheKey]cacheEntry),
		logger:  logging.New("oracle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Quote returns the native coin symbol, the wei amount in coin units, and
// the USD value. The error is informational; callers fall back to wei.
func (o *Oracle) Quote(ctx context.Context, chainID uint64, wei *big.Int) (symbol string, native, usd float64, err error) {
	c, ok := coins[chainID]
	if !ok {
		return "", 0, 0, fmt.Errorf("no native coin known for chain %d", chainID)
	}
	native = weiToCoin(wei)
	price, err := o.price(ctx, c.ID, "usd")
	if err != nil {
		return c.Symbol, native, 0, err
	}
	return c.Symbol, native, native * price, nil
}

// FormatWei renders a wei amount for logs: coin units plus USD when the
// price is available, plain wei otherwise.
func (o *Oracle) FormatWei(ctx context.Context, chainID uint64, wei *big.Int) string {
	symbol, native, usd, err := o.Quote(ctx, chainID, wei)
	if err != nil {
		o.logger.Debugf("price unavailable, rendering wei: %v", err)
		return fmt.Sprintf("%s wei", wei)
	}
	return fmt.Sprintf("%.6f %s (~$%.2f)", native, symbol, usd)
}

// price returns the cached price when fresh, fetching otherwise. Concurrent
// fetches of the same key are allowed; last write wins.
func (o *Oracle) price(ctx context.Context, coinID, quote string) (float64, error) {
	key := cacheKey{coinID: coinID, quote: quote}

	o.mu.RLock()
	entry, ok := o.cache[key]
	o.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < o.ttl {
		return entry.price, nil
	}

	price, err := o.fetch(ctx, coinID, quote)
	if err != nil {
		// A stale price beats no price for display purposes.
		if ok {
			return entry.price, nil
		}
		return 0, err
	}

	o.mu.Lock()
	o.cache[key] = cacheEntry{price: price, fetchedAt: time.Now()}
	o.mu.Unlock()
	return price, nil
}

func (o *Oracle) fetch(ctx context.Context, coinID, quote string) (float64, error) {
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		o.baseURL, url.QueryEscape(coinID), url.QueryEscape(quote))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API returned %s", resp.Status)
	}
	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	price, ok := body[coinID][quote]
	if !ok {
		return 0, fmt.Errorf("price API response missing %s/%s", coinID, quote)
	}
	return price, nil
}

// weiToCoin converts wei to native coin units for display.
func weiToCoin(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}
