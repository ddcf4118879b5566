package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// ErrNoPrice is returned when no source produced a price and none was
// recorded before
var ErrNoPrice = errors.New("no price available")

// PriceEndpoints are the price source base URLs
type PriceEndpoints struct {
	CoinGecko   string
	Kraken      string
	Bitfinex    string
	Frankfurter string
}

// DefaultPriceEndpoints are the public price APIs
var DefaultPriceEndpoints = PriceEndpoints{
	CoinGecko:   "https://api.coingecko.com/api/v3",
	Kraken:      "https://api.kraken.com/0/public",
	Bitfinex:    "https://api-pub.bitfinex.com/v2",
	Frankfurter: "https://api.frankfurter.app",
}

// Price sources, in fallback order
const (
	SourceCoinGecko = "CoinGecko"
	SourceKraken    = "Kraken"
	SourceBitfinex  = "Bitfinex+FX"
	SourceLast      = "last recorded"
)

// PriceClient fetches the XMR price in a fiat currency, trying each source
// in turn and falling back to the last known price.
type PriceClient struct {
	*endpoint
	fiat      string
	ttl       time.Duration
	endpoints PriceEndpoints

	mu         sync.Mutex
	lastPrice  float64
	lastSource string
	lastFetch  time.Time
}

// NewPriceClient creates a price client for fiat (e.g. "eur")
func NewPriceClient(fiat string, ttl, timeout time.Duration) *PriceClient {
	fiat = strings.ToLower(strings.TrimSpace(fiat))
	if fiat == "" {
		fiat = "eur"
	}
	return &PriceClient{
		endpoint:  newEndpoint("price", timeout),
		fiat:      fiat,
		ttl:       ttl,
		endpoints: DefaultPriceEndpoints,
	}
}

// SetEndpoints overrides the source URLs
func (p *PriceClient) SetEndpoints(e PriceEndpoints) {
	p.endpoints = e
}

// Fiat returns the quote currency
func (p *PriceClient) Fiat() string {
	return p.fiat
}

// SetLastKnown seeds the fallback price, typically from stored history
func (p *PriceClient) SetLastKnown(price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPrice == 0 {
		p.lastPrice = price
		p.lastSource = SourceLast
	}
}

// Price returns the current price and the source that produced it. Results
// are cached for the configured TTL.
func (p *PriceClient) Price(ctx context.Context) (float64, string, error) {
	now := time.Now()

	p.mu.Lock()
	if p.lastPrice > 0 && p.lastSource != SourceLast && !p.lastFetch.IsZero() && now.Sub(p.lastFetch) < p.ttl {
		price, source := p.lastPrice, p.lastSource
		p.mu.Unlock()
		return price, source, nil
	}
	p.mu.Unlock()

	sources := []struct {
		name  string
		fetch func(context.Context) (float64, error)
	}{
		{SourceCoinGecko, p.coinGecko},
		{SourceKraken, p.kraken},
		{SourceBitfinex, p.bitfinex},
	}

	for _, src := range sources {
		price, err := src.fetch(ctx)
		if err != nil {
			util.Debugf("Price source %s failed: %v", src.name, err)
			continue
		}
		if price <= 0 {
			continue
		}

		p.mu.Lock()
		p.lastPrice = price
		p.lastSource = src.name
		p.lastFetch = now
		p.mu.Unlock()
		return price, src.name, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPrice > 0 {
		util.Warnf("All price sources failed, using last recorded price %.2f", p.lastPrice)
		return p.lastPrice, SourceLast, nil
	}
	return 0, "", ErrNoPrice
}

func (p *PriceClient) coinGecko(ctx context.Context) (float64, error) {
	var body map[string]map[string]float64
	u := fmt.Sprintf("%s/simple/price?ids=monero&vs_currencies=%s", p.endpoints.CoinGecko, p.fiat)
	if err := p.getJSON(ctx, u, nil, &body); err != nil {
		return 0, err
	}
	price, ok := body["monero"][p.fiat]
	if !ok {
		return 0, fmt.Errorf("coingecko response missing monero.%s", p.fiat)
	}
	return price, nil
}

func (p *PriceClient) kraken(ctx context.Context) (float64, error) {
	var body struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"`
		} `json:"result"`
	}
	pair := "XMR" + strings.ToUpper(p.fiat)
	if err := p.getJSON(ctx, p.endpoints.Kraken+"/Ticker?pair="+pair, nil, &body); err != nil {
		return 0, err
	}
	if len(body.Error) > 0 {
		return 0, fmt.Errorf("kraken: %s", strings.Join(body.Error, "; "))
	}
	for _, ticker := range body.Result {
		if len(ticker.C) == 0 {
			continue
		}
		return strconv.ParseFloat(ticker.C[0], 64)
	}
	return 0, fmt.Errorf("kraken response missing %s ticker", pair)
}

// bitfinex quotes XMR in USD and converts with the Frankfurter FX rate
func (p *PriceClient) bitfinex(ctx context.Context) (float64, error) {
	var ticker []float64
	if err := p.getJSON(ctx, p.endpoints.Bitfinex+"/ticker/tXMRUSD", nil, &ticker); err != nil {
		return 0, err
	}
	if len(ticker) < 7 {
		return 0, fmt.Errorf("bitfinex ticker has %d fields", len(ticker))
	}
	usd := ticker[6]
	if p.fiat == "usd" {
		return usd, nil
	}

	var fx struct {
		Rates map[string]float64 `json:"rates"`
	}
	u := fmt.Sprintf("%s/latest?from=USD&to=%s", p.endpoints.Frankfurter, strings.ToUpper(p.fiat))
	if err := p.getJSON(ctx, u, nil, &fx); err != nil {
		return 0, fmt.Errorf("fx conversion: %w", err)
	}
	rate, ok := fx.Rates[strings.ToUpper(p.fiat)]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("fx response missing %s rate", strings.ToUpper(p.fiat))
	}
	return usd * rate, nil
}
