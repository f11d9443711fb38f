// Package rates converts settlement-token amounts into the reference
// currency using an exchange-rate endpoint, memoizing one rate per
// symbol for the lifetime of a run.
package rates

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ReferenceSymbol is the currency all persisted amounts are quoted in.
const ReferenceSymbol = "ETH"

// ErrRateUnavailable indicates the price endpoint could not supply a
// rate. Fatal to the run: silently skipping the conversion would
// corrupt every downstream sum.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// PriceSource supplies a single exchange rate for a symbol pair.
type PriceSource interface {
	Rate(ctx context.Context, fromSymbol, toSymbol string) (float64, error)
}

// Cache memoizes exchange rates for one run. It is constructed per run
// and discarded with it, so a long gap between runs never reuses a
// stale rate.
type Cache struct {
	rates map[string]float64
}

// NewCache creates an empty per-run rate cache.
func NewCache() *Cache {
	return &Cache{rates: make(map[string]float64)}
}

// Converter converts amounts into the reference currency.
type Converter struct {
	source PriceSource
	cache  *Cache
	logger *log.Logger
}

// NewConverter creates a Converter backed by the given price source and
// per-run cache.
func NewConverter(source PriceSource, cache *Cache, logger *log.Logger) *Converter {
	if logger == nil {
		logger = log.Default()
	}
	return &Converter{source: source, cache: cache, logger: logger}
}

// ToReference converts amount quoted in symbol into the reference
// currency. Amounts already quoted in the reference currency pass
// through unchanged. The first lookup per symbol hits the price
// endpoint; later lookups in the same run reuse the cached rate.
func (c *Converter) ToReference(ctx context.Context, amount float64, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)
	if symbol == ReferenceSymbol {
		return amount, nil
	}

	if rate, ok := c.cache.rates[symbol]; ok {
		return amount * rate, nil
	}

	c.logger.Printf("[INFO] no cached rate for %s, querying price endpoint", symbol)
	rate, err := c.source.Rate(ctx, symbol, ReferenceSymbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", ErrRateUnavailable, symbol, ReferenceSymbol, err)
	}

	c.cache.rates[symbol] = rate
	c.logger.Printf("[INFO] exchange rate %s/%s: %g", symbol, ReferenceSymbol, rate)
	return amount * rate, nil
}
