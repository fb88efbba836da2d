// =============================
// File: internal/oracle/oracle.go
// =============================

// Package oracle defines the reserve-currency price feed used for display
// conversions. Nothing in the trading path depends on it; curve math is
// integer-only and oracle outages must never block a trade.
package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one observation of the reserve currency's fiat price.
type Quote struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// PriceFeed supplies the latest reserve price quote.
type PriceFeed interface {
	LatestQuote() (Quote, error)
}

// Validate rejects quotes that are unusable for display: non-positive
// prices and quotes older than maxAge (relative to now).
func Validate(q Quote, now time.Time, maxAge time.Duration) error {
	if !q.Price.IsPositive() {
		return fmt.Errorf("oracle: non-positive price %s", q.Price)
	}
	if q.UpdatedAt.IsZero() {
		return fmt.Errorf("oracle: quote has no timestamp")
	}
	if age := now.Sub(q.UpdatedAt); age > maxAge {
		return fmt.Errorf("oracle: quote is stale by %s", age-maxAge)
	}
	return nil
}

// PostedFeed is a feed updated by an operator or an external poller.
type PostedFeed struct {
	mu    sync.RWMutex
	quote Quote
	set   bool
}

func NewPostedFeed() *PostedFeed {
	return &PostedFeed{}
}

// Post replaces the current quote.
func (f *PostedFeed) Post(price decimal.Decimal, at time.Time) {
	f.mu.Lock()
	f.quote = Quote{Price: price, UpdatedAt: at}
	f.set = true
	f.mu.Unlock()
}

func (f *PostedFeed) LatestQuote() (Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return Quote{}, fmt.Errorf("oracle: no quote posted yet")
	}
	return f.quote, nil
}
