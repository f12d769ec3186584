// Package market supplies option chain snapshots for the index calculation.
//
// Three providers implement the same interface: a live Eastmoney quote
// client, a CSV store that replays previously fetched snapshots, and a
// Black-Scholes generator for fully offline runs. Every provider returns
// the chain as flat rows in the quote feed's shape; grouping rows into
// per-expiry calculator inputs is the engine's job.
package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TingdiRen/China-Option-SVIX/internal/svix"
)

// ChainRow is one option contract of an underlying's chain snapshot,
// normalized across providers. The columns mirror the upstream feed: last
// premium, the exchange's published valuation fields, the expiry date, and
// the underlying ETF's last price at snapshot time.
type ChainRow struct {
	Code           string  // exchange contract code
	Name           string  // contract name, encodes side and strike
	Price          float64 // last traded premium
	ImpliedVol     float64 // feed-published implied volatility, in percent
	TimeValue      float64
	IntrinsicValue float64
	TheoPrice      float64 // feed-published theoretical value
	ExpiryDate     string  // ISO date, YYYY-MM-DD
	Underlying     string  // underlying ETF name
	SpotPrice      float64 // underlying ETF last price
	Strike         float64 // exercise price decoded from Name
}

// Provider supplies the full option chain of one underlying.
type Provider interface {
	OptionChain(code string) ([]ChainRow, error)
}

// Expiry parses the row's expiry date.
func (r ChainRow) Expiry() (time.Time, error) {
	t, err := time.Parse("2006-01-02", r.ExpiryDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("contract %s: expiry %q: %w", r.Code, r.ExpiryDate, err)
	}
	return t, nil
}

// OptionTypeFromName classifies a contract by its exchange name: 购
// (subscription) marks a call, everything else is a put (沽).
func OptionTypeFromName(name string) svix.OptionType {
	if strings.Contains(name, "购") {
		return svix.Call
	}
	return svix.Put
}

// StrikeFromName decodes the exercise price from a contract name such as
// "50ETF购6月2750" (strike 2.750). The trailing four digits carry the
// strike scaled by 1000; contracts adjusted for distributions append an
// 'A' after the digits.
func StrikeFromName(name string) (float64, error) {
	runes := []rune(name)
	n := len(runes)

	digits := 4
	end := n
	if n > 0 && runes[n-1] == 'A' {
		end = n - 1
	}
	if end < digits {
		return 0, fmt.Errorf("contract name %q too short to carry a strike", name)
	}

	raw := string(runes[end-digits : end])
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("contract name %q: strike digits %q: %w", name, raw, err)
	}
	return float64(v) / 1000, nil
}
