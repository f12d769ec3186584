package market

import (
	"fmt"
	"math"
	"time"

	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
	"github.com/TingdiRen/China-Option-SVIX/internal/pricing"
)

// SyntheticProvider fabricates a chain snapshot around a fixed spot,
// pricing every contract under Black-Scholes with one flat volatility.
// Offline runs and tests use it in place of live quotes; with a flat
// surface the resulting index should land close to Vol.
//
// Generation is fully deterministic for a given configuration.
type SyntheticProvider struct {
	Spot float64 // underlying last price
	Vol  float64 // flat pricing volatility, as a decimal
	Rate float64 // pricing rate

	AsOf       time.Time // snapshot date anchoring the expiry grid
	ExpiryDays []int     // expiries as day offsets from AsOf
	Rungs      int       // strike rungs either side of the spot
	Step       float64   // strike spacing

	// Label stands in for the underlying's exchange name in generated
	// contract names, e.g. "SYNETF购9月2750".
	Label string
}

// NewSyntheticProvider returns a generator resembling a 3-yuan ETF chain:
// four expiries out to about half a year, strikes 0.05 apart.
func NewSyntheticProvider(asOf time.Time) *SyntheticProvider {
	return &SyntheticProvider{
		Spot:       3.0,
		Vol:        0.20,
		Rate:       0.02,
		AsOf:       asOf,
		ExpiryDays: []int{30, 58, 86, 177},
		Rungs:      8,
		Step:       0.05,
		Label:      "SYNETF",
	}
}

// OptionChain generates the full synthetic chain. Strikes must stay below
// 10 so they fit the four name digits; the default grid does.
func (synthProv *SyntheticProvider) OptionChain(code string) ([]ChainRow, error) {
	if synthProv.Spot <= 0 || synthProv.Step <= 0 {
		return nil, fmt.Errorf("synthetic chain: spot and step must be positive")
	}

	var rows []ChainRow
	for ei, days := range synthProv.ExpiryDays {
		expiry := synthProv.AsOf.AddDate(0, 0, days)
		tte := float64(days) / 365

		for ri := -synthProv.Rungs; ri <= synthProv.Rungs; ri++ {
			mils := int(math.Round((synthProv.Spot + float64(ri)*synthProv.Step) * 1000))
			if mils <= 0 {
				continue
			}
			if mils >= 10000 {
				return nil, fmt.Errorf("synthetic chain: strike %d exceeds the name format", mils)
			}
			strike := float64(mils) / 1000

			call := pricing.BlackScholesPrice(true, synthProv.Spot, strike, tte, synthProv.Rate, synthProv.Vol)
			put := pricing.BlackScholesPrice(false, synthProv.Spot, strike, tte, synthProv.Rate, synthProv.Vol)

			rows = append(rows,
				synthProv.row(code, ei, ri, expiry, strike, mils, true, call),
				synthProv.row(code, ei, ri, expiry, strike, mils, false, put),
			)
		}
	}

	logger.Debugf("generated %d synthetic contracts for %s", len(rows), code)
	return rows, nil
}

func (synthProv *SyntheticProvider) row(
	code string,
	expiryIdx, rungIdx int,
	expiry time.Time,
	strike float64,
	mils int,
	isCall bool,
	price float64,
) ChainRow {

	side := "购"
	sideNum := 1
	if !isCall {
		side = "沽"
		sideNum = 2
	}

	intrinsic := math.Max(0, strike-synthProv.Spot)
	if isCall {
		intrinsic = math.Max(0, synthProv.Spot-strike)
	}

	return ChainRow{
		Code:           fmt.Sprintf("90%02d%02d%d", expiryIdx, rungIdx+synthProv.Rungs, sideNum),
		Name:           fmt.Sprintf("%s%s%d月%04d", synthProv.Label, side, int(expiry.Month()), mils),
		Price:          price,
		ImpliedVol:     synthProv.Vol * 100,
		TimeValue:      price - intrinsic,
		IntrinsicValue: intrinsic,
		TheoPrice:      price,
		ExpiryDate:     expiry.Format("2006-01-02"),
		Underlying:     "SYN" + code,
		SpotPrice:      synthProv.Spot,
		Strike:         strike,
	}
}
