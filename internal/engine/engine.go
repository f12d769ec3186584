// Package engine turns a raw chain snapshot into the per-expiry index
// series: it validates and filters rows, groups them by expiry, runs the
// calculator across expiries in parallel, and collates sorted results.
//
// Expiries fail independently. A chain with one unusable expiry still
// yields index values for every other one, with the failure reason carried
// in the result row.
package engine

import (
	"errors"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
	"github.com/TingdiRen/China-Option-SVIX/internal/market"
	"github.com/TingdiRen/China-Option-SVIX/internal/pricing"
	"github.com/TingdiRen/China-Option-SVIX/internal/svix"
)

// StatusOK marks an expiry whose index computed cleanly.
const StatusOK = "ok"

// ExpiryResult is one row of a run: either an index value with its
// companions, or a status naming why the expiry produced none.
type ExpiryResult struct {
	ExpiryDate   string   `json:"expiry"`
	TimeToExpiry float64  `json:"time_to_expiry"`
	Svix         *float64 `json:"svix,omitempty"`
	ForwardPrice *float64 `json:"forward_price,omitempty"`
	AtmIV        *float64 `json:"atm_iv,omitempty"` // percent, from the pivot straddle
	Status       string   `json:"status"`
}

// Engine holds the run parameters shared by every expiry.
type Engine struct {
	// CalcDate is the valuation date; expiries on or before it are
	// dropped.
	CalcDate time.Time

	// RiskFreeRate is the continuously compounded annual rate.
	RiskFreeRate float64

	// Filter optionally drops rows before grouping. Nil keeps everything.
	Filter *market.Filter

	// Workers bounds the number of expiries computed concurrently.
	// Non-positive means one worker per CPU.
	Workers int
}

// New constructs an engine with the given valuation date and rate.
func New(calcDate time.Time, riskFreeRate float64) *Engine {
	return &Engine{CalcDate: calcDate, RiskFreeRate: riskFreeRate}
}

type expiryGroup struct {
	tte    float64
	quotes []svix.Quote
}

// Run computes the index for every live expiry in the snapshot. The
// returned slice is sorted by expiry date. An error is returned only for
// run-level failures (a broken filter expression); per-expiry problems
// land in the result status instead.
func (eng *Engine) Run(rows []market.ChainRow) ([]ExpiryResult, error) {
	rows, err := eng.Filter.Apply(rows)
	if err != nil {
		return nil, err
	}

	groups := eng.group(rows)

	expiries := make([]string, 0, len(groups))
	for key := range groups {
		expiries = append(expiries, key)
	}
	sort.Strings(expiries) // ISO dates sort chronologically

	workers := eng.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(expiries) {
		workers = len(expiries)
	}

	logger.Debugf("computing %d expiries with %d workers", len(expiries), workers)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, workers)
	)
	byExpiry := make(map[string]ExpiryResult, len(expiries))

	for _, key := range expiries {
		wg.Add(1)
		go func(key string, grp *expiryGroup) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := eng.computeExpiry(key, grp)

			mu.Lock()
			byExpiry[key] = res
			mu.Unlock()
		}(key, groups[key])
	}
	wg.Wait()

	out := make([]ExpiryResult, 0, len(expiries))
	for _, key := range expiries {
		out = append(out, byExpiry[key])
	}
	return out, nil
}

// group validates rows and buckets them per expiry date. Rows with
// non-finite numbers, unparseable expiries, or no remaining lifetime are
// dropped here so the calculator only ever sees clean quotes.
func (eng *Engine) group(rows []market.ChainRow) map[string]*expiryGroup {
	groups := map[string]*expiryGroup{}

	dropped := 0
	for _, row := range rows {
		if !finite(row.Price) || !finite(row.SpotPrice) || !finite(row.Strike) {
			logger.Tracef("dropping %s: non-finite fields", row.Code)
			dropped++
			continue
		}

		expiry, err := row.Expiry()
		if err != nil {
			logger.Debugf("dropping %s: %v", row.Code, err)
			dropped++
			continue
		}

		tte := yearsBetween(eng.CalcDate, expiry)
		if tte <= 0 {
			logger.Tracef("dropping %s: expiry %s not after %s",
				row.Code, row.ExpiryDate, eng.CalcDate.Format("2006-01-02"))
			dropped++
			continue
		}

		grp := groups[row.ExpiryDate]
		if grp == nil {
			grp = &expiryGroup{tte: tte}
			groups[row.ExpiryDate] = grp
		}
		grp.quotes = append(grp.quotes, svix.Quote{
			Strike:       row.Strike,
			Type:         market.OptionTypeFromName(row.Name),
			Price:        row.Price,
			Spot:         row.SpotPrice,
			TimeToExpiry: tte,
		})
	}

	if dropped > 0 {
		logger.Debugf("dropped %d of %d rows during preprocessing", dropped, len(rows))
	}
	return groups
}

func (eng *Engine) computeExpiry(expiry string, grp *expiryGroup) ExpiryResult {
	out := ExpiryResult{
		ExpiryDate:   expiry,
		TimeToExpiry: grp.tte,
		Status:       StatusOK,
	}

	res, err := svix.Compute(grp.quotes, eng.RiskFreeRate)
	if err != nil {
		logger.Infof("expiry %s: %v", expiry, err)
		out.Status = statusFor(err)
		return out
	}

	out.Svix = &res.Svix
	out.ForwardPrice = &res.ForwardPrice

	// The ATM IV is a byproduct, not part of the index. Losing it does not
	// fail the expiry.
	iv, err := pricing.ImpliedVolATM(
		grp.quotes[0].Spot, res.PivotStrike, grp.tte, eng.RiskFreeRate,
		res.PivotCall, res.PivotPut,
	)
	if err != nil {
		logger.Debugf("expiry %s: atm implied vol: %v", expiry, err)
	} else {
		ivPct := iv * 100
		out.AtmIV = &ivPct
	}

	return out
}

// statusFor flattens the calculator's error taxonomy into short result
// statuses. The negative-integral case is checked before the broad invalid
// category it wraps.
func statusFor(err error) string {
	switch {
	case errors.Is(err, svix.ErrNoQuotes):
		return "no quotes"
	case errors.Is(err, svix.ErrNoParityPair):
		return "no parity pair"
	case errors.Is(err, svix.ErrInsufficientOTM):
		return "insufficient otm quotes"
	case errors.Is(err, svix.ErrNegativeIntegral):
		return "negative integral"
	case errors.Is(err, svix.ErrInvalidInput):
		return "invalid input"
	default:
		return err.Error()
	}
}

// yearsBetween measures whole calendar days from one date to another as a
// fraction of a 365-day year.
func yearsBetween(from, to time.Time) float64 {
	days := int(to.Sub(from).Hours() / 24)
	return float64(days) / 365
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
