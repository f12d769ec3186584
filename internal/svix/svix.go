// Package svix computes a model-free implied-volatility index for a single
// option expiry, in the spirit of VIX-style indices.
//
// The input is one expiry's worth of call and put quotes sharing a spot
// price and a time to expiry. The computation derives the implied forward
// price of the underlying from put-call parity, keeps the out-of-the-money
// wing of the quote ladder, and replicates the variance-swap integral as a
// strike-spacing-weighted sum of those option prices:
//
//	SVIX² = 2 / (T · R_f · S²) · Σ price_i · ΔK_i
//
// Compute is a pure function: no I/O, no state, no randomness. Expected
// data gaps on thin expiries (no parity pair, too few OTM quotes) come back
// as sentinel errors, never as panics, so a driver can keep going with the
// remaining expiries.
package svix

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// OptionType tags a quote as a call or a put.
type OptionType string

const (
	Call OptionType = "Call"
	Put  OptionType = "Put"
)

// Quote is one option quote inside an expiry snapshot. All quotes passed to
// a single Compute call must share Spot and TimeToExpiry; the calculator
// never mixes expiries.
type Quote struct {
	Strike       float64    // exercise price, > 0
	Type         OptionType // Call or Put
	Price        float64    // last traded/quoted premium, >= 0
	Spot         float64    // underlying last price, > 0
	TimeToExpiry float64    // years to expiry, > 0
}

// Result is a successfully computed index point for one expiry. The pivot
// fields describe the strike that anchored the parity forward; callers use
// them to quote an at-the-money implied volatility next to the index.
type Result struct {
	ForwardPrice float64 // parity-implied forward of the underlying
	Svix         float64 // index value in percentage points
	PivotStrike  float64 // strike with the smallest |C-P| gap
	PivotCall    float64 // mean call premium at the pivot
	PivotPut     float64 // mean put premium at the pivot
}

// Sentinel errors. The first three are ordinary outcomes on illiquid or
// thin expiries; ErrInvalidInput (and ErrNegativeIntegral, which wraps it)
// signals corrupted upstream data that the caller should have filtered.
var (
	ErrNoQuotes        = errors.New("svix: no quotes for expiry")
	ErrNoParityPair    = errors.New("svix: no strike quoted as both call and put")
	ErrInsufficientOTM = errors.New("svix: fewer than 3 out-of-the-money quotes")
	ErrInvalidInput    = errors.New("svix: invalid input")

	// ErrNegativeIntegral means the ΔK-weighted price sum came out negative,
	// which cannot happen with non-negative premiums. Matches ErrInvalidInput
	// under errors.Is.
	ErrNegativeIntegral = fmt.Errorf("%w: negative option price integral", ErrInvalidInput)
)

// pairedPrices accumulates call/put premiums per strike. Duplicate quotes of
// the same strike and type (standard and dividend-adjusted contracts can
// collide after strike normalization) are averaged.
type pairedPrices struct {
	callSum, putSum float64
	calls, puts     int
}

func (p *pairedPrices) call() float64 { return p.callSum / float64(p.calls) }
func (p *pairedPrices) put() float64  { return p.putSum / float64(p.puts) }

// Compute derives the forward price and the SVIX value for one expiry.
//
// The steps, in order:
//  1. R_f = exp(riskFreeRate · T), the gross risk-free rate over the
//     remaining life of the options.
//  2. Forward discovery: among strikes quoted as both call and put, pick
//     K* minimizing |C−P| (ties go to the lowest strike, so the scan order
//     of the input never matters) and set F = K* + R_f·(C−P).
//  3. OTM selection: puts with strike < F, calls with strike >= F, merged
//     in ascending strike order. The boundary strike belongs to the call
//     side only; each strike contributes at most one retained quote.
//  4. ΔK weights: interior strikes get (K[i+1]−K[i−1])/2, the endpoints get
//     their one-sided difference, i.e. trapezoidal spacing on an unevenly
//     spaced ladder.
//  5. SVIX² = 2/(T·R_f·S²) · Σ price·ΔK, reported as 100·sqrt(SVIX²).
//
// Expected gaps return ErrNoQuotes, ErrNoParityPair or ErrInsufficientOTM.
// A spot or expiry that is non-positive, NaN or infinite, a non-finite
// discount factor, and a negative integral sum return errors matching
// ErrInvalidInput.
func Compute(quotes []Quote, riskFreeRate float64) (Result, error) {
	if len(quotes) == 0 {
		return Result{}, ErrNoQuotes
	}

	// Shared per-snapshot parameters; the caller guarantees uniformity.
	spot := quotes[0].Spot
	tte := quotes[0].TimeToExpiry
	if spot <= 0 || !finite(spot) {
		return Result{}, fmt.Errorf("%w: spot price %g", ErrInvalidInput, spot)
	}
	if tte <= 0 || !finite(tte) {
		return Result{}, fmt.Errorf("%w: time to expiry %g", ErrInvalidInput, tte)
	}
	grossRate := math.Exp(riskFreeRate * tte)
	if !finite(grossRate) {
		return Result{}, fmt.Errorf("%w: non-finite discount factor from rate %g", ErrInvalidInput, riskFreeRate)
	}

	byStrike := make(map[float64]*pairedPrices, len(quotes))
	for _, q := range quotes {
		p := byStrike[q.Strike]
		if p == nil {
			p = &pairedPrices{}
			byStrike[q.Strike] = p
		}
		switch q.Type {
		case Call:
			p.callSum += q.Price
			p.calls++
		case Put:
			p.putSum += q.Price
			p.puts++
		default:
			return Result{}, fmt.Errorf("%w: unknown option type %q", ErrInvalidInput, q.Type)
		}
	}

	strikes := make([]float64, 0, len(byStrike))
	for k := range byStrike {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	// Forward price from put-call parity at the most balanced strike.
	// Ascending scan with a strictly-less comparison makes the tie-break
	// deterministic: equal |C−P| keeps the lower strike.
	bestDiff := math.Inf(1)
	bestStrike := 0.0
	found := false
	for _, k := range strikes {
		p := byStrike[k]
		if p.calls == 0 || p.puts == 0 {
			continue
		}
		d := math.Abs(p.call() - p.put())
		if d < bestDiff {
			bestDiff = d
			bestStrike = k
			found = true
		}
	}
	if !found {
		return Result{}, ErrNoParityPair
	}
	atBest := byStrike[bestStrike]
	forward := bestStrike + grossRate*(atBest.call()-atBest.put())

	// Out-of-the-money ladder: puts strictly below the forward, calls at or
	// above it. Iterating the sorted strikes keeps the ladder ordered.
	var otmStrikes, otmPrices []float64
	for _, k := range strikes {
		p := byStrike[k]
		switch {
		case k < forward && p.puts > 0:
			otmStrikes = append(otmStrikes, k)
			otmPrices = append(otmPrices, p.put())
		case k >= forward && p.calls > 0:
			otmStrikes = append(otmStrikes, k)
			otmPrices = append(otmPrices, p.call())
		}
	}
	if len(otmStrikes) < 3 {
		return Result{}, ErrInsufficientOTM
	}

	var sum float64
	for i, dk := range strikeSpacings(otmStrikes) {
		sum += otmPrices[i] * dk
	}
	if !finite(sum) {
		return Result{}, fmt.Errorf("%w: non-finite option price integral", ErrInvalidInput)
	}
	if sum < 0 {
		return Result{}, ErrNegativeIntegral
	}

	svixSquared := 2 / (tte * grossRate * spot * spot) * sum
	return Result{
		ForwardPrice: forward,
		Svix:         math.Sqrt(svixSquared) * 100,
		PivotStrike:  bestStrike,
		PivotCall:    atBest.call(),
		PivotPut:     atBest.put(),
	}, nil
}

// strikeSpacings returns the ΔK weight per strike of a sorted ladder:
// half the distance between the two neighbours for interior strikes, the
// single-sided distance at either end. len(strikes) must be >= 2.
func strikeSpacings(strikes []float64) []float64 {
	n := len(strikes)
	dk := make([]float64, n)
	for i := 1; i < n-1; i++ {
		dk[i] = (strikes[i+1] - strikes[i-1]) / 2
	}
	dk[0] = strikes[1] - strikes[0]
	dk[n-1] = strikes[n-1] - strikes[n-2]
	return dk
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
