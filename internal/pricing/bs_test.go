package pricing

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// TestBlackScholesParity checks put-call parity, C - P = S - K*exp(-rT),
// across a spread of strikes and maturities. Parity holds for any
// volatility, so a violation points at the d1/d2 plumbing.
func TestBlackScholesParity(t *testing.T) {
	cases := []struct {
		name            string
		S, K, T, r, vol float64
	}{
		{"at the money", 3.0, 3.0, 0.25, 0.02, 0.2},
		{"deep itm call", 3.0, 2.0, 0.25, 0.02, 0.2},
		{"deep otm call", 3.0, 4.5, 0.25, 0.02, 0.2},
		{"long dated", 100, 95, 2.0, 0.03, 0.35},
		{"zero rate", 5.0, 5.5, 0.5, 0, 0.15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			call := BlackScholesPrice(true, tc.S, tc.K, tc.T, tc.r, tc.vol)
			put := BlackScholesPrice(false, tc.S, tc.K, tc.T, tc.r, tc.vol)
			want := tc.S - tc.K*math.Exp(-tc.r*tc.T)
			if got := call - put; !almostEqual(got, want, 1e-9) {
				t.Errorf("C-P = %.12f, want %.12f", got, want)
			}
		})
	}
}

func TestBlackScholesIntrinsicFallback(t *testing.T) {
	if got := BlackScholesPrice(true, 110, 100, 0, 0.02, 0.2); got != 10 {
		t.Errorf("expired call = %v, want intrinsic 10", got)
	}
	if got := BlackScholesPrice(false, 90, 100, 0, 0.02, 0.2); got != 10 {
		t.Errorf("expired put = %v, want intrinsic 10", got)
	}
	if got := BlackScholesPrice(true, 90, 100, 0.5, 0.02, 0); got != 0 {
		t.Errorf("zero-vol otm call = %v, want 0", got)
	}
}

func TestBlackScholesVega(t *testing.T) {
	vega := BlackScholesVega(3.0, 3.0, 0.25, 0.02, 0.2)
	if vega <= 0 {
		t.Fatalf("atm vega = %v, want > 0", vega)
	}

	// Bumping the vol must move the price by roughly vega per unit.
	const bump = 1e-5
	base := BlackScholesPrice(true, 3.0, 3.0, 0.25, 0.02, 0.2)
	bumped := BlackScholesPrice(true, 3.0, 3.0, 0.25, 0.02, 0.2+bump)
	if got := (bumped - base) / bump; !almostEqual(got, vega, 1e-4) {
		t.Errorf("finite-difference vega = %v, analytic %v", got, vega)
	}

	if got := BlackScholesVega(3.0, 3.0, 0, 0.02, 0.2); got != 0 {
		t.Errorf("expired vega = %v, want 0", got)
	}
	if got := BlackScholesVega(3.0, 3.0, 0.25, 0.02, 0); got != 0 {
		t.Errorf("zero-vol vega = %v, want 0", got)
	}
}

// TestImpliedVolATMRoundTrip prices both legs at the forward strike, where
// call and put coincide, and expects the solver to recover the volatility
// that generated them.
func TestImpliedVolATMRoundTrip(t *testing.T) {
	const (
		S     = 3.0
		T     = 0.5
		r     = 0.02
		sigma = 0.25
	)
	K := S * math.Exp(r*T)

	call := BlackScholesPrice(true, S, K, T, r, sigma)
	put := BlackScholesPrice(false, S, K, T, r, sigma)

	got, err := ImpliedVolATM(S, K, T, r, call, put)
	if err != nil {
		t.Fatalf("ImpliedVolATM returned error: %v", err)
	}
	if !almostEqual(got, sigma, 1e-4) {
		t.Errorf("implied vol = %.6f, want %.6f", got, sigma)
	}
}

func TestImpliedVolATMErrors(t *testing.T) {
	if _, err := ImpliedVolATM(3.0, 3.0, 0, 0.02, 0.1, 0.1); err == nil {
		t.Error("expected error for non-positive expiry")
	}

	// A premium below the no-arbitrage floor is unattainable under any
	// volatility and must not converge.
	if _, err := ImpliedVolATM(100, 100, 0.25, 0.02, 0.1, 0.1); err == nil {
		t.Error("expected error for unattainable premium")
	}
}
