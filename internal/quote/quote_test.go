package quote

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"arbscope/internal/model"
)

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func raw(human float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(human), big.NewFloat(math.Pow10(decimals)))
	out, _ := scaled.Int(nil)
	return out
}

func approx(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("got %v, want %v (tolerance %v)", got, want, tol)
	}
}

func stableVenue(decIn, decOut int, reserveIn, reserveOut, probeIn, probeOut float64) *model.Venue {
	return &model.Venue{
		Address:  addr(0x10),
		Category: model.StableInvariant,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{uint8(decIn), uint8(decOut)},
		FeeBps:   4,
		State: model.VenueState{
			Reserves: []*big.Int{raw(reserveIn, decIn), raw(reserveOut, decOut)},
			Probes: []model.ProbeQuote{{
				InIndex:   0,
				OutIndex:  1,
				AmountIn:  raw(probeIn, decIn),
				AmountOut: raw(probeOut, decOut),
			}},
		},
	}
}

func TestStableRateIgnoresBalanceImbalance(t *testing.T) {
	// 70/30 imbalance, but the venue still quotes near parity.
	v := stableVenue(6, 6, 70_000_000, 30_000_000, 1000, 999.6)

	rate, err := Rate(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate, 0.9996, 1e-9)

	ratio, err := BalanceRatio(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(ratio-rate) < 0.3 {
		t.Fatalf("balance ratio %v should diverge from probe rate %v under imbalance", ratio, rate)
	}
}

func TestStableRateMismatchedDecimals(t *testing.T) {
	// 6-decimal input against an 18-decimal output. Each side must be
	// normalized by its own decimals or the rate is off by 1e12.
	v := stableVenue(6, 18, 1_000_000, 1_000_000, 1000, 999.5)

	rate, err := Rate(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate, 0.9995, 1e-9)
}

func TestStableRateNoProbe(t *testing.T) {
	v := stableVenue(6, 6, 1000, 1000, 1000, 999.6)

	// Only the 0->1 probe exists; the reverse direction must refuse to
	// price rather than fall back to the balance ratio.
	if _, err := Rate(v, 1, 0); !errors.Is(err, ErrNoProbe) {
		t.Fatalf("expected ErrNoProbe, got %v", err)
	}
}

func TestConstantProductOut(t *testing.T) {
	v := &model.Venue{
		Address:  addr(0x11),
		Category: model.ConstantProduct,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{18, 18},
		FeeBps:   30,
		State: model.VenueState{
			Reserves: []*big.Int{raw(100, 18), raw(200, 18)},
		},
	}

	out, err := AmountOut(v, 0, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// x*y=k with 0.997 of the input effective.
	want := 200 * 0.997 / (100 + 0.997)
	approx(t, out, want, 1e-12)

	rate, err := Rate(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate, 2*0.997, 1e-12)
}

func TestConstantProductRoundTripLosesFees(t *testing.T) {
	v := &model.Venue{
		Address:  addr(0x12),
		Category: model.ConstantProduct,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{18, 6},
		FeeBps:   30,
		State: model.VenueState{
			Reserves: []*big.Int{raw(1000, 18), raw(2_000_000, 6)},
		},
	}

	out, err := AmountOut(v, 0, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := AmountOut(v, 1, 0, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back >= 10 {
		t.Fatalf("round trip through one venue must lose fees and impact: %v >= 10", back)
	}
	// But not more than fees plus impact would explain.
	if back < 10*0.97 {
		t.Fatalf("round trip lost too much: %v", back)
	}
}

func TestConcentratedRate(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(2), 96) // raw sqrt price 2, so price0->1 is 4

	v := &model.Venue{
		Address:  addr(0x13),
		Category: model.ConcentratedLiquidity,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{18, 18},
		FeeBps:   30,
		State: model.VenueState{
			SqrtPriceX96: sqrtPrice,
			Liquidity:    big.NewInt(1e18),
		},
	}

	rate01, err := Rate(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate01, 4*0.997, 1e-9)

	rate10, err := Rate(v, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate10, 0.25*0.997, 1e-9)
}

func TestConcentratedRateDecimalAdjust(t *testing.T) {
	// Parity pool between an 18-decimal and a 6-decimal asset: the raw sqrt
	// price embeds the 1e12 scale, the quoted rate must not.
	sqrtRaw := new(big.Float).SetFloat64(math.Sqrt(1e-12) * math.Pow(2, 96))
	sqrtPrice, _ := sqrtRaw.Int(nil)

	v := &model.Venue{
		Address:  addr(0x14),
		Category: model.ConcentratedLiquidity,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{18, 6},
		FeeBps:   0,
		State: model.VenueState{
			SqrtPriceX96: sqrtPrice,
			Liquidity:    big.NewInt(1e18),
		},
	}

	rate, err := Rate(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate, 1.0, 1e-6)
}

func TestWeightedRate(t *testing.T) {
	v := &model.Venue{
		Address:  addr(0x15),
		Category: model.Weighted,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{18, 18},
		FeeBps:   0,
		State: model.VenueState{
			Reserves: []*big.Int{raw(8000, 18), raw(2000, 18)},
			Weights:  []*big.Int{raw(0.8, 18), raw(0.2, 18)},
		},
	}

	// Weight-scaled balances are equal, so the pool is at parity despite
	// the 4:1 balance ratio.
	rate, err := Rate(v, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, rate, 1.0, 1e-12)

	out, err := AmountOut(v, 0, 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out >= 100 {
		t.Fatalf("sized quote must carry impact below spot: %v", out)
	}
	want := 2000 * (1 - math.Pow(8000.0/8100.0, 0.8/0.2))
	approx(t, out, want, 1e-9)
}

func TestDepthOut(t *testing.T) {
	v := &model.Venue{
		Address:  addr(0x16),
		Category: model.ConstantProduct,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{18, 6},
		State: model.VenueState{
			Reserves: []*big.Int{raw(1000, 18), raw(2_000_000, 6)},
		},
	}

	depth, err := DepthOut(v, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx(t, depth, 2_000_000, 1e-6)
}

func TestBadIndices(t *testing.T) {
	v := stableVenue(6, 6, 1000, 1000, 1000, 999.6)

	cases := []struct {
		name   string
		in, ot int
	}{
		{"negative in", -1, 1},
		{"out of range", 0, 2},
		{"identical", 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Rate(v, tc.in, tc.ot); !errors.Is(err, ErrBadIndex) {
				t.Fatalf("expected ErrBadIndex, got %v", err)
			}
		})
	}
}
