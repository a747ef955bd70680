package quote

import (
	"fmt"

	"arbscope/internal/model"
)

// Stable-invariant venues are never priced off their balance ratio: under
// imbalance the ratio diverges arbitrarily from the true exchange rate. The
// authoritative price is the venue's own exact output for a representative
// trade size, with the input normalized by the input asset's decimals and the
// output by the output asset's decimals. These are frequently different.

// stableRate computes amountOut/amountIn from the venue's probe quote for the
// requested direction, each side normalized by its own asset's decimals.
func stableRate(v *model.Venue, inIdx, outIdx int) (float64, error) {
	probe, ok := findProbe(v, inIdx, outIdx)
	if !ok {
		return 0, fmt.Errorf("%w: %d->%d", ErrNoProbe, inIdx, outIdx)
	}
	in := normalize(probe.AmountIn, v.Decimals[inIdx])
	out := normalize(probe.AmountOut, v.Decimals[outIdx])
	if in <= 0 {
		return 0, fmt.Errorf("%w: zero probe input", ErrBadPrice)
	}
	// The venue's exact output already includes its fee.
	return out / in, nil
}

func stableOut(v *model.Venue, inIdx, outIdx int, amountIn float64) (float64, error) {
	rate, err := stableRate(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	return amountIn * rate, nil
}

func findProbe(v *model.Venue, inIdx, outIdx int) (model.ProbeQuote, bool) {
	for _, p := range v.State.Probes {
		if p.InIndex == inIdx && p.OutIndex == outIdx && p.AmountIn != nil && p.AmountOut != nil {
			return p, true
		}
	}
	return model.ProbeQuote{}, false
}

// BalanceRatio is the cheap pre-filter for stable venues: the normalized
// balance ratio for a direction. It must never be used as an edge price; it
// only gates whether the probe is worth evaluating at all.
func BalanceRatio(v *model.Venue, inIdx, outIdx int) (float64, error) {
	if err := checkIndices(v, inIdx, outIdx); err != nil {
		return 0, err
	}
	rIn, rOut, err := normalizedReserves(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	return rOut / rIn, nil
}
