package quote

import (
	"fmt"
	"math"

	"arbscope/internal/model"
)

// weightedRate derives the spot rate from balances scaled by each asset's
// configured weight, decimal-adjusted, fee applied on output.
func weightedRate(v *model.Venue, inIdx, outIdx int) (float64, error) {
	bIn, bOut, wIn, wOut, err := weightedLegs(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	return (bOut / wOut) / (bIn / wIn) * feeFactor(v.FeeBps), nil
}

// weightedOut uses the weighted-pool output formula so the quote carries
// price impact: out = bOut * (1 - (bIn / (bIn + inAfterFee))^(wIn/wOut)).
func weightedOut(v *model.Venue, inIdx, outIdx int, amountIn float64) (float64, error) {
	bIn, bOut, wIn, wOut, err := weightedLegs(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	inAfterFee := amountIn * feeFactor(v.FeeBps)
	base := bIn / (bIn + inAfterFee)
	return bOut * (1 - math.Pow(base, wIn/wOut)), nil
}

func weightedLegs(v *model.Venue, inIdx, outIdx int) (bIn, bOut, wIn, wOut float64, err error) {
	if len(v.State.Weights) != len(v.Assets) {
		return 0, 0, 0, 0, fmt.Errorf("%w: weights", ErrMissingState)
	}
	bIn, bOut, err = normalizedReserves(v, inIdx, outIdx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	wIn = normalize(v.State.Weights[inIdx], 18)
	wOut = normalize(v.State.Weights[outIdx], 18)
	if wIn <= 0 || wOut <= 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: non-positive weight", ErrBadPrice)
	}
	return bIn, bOut, wIn, wOut, nil
}
