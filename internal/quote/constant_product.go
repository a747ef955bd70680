package quote

import (
	"fmt"

	"arbscope/internal/model"
)

// constantProductRate derives the spot rate from the pooled balance ratio,
// decimal-adjusted, with the fee applied multiplicatively on output.
func constantProductRate(v *model.Venue, inIdx, outIdx int) (float64, error) {
	rIn, rOut, err := normalizedReserves(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	if rIn == 0 {
		return 0, fmt.Errorf("%w: zero input reserve", ErrBadPrice)
	}
	return (rOut / rIn) * feeFactor(v.FeeBps), nil
}

// constantProductOut applies the x*y=k output formula over normalized
// reserves, so the quote reflects price impact at the requested size.
func constantProductOut(v *model.Venue, inIdx, outIdx int, amountIn float64) (float64, error) {
	rIn, rOut, err := normalizedReserves(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	inAfterFee := amountIn * feeFactor(v.FeeBps)
	denom := rIn + inAfterFee
	if denom == 0 {
		return 0, fmt.Errorf("%w: zero denominator", ErrBadPrice)
	}
	return rOut * inAfterFee / denom, nil
}

func normalizedReserves(v *model.Venue, inIdx, outIdx int) (float64, float64, error) {
	if len(v.State.Reserves) != len(v.Assets) {
		return 0, 0, fmt.Errorf("%w: reserves", ErrMissingState)
	}
	if v.State.Reserves[inIdx] == nil || v.State.Reserves[outIdx] == nil {
		return 0, 0, fmt.Errorf("%w: reserves", ErrMissingState)
	}
	rIn := normalize(v.State.Reserves[inIdx], v.Decimals[inIdx])
	rOut := normalize(v.State.Reserves[outIdx], v.Decimals[outIdx])
	if rIn <= 0 || rOut <= 0 {
		return 0, 0, fmt.Errorf("%w: empty reserves", ErrBadPrice)
	}
	return rIn, rOut, nil
}
