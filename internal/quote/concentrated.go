package quote

import (
	"fmt"
	"math"
	"math/big"

	"arbscope/internal/model"
)

var q96 = math.Pow(2, 96)

// rawSqrtPrice returns sqrtPriceX96 / 2^96 as a float. The squared value is
// the price of asset 0 in units of asset 1, before decimal adjustment.
func rawSqrtPrice(v *model.Venue) (float64, error) {
	if v.State.SqrtPriceX96 == nil || v.State.SqrtPriceX96.Sign() <= 0 {
		return 0, fmt.Errorf("%w: sqrt price", ErrMissingState)
	}
	f, _ := new(big.Float).SetInt(v.State.SqrtPriceX96).Float64()
	return f / q96, nil
}

// concentratedRate derives the rate from the stored price root, squared and
// decimal-adjusted, with the fee applied on output. Concentrated venues hold
// exactly two assets at venue-local indices 0 and 1.
func concentratedRate(v *model.Venue, inIdx, outIdx int) (float64, error) {
	if len(v.Assets) != 2 {
		return 0, fmt.Errorf("%w: concentrated venue with %d assets", ErrMissingState, len(v.Assets))
	}
	sqrtP, err := rawSqrtPrice(v)
	if err != nil {
		return 0, err
	}

	// price of asset0 in asset1, adjusted so both sides are human units
	price01 := sqrtP * sqrtP * math.Pow10(int(v.Decimals[0])-int(v.Decimals[1]))
	if price01 <= 0 || math.IsInf(price01, 0) || math.IsNaN(price01) {
		return 0, fmt.Errorf("%w: price %v", ErrBadPrice, price01)
	}

	if inIdx == 0 {
		return price01 * feeFactor(v.FeeBps), nil
	}
	return (1 / price01) * feeFactor(v.FeeBps), nil
}

// concentratedOut prices at the instantaneous root. Size-dependent impact is
// bounded elsewhere by the trade-fraction cap on the venue's virtual depth.
func concentratedOut(v *model.Venue, inIdx, outIdx int, amountIn float64) (float64, error) {
	rate, err := concentratedRate(v, inIdx, outIdx)
	if err != nil {
		return 0, err
	}
	return amountIn * rate, nil
}

// concentratedDepth derives the virtual reserve of the output asset from the
// in-range liquidity: y = L * sqrtP / 2^96, x = L * 2^96 / sqrtPriceX96.
func concentratedDepth(v *model.Venue, outIdx int) (float64, error) {
	if v.State.Liquidity == nil || v.State.Liquidity.Sign() <= 0 {
		return 0, fmt.Errorf("%w: liquidity", ErrMissingState)
	}
	sqrtP, err := rawSqrtPrice(v)
	if err != nil {
		return 0, err
	}
	liq, _ := new(big.Float).SetInt(v.State.Liquidity).Float64()

	var raw float64
	if outIdx == 1 {
		raw = liq * sqrtP
	} else {
		raw = liq / sqrtP
	}
	return raw / math.Pow10(int(v.Decimals[outIdx])), nil
}
