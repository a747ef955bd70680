// Package quote prices trades on cached venue state. Every function here is
// pure: no I/O, no mutation, one pricing function per venue category with
// explicit dispatch on the category tag.
package quote

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"arbscope/internal/model"
)

var (
	// ErrMissingState is returned when the venue state lacks the fields the
	// category's pricing function needs.
	ErrMissingState = errors.New("venue state missing required fields")
	// ErrBadIndex is returned for an asset index outside the venue's list.
	ErrBadIndex = errors.New("asset index outside venue")
	// ErrBadPrice is returned when the derived price is non-finite, zero, or
	// negative. Callers exclude the venue/direction rather than substitute.
	ErrBadPrice = errors.New("derived price is not finite and positive")
	// ErrNoProbe is returned when a stable-invariant venue has no exact
	// output sample for the requested direction.
	ErrNoProbe = errors.New("no probe quote for direction")
)

// AmountOut quotes the venue for amountIn of the asset at inIdx, returning
// the output amount of the asset at outIdx. Amounts are decimal-normalized.
func AmountOut(v *model.Venue, inIdx, outIdx int, amountIn float64) (float64, error) {
	if err := checkIndices(v, inIdx, outIdx); err != nil {
		return 0, err
	}
	if amountIn <= 0 || math.IsNaN(amountIn) || math.IsInf(amountIn, 0) {
		return 0, fmt.Errorf("%w: amount in %v", ErrBadPrice, amountIn)
	}

	var out float64
	var err error
	switch v.Category {
	case model.ConstantProduct:
		out, err = constantProductOut(v, inIdx, outIdx, amountIn)
	case model.ConcentratedLiquidity:
		out, err = concentratedOut(v, inIdx, outIdx, amountIn)
	case model.StableInvariant:
		out, err = stableOut(v, inIdx, outIdx, amountIn)
	case model.Weighted:
		out, err = weightedOut(v, inIdx, outIdx, amountIn)
	default:
		return 0, fmt.Errorf("unknown venue category %q", v.Category)
	}
	if err != nil {
		return 0, err
	}
	if out <= 0 || math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("%w: amount out %v", ErrBadPrice, out)
	}
	return out, nil
}

// Rate returns the effective unit exchange rate (output asset per input
// asset, fee applied) used to price a graph edge.
func Rate(v *model.Venue, inIdx, outIdx int) (float64, error) {
	if err := checkIndices(v, inIdx, outIdx); err != nil {
		return 0, err
	}

	var rate float64
	var err error
	switch v.Category {
	case model.ConstantProduct:
		rate, err = constantProductRate(v, inIdx, outIdx)
	case model.ConcentratedLiquidity:
		rate, err = concentratedRate(v, inIdx, outIdx)
	case model.StableInvariant:
		rate, err = stableRate(v, inIdx, outIdx)
	case model.Weighted:
		rate, err = weightedRate(v, inIdx, outIdx)
	default:
		return 0, fmt.Errorf("unknown venue category %q", v.Category)
	}
	if err != nil {
		return 0, err
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: rate %v", ErrBadPrice, rate)
	}
	return rate, nil
}

// DepthOut returns the venue's available depth on the output side, in
// decimal-normalized units of the asset at outIdx. Used for liquidity floors
// and trade-fraction checks.
func DepthOut(v *model.Venue, outIdx int) (float64, error) {
	if outIdx < 0 || outIdx >= len(v.Assets) {
		return 0, ErrBadIndex
	}
	switch v.Category {
	case model.ConcentratedLiquidity:
		return concentratedDepth(v, outIdx)
	default:
		if len(v.State.Reserves) != len(v.Assets) || v.State.Reserves[outIdx] == nil {
			return 0, fmt.Errorf("%w: reserves", ErrMissingState)
		}
		return normalize(v.State.Reserves[outIdx], v.Decimals[outIdx]), nil
	}
}

func checkIndices(v *model.Venue, inIdx, outIdx int) error {
	if inIdx < 0 || inIdx >= len(v.Assets) || outIdx < 0 || outIdx >= len(v.Assets) {
		return ErrBadIndex
	}
	if inIdx == outIdx {
		return fmt.Errorf("%w: identical in/out index %d", ErrBadIndex, inIdx)
	}
	if len(v.Decimals) != len(v.Assets) {
		return fmt.Errorf("%w: decimals", ErrMissingState)
	}
	return nil
}

// normalize converts a raw on-chain amount to human units using the asset's
// own decimals.
func normalize(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(raw).Float64()
	return f / math.Pow10(int(decimals))
}

func feeFactor(feeBps uint32) float64 {
	return 1 - float64(feeBps)/10000
}
