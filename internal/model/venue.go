package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// VenueCategory is the closed set of supported pricing models. Adding a
// category means adding a pricing function and an explicit dispatch case.
type VenueCategory string

const (
	ConstantProduct       VenueCategory = "constant-product"
	ConcentratedLiquidity VenueCategory = "concentrated-liquidity"
	StableInvariant       VenueCategory = "stable-invariant"
	Weighted              VenueCategory = "weighted"
)

// Valid reports whether the category is a known member of the enumeration.
func (c VenueCategory) Valid() bool {
	switch c {
	case ConstantProduct, ConcentratedLiquidity, StableInvariant, Weighted:
		return true
	}
	return false
}

// ProbeQuote is the result of asking a stable-invariant venue for its exact
// output on a representative trade size. AmountIn/AmountOut are raw on-chain
// units of the respective assets.
type ProbeQuote struct {
	InIndex   int
	OutIndex  int
	AmountIn  *big.Int
	AmountOut *big.Int
}

// VenueState is the category-specific mutable state of a venue. Only the
// fields relevant to the venue's category are populated.
type VenueState struct {
	// Reserves holds raw per-asset balances in venue-local asset order.
	// Used by constant-product, stable-invariant, and weighted venues.
	Reserves []*big.Int

	// SqrtPriceX96 and Tick describe a concentrated-liquidity venue's
	// instantaneous price. Liquidity is the in-range liquidity.
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int

	// VirtualPrice is the invariant-growth factor of a stable-invariant
	// venue, 1e18-scaled, monotonically non-decreasing.
	VirtualPrice *big.Int

	// Probes are exact-output samples for stable-invariant venues.
	Probes []ProbeQuote

	// Weights are 1e18-normalized per-asset weights for weighted venues.
	Weights []*big.Int

	FetchedAt time.Time
}

// Venue is one liquidity pool instance. The asset list is in the venue's own
// index order as discovered on structural refresh; positions are venue-local
// and carry no relation to any global ordering.
type Venue struct {
	Address  common.Address
	Category VenueCategory
	Assets   []common.Address
	Decimals []uint8
	FeeBps   uint32
	State    VenueState
}

// AssetIndex returns the venue-local index of the asset, or -1 if the venue
// does not hold it.
func (v *Venue) AssetIndex(asset common.Address) int {
	for i, a := range v.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// VenueMeta is the static registry's description of a venue. The asset legs
// named here are hints for discovery; the authoritative ordering comes from
// the venue itself.
type VenueMeta struct {
	Address  common.Address `json:"address"`
	Category VenueCategory  `json:"category"`
	FeeBps   uint32         `json:"fee_bps"`
	Disabled bool           `json:"disabled"`

	// PooledShare, when set, names the pooled-share asset this venue mints
	// (the venue is a source of derived value for that asset).
	PooledShare common.Address `json:"pooled_share"`
}
