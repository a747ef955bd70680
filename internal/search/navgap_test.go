package search

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"arbscope/internal/graph"
	"arbscope/internal/model"
)

// gapFixture: a stable venue minting a pooled share, and a secondary market
// quoting that share against one of the underlyings.
type gapFixture struct {
	stable *model.Venue
	market *model.Venue
	share  common.Address
	assets map[common.Address]model.Asset
}

// newGapFixture prices the share at marketPrice on the secondary market and
// sets the stable venue's growth factor to virtualPrice.
func newGapFixture(virtualPrice, marketPrice float64) gapFixture {
	share := addr(0x0A)
	underA := addr(0x0B)
	underB := addr(0x0C)

	stable := &model.Venue{
		Address:  addr(0x40),
		Category: model.StableInvariant,
		Assets:   []common.Address{underA, underB},
		Decimals: []uint8{6, 6},
		State: model.VenueState{
			Reserves:     []*big.Int{raw(5_000_000, 6), raw(5_000_000, 6)},
			VirtualPrice: raw(virtualPrice, 18),
			Probes: []model.ProbeQuote{
				{InIndex: 0, OutIndex: 1, AmountIn: raw(1000, 6), AmountOut: raw(999.6, 6)},
				{InIndex: 1, OutIndex: 0, AmountIn: raw(1000, 6), AmountOut: raw(999.6, 6)},
			},
		},
	}

	// Zero-fee pair so the spot equals marketPrice exactly.
	market := &model.Venue{
		Address:  addr(0x41),
		Category: model.ConstantProduct,
		Assets:   []common.Address{underA, share},
		Decimals: []uint8{6, 18},
		FeeBps:   0,
		State: model.VenueState{
			Reserves: []*big.Int{raw(1_000_000*marketPrice, 6), raw(1_000_000, 18)},
		},
	}

	return gapFixture{
		stable: stable,
		market: market,
		share:  share,
		assets: map[common.Address]model.Asset{
			underA: {Address: underA, Decimals: 6, Category: model.AssetStable},
			underB: {Address: underB, Decimals: 6, Category: model.AssetStable},
			share:  {Address: share, Decimals: 18, Category: model.AssetPooledShare},
		},
	}
}

func (f gapFixture) run(t *testing.T, nav NavConfig) []model.Opportunity {
	t.Helper()
	venues := []*model.Venue{f.stable, f.market}
	g, _ := graph.Build(venues, nil)

	s := NewSearcher(Config{
		BaseAssets:        nil,
		Notional:          1000,
		MinVenueLiquidity: 10_000,
		MaxTradeFraction:  0.10,
	}, nil)

	shares := map[common.Address]common.Address{f.stable.Address: f.share}
	assetOf := func(a common.Address) (model.Asset, bool) {
		asset, ok := f.assets[a]
		return asset, ok
	}
	return s.FindValuationGaps(g, venues, shares, nav, nil, assetOf)
}

func TestValuationGapDiscountDetected(t *testing.T) {
	// Derived 1.02, market 0.97: discount about 490 bps.
	f := newGapFixture(1.02, 0.97)

	found := f.run(t, NavConfig{MinDiscountBps: 50, GasBps: 10})
	if len(found) != 1 {
		t.Fatalf("expected exactly one gap opportunity, got %d", len(found))
	}
	opp := found[0]
	if opp.Kind != model.KindValuationGap {
		t.Fatalf("wrong kind %q", opp.Kind)
	}
	if math.Abs(opp.NetBps-490.2) > 1 {
		t.Fatalf("net bps %v, want about 490", opp.NetBps)
	}
	if math.Abs(opp.DerivedValue-1.02) > 1e-9 || math.Abs(opp.QuotedValue-0.97) > 1e-6 {
		t.Fatalf("derived/quoted %v/%v", opp.DerivedValue, opp.QuotedValue)
	}
	if opp.SourceVenue != f.stable.Address {
		t.Fatalf("source venue must be the minting venue")
	}
	if len(opp.Legs) != 1 || opp.Legs[0].AssetOut != f.share {
		t.Fatalf("gap leg must acquire the share: %+v", opp.Legs)
	}
}

func TestValuationGapBelowThresholdIgnored(t *testing.T) {
	// Discount about 49 bps against a 50+10 threshold.
	f := newGapFixture(1.005, 1.0)

	found := f.run(t, NavConfig{MinDiscountBps: 50, GasBps: 10})
	if len(found) != 0 {
		t.Fatalf("expected no opportunity under the threshold, got %d", len(found))
	}
}

func TestValuationGapPremiumObservationOnly(t *testing.T) {
	// Market above derived: a premium, capturable only with a supply action.
	f := newGapFixture(1.0, 1.05)

	found := f.run(t, NavConfig{MinDiscountBps: 50, GasBps: 10})
	if len(found) != 0 {
		t.Fatalf("premium must not be emitted with supply action disabled, got %d", len(found))
	}

	found = f.run(t, NavConfig{MinDiscountBps: 50, GasBps: 10, SupplyActionEnabled: true})
	if len(found) != 1 {
		t.Fatalf("premium should be emitted with supply action enabled, got %d", len(found))
	}
	opp := found[0]
	if opp.Kind != model.KindValuationGap || opp.SourceVenue != f.stable.Address {
		t.Fatalf("premium opportunity must name the minting venue: %+v", opp)
	}
	if math.Abs(opp.NetBps-500) > 1 {
		t.Fatalf("premium bps %v, want about 500", opp.NetBps)
	}
	if math.Abs(opp.DerivedValue-1.0) > 1e-9 || math.Abs(opp.QuotedValue-1.05) > 1e-6 {
		t.Fatalf("derived/quoted %v/%v", opp.DerivedValue, opp.QuotedValue)
	}
	if len(opp.Legs) != 1 {
		t.Fatalf("premium opportunity must carry the sell leg, got %d legs", len(opp.Legs))
	}
	leg := opp.Legs[0]
	if leg.AssetIn != f.share || leg.Venue != f.market.Address {
		t.Fatalf("sell leg must dispose of the share on the quoting venue: %+v", leg)
	}
	if leg.AmountIn <= 0 || leg.AmountOut <= 0 {
		t.Fatalf("sell leg amounts must be sized: %+v", leg)
	}
	if opp.PathKey() == string(model.KindValuationGap)+":" {
		t.Fatalf("premium path key must identify the path")
	}
}

func TestValuationGapUnpriceableUnderlyingSkips(t *testing.T) {
	f := newGapFixture(1.02, 0.97)
	// Make one underlying non-stable with no price source.
	f.assets[addr(0x0C)] = model.Asset{Address: addr(0x0C), Decimals: 6, Category: model.AssetVolatile}

	found := f.run(t, NavConfig{MinDiscountBps: 50, GasBps: 10})
	if len(found) != 0 {
		t.Fatalf("venue with unpriceable underlying must be skipped, got %d", len(found))
	}
}
