package search

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arbscope/internal/graph"
	"arbscope/internal/model"
	"arbscope/internal/quote"
)

// NavConfig sets the valuation-gap thresholds.
type NavConfig struct {
	// MinDiscountBps is the minimum discount of market price below derived
	// fair value. The gas allowance is added on top, so acceptance is
	// discount > MinDiscountBps + GasBps.
	MinDiscountBps float64
	// GasBps is the flat gas allowance.
	GasBps float64
	// SupplyActionEnabled permits emitting premium-side opportunities, which
	// need a mint/supply action to capture. Off by default; premiums are
	// still logged.
	SupplyActionEnabled bool
}

// PriceFunc resolves an asset's price in value units. ok=false means the
// asset cannot be priced this scan.
type PriceFunc func(asset common.Address) (float64, bool)

// AssetFunc resolves registry metadata for an asset.
type AssetFunc func(asset common.Address) (model.Asset, bool)

// FindValuationGaps compares each pooled share's derived fair value against
// its best secondary-market quote. Fair value is the venue's invariant-growth
// factor times the cheapest underlying's price, the conservative floor on
// redemption value.
func (s *Searcher) FindValuationGaps(g *graph.Graph, venues []*model.Venue, shares map[common.Address]common.Address, nav NavConfig, priceOf PriceFunc, assetOf AssetFunc) []model.Opportunity {
	var found []model.Opportunity

	for _, v := range venues {
		if v.Category != model.StableInvariant || v.State.VirtualPrice == nil {
			continue
		}
		share, ok := shares[v.Address]
		if !ok {
			continue
		}

		derived, ok := s.derivedShareValue(v, priceOf, assetOf)
		if !ok {
			continue
		}

		opp, premiumBps, ok := s.bestMarketGap(g, share, derived, nav, priceOf, assetOf)
		if !ok {
			continue
		}
		if premiumBps > 0 {
			s.logger.Info("pooled share trading at premium",
				zap.String("share", share.Hex()),
				zap.Float64("premium_bps", premiumBps),
				zap.Bool("actionable", nav.SupplyActionEnabled),
			)
		}
		if opp != nil {
			opp.SourceVenue = v.Address
			found = append(found, *opp)
		}
	}
	return found
}

// derivedShareValue is virtualPrice (1e18-scaled growth factor) times the
// minimum underlying price. Any unpriceable underlying disqualifies the
// venue's share this scan.
func (s *Searcher) derivedShareValue(v *model.Venue, priceOf PriceFunc, assetOf AssetFunc) (float64, bool) {
	vp := normalize18(v.State.VirtualPrice)
	if vp <= 0 {
		return 0, false
	}

	minPrice := 0.0
	for i, addr := range v.Assets {
		price, ok := underlyingPrice(addr, priceOf, assetOf)
		if !ok {
			return 0, false
		}
		if i == 0 || price < minPrice {
			minPrice = price
		}
	}
	return vp * minPrice, true
}

// bestMarketGap finds the cheapest acquisition of the share across its
// secondary markets, materializes the buy leg, and returns a discount
// opportunity when it clears the threshold. When the market instead values the
// share above derived, the second return carries the premium in bps and the
// opportunity is a materialized sell leg, emitted only under SupplyActionEnabled.
func (s *Searcher) bestMarketGap(g *graph.Graph, share common.Address, derived float64, nav NavConfig, priceOf PriceFunc, assetOf AssetFunc) (*model.Opportunity, float64, bool) {
	var (
		bestEdge graph.Edge
		bestCost float64
		haveBuy  bool
	)
	for _, edge := range g.Edges {
		if edge.To != share {
			continue
		}
		price, ok := underlyingPrice(edge.From, priceOf, assetOf)
		if !ok {
			continue
		}
		cost := price / edge.Rate
		if !haveBuy || cost < bestCost {
			bestEdge, bestCost, haveBuy = edge, cost, true
		}
	}

	// Best sale proceeds per share, for premium detection.
	var (
		bestSellEdge graph.Edge
		bestProceeds float64
	)
	for _, edge := range g.OutEdges(share) {
		price, ok := underlyingPrice(edge.To, priceOf, assetOf)
		if !ok {
			continue
		}
		if proceeds := edge.Rate * price; proceeds > bestProceeds {
			bestSellEdge, bestProceeds = edge, proceeds
		}
	}

	if !haveBuy {
		return nil, 0, false
	}

	if bestCost < derived {
		discountBps := (derived - bestCost) / derived * 10000
		if discountBps <= nav.MinDiscountBps+nav.GasBps {
			return nil, 0, true
		}
		opp, ok := s.materializeBuy(bestEdge, derived, bestCost, discountBps, nav, priceOf, assetOf)
		if !ok {
			return nil, 0, false
		}
		return opp, 0, true
	}

	if bestProceeds > derived && derived > 0 {
		premiumBps := (bestProceeds - derived) / derived * 10000
		if nav.SupplyActionEnabled && premiumBps > nav.MinDiscountBps+nav.GasBps {
			if opp, ok := s.materializeSell(bestSellEdge, derived, bestProceeds, premiumBps, nav); ok {
				return opp, premiumBps, true
			}
		}
		return nil, premiumBps, true
	}
	return nil, 0, true
}

// materializeSell sizes the premium capture: mint shares worth the notional at
// derived value, sell into the richest secondary market. The same depth gates
// apply as on the buy side.
func (s *Searcher) materializeSell(edge graph.Edge, derived, quoted, premiumBps float64, nav NavConfig) (*model.Opportunity, bool) {
	if derived <= 0 {
		return nil, false
	}
	amountIn := s.cfg.Notional / derived
	out, err := quote.AmountOut(edge.Venue, edge.FromIdx, edge.ToIdx, amountIn)
	if err != nil || out <= 0 {
		return nil, false
	}
	depth, err := quote.DepthOut(edge.Venue, edge.ToIdx)
	if err != nil || depth < s.cfg.MinVenueLiquidity {
		return nil, false
	}
	if out >= depth*s.cfg.MaxTradeFraction {
		return nil, false
	}

	return &model.Opportunity{
		Kind: model.KindValuationGap,
		Legs: []model.Leg{{
			Venue:     edge.Venue.Address,
			AssetIn:   edge.From,
			AssetOut:  edge.To,
			AmountIn:  amountIn,
			AmountOut: out,
			Rate:      out / amountIn,
		}},
		GrossBps:     premiumBps,
		CostBps:      nav.GasBps,
		NetBps:       premiumBps,
		DerivedValue: derived,
		QuotedValue:  quoted,
	}, true
}

func (s *Searcher) materializeBuy(edge graph.Edge, derived, quoted, discountBps float64, nav NavConfig, priceOf PriceFunc, assetOf AssetFunc) (*model.Opportunity, bool) {
	priceIn, ok := underlyingPrice(edge.From, priceOf, assetOf)
	if !ok || priceIn <= 0 {
		return nil, false
	}
	amountIn := s.cfg.Notional / priceIn
	out, err := quote.AmountOut(edge.Venue, edge.FromIdx, edge.ToIdx, amountIn)
	if err != nil || out <= 0 {
		return nil, false
	}
	depth, err := quote.DepthOut(edge.Venue, edge.ToIdx)
	if err != nil || depth < s.cfg.MinVenueLiquidity {
		return nil, false
	}
	if out >= depth*s.cfg.MaxTradeFraction {
		return nil, false
	}

	return &model.Opportunity{
		Kind: model.KindValuationGap,
		Legs: []model.Leg{{
			Venue:     edge.Venue.Address,
			AssetIn:   edge.From,
			AssetOut:  edge.To,
			AmountIn:  amountIn,
			AmountOut: out,
			Rate:      out / amountIn,
		}},
		GrossBps:     discountBps,
		CostBps:      nav.GasBps,
		NetBps:       discountBps,
		DerivedValue: derived,
		QuotedValue:  quoted,
	}, true
}

// underlyingPrice treats registered stable assets as the unit of account and
// prices everything else through the supplied price source.
func underlyingPrice(addr common.Address, priceOf PriceFunc, assetOf AssetFunc) (float64, bool) {
	if asset, ok := assetOf(addr); ok && asset.Category == model.AssetStable {
		return 1.0, true
	}
	if priceOf == nil {
		return 0, false
	}
	return priceOf(addr)
}

// normalize18 converts a 1e18-scaled fixed-point value to float.
func normalize18(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e18)).Float64()
	return f
}
