package fetch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arbscope/internal/cache"
	"arbscope/internal/model"
	"arbscope/internal/registry"
)

// AssembleVenues materializes the scan's working set from a cache snapshot.
// A venue missing any state its category requires is skipped for this scan,
// never dropped from the registry.
func AssembleVenues(snap *cache.Snapshot, reg *registry.Registry, logger *zap.Logger) (venues []*model.Venue, skipped int) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, meta := range reg.Venues() {
		venue, ok := assembleVenue(snap, reg, meta)
		if !ok {
			skipped++
			logger.Debug("venue skipped this scan",
				zap.String("venue", meta.Address.Hex()),
				zap.String("category", string(meta.Category)),
			)
			continue
		}
		venues = append(venues, venue)
	}
	return venues, skipped
}

func assembleVenue(snap *cache.Snapshot, reg *registry.Registry, meta model.VenueMeta) (*model.Venue, bool) {
	assets, ok := snapshotAssets(snap, meta.Address)
	if !ok {
		return nil, false
	}

	decimals := make([]uint8, len(assets))
	for i, addr := range assets {
		asset, ok := reg.Asset(addr)
		if !ok {
			return nil, false
		}
		decimals[i] = asset.Decimals
	}

	venue := &model.Venue{
		Address:  meta.Address,
		Category: meta.Category,
		Assets:   assets,
		Decimals: decimals,
		FeeBps:   meta.FeeBps,
	}

	switch meta.Category {
	case model.ConstantProduct:
		reserves, ok := snapshotReserves(snap, meta.Address)
		if !ok || len(reserves) != 2 {
			return nil, false
		}
		venue.State.Reserves = reserves

	case model.ConcentratedLiquidity:
		slot0Val, ok := snap.Value(cache.Key{Subject: meta.Address, Field: FieldSlot0})
		if !ok {
			return nil, false
		}
		slot0, ok := slot0Val.(Slot0)
		if !ok || slot0.SqrtPriceX96 == nil || slot0.SqrtPriceX96.Sign() <= 0 {
			return nil, false
		}
		liqVal, ok := snap.Value(cache.Key{Subject: meta.Address, Field: FieldLiquidity})
		if !ok {
			return nil, false
		}
		liquidity, ok := liqVal.(*big.Int)
		if !ok {
			return nil, false
		}
		venue.State.SqrtPriceX96 = slot0.SqrtPriceX96
		venue.State.Tick = slot0.Tick
		venue.State.Liquidity = liquidity

	case model.StableInvariant:
		reserves, ok := snapshotReserves(snap, meta.Address)
		if !ok || len(reserves) != len(assets) {
			return nil, false
		}
		probesVal, ok := snap.Value(cache.Key{Subject: meta.Address, Field: FieldProbes})
		if !ok {
			return nil, false
		}
		probes, ok := probesVal.([]model.ProbeQuote)
		if !ok || len(probes) == 0 {
			return nil, false
		}
		venue.State.Reserves = reserves
		venue.State.Probes = probes

		// Virtual price is derived-class state and may be absent without
		// invalidating swap pricing; only share valuation needs it.
		if vpVal, ok := snap.Value(cache.Key{Subject: meta.Address, Field: FieldVirtualPrice}); ok {
			if vp, ok := vpVal.(*big.Int); ok {
				venue.State.VirtualPrice = vp
			}
		}

	case model.Weighted:
		reserves, ok := snapshotReserves(snap, meta.Address)
		if !ok || len(reserves) != len(assets) {
			return nil, false
		}
		weightsVal, ok := snap.Value(cache.Key{Subject: meta.Address, Field: FieldWeights})
		if !ok {
			return nil, false
		}
		weights, ok := weightsVal.([]*big.Int)
		if !ok || len(weights) != len(assets) {
			return nil, false
		}
		venue.State.Reserves = reserves
		venue.State.Weights = weights

	default:
		return nil, false
	}

	return venue, true
}

func snapshotAssets(snap *cache.Snapshot, venue common.Address) ([]common.Address, bool) {
	val, ok := snap.Value(cache.Key{Subject: venue, Field: FieldAssets})
	if !ok {
		return nil, false
	}
	assets, ok := val.([]common.Address)
	if !ok || len(assets) < 2 {
		return nil, false
	}
	return assets, true
}

func snapshotReserves(snap *cache.Snapshot, venue common.Address) ([]*big.Int, bool) {
	val, ok := snap.Value(cache.Key{Subject: venue, Field: FieldReserves})
	if !ok {
		return nil, false
	}
	reserves, ok := val.([]*big.Int)
	if !ok {
		return nil, false
	}
	return reserves, true
}
