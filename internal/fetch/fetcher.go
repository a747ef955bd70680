package fetch

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arbscope/internal/cache"
	"arbscope/internal/model"
	"arbscope/internal/registry"
)

// Cache field names, keyed under the venue's address.
const (
	FieldAssets       = "assets"
	FieldWeights      = "weights"
	FieldReserves     = "reserves"
	FieldSlot0        = "slot0"
	FieldLiquidity    = "liquidity"
	FieldVirtualPrice = "virtual_price"
	FieldProbes       = "probes"
)

// Pre-filter band for stable probe scheduling: a pool whose raw balance
// ratio is outside this band is broken enough that probing it is wasted
// budget. This gates calls only; it is never a price.
const (
	probeRatioFloor = 0.01
	probeRatioCeil  = 100.0
)

// maxConcurrentTrips bounds in-flight round trips per refresh phase.
const maxConcurrentTrips = 4

// Config controls batching and cadence.
type Config struct {
	// BatchLimit is the maximum calls per round trip; larger plans split
	// into the minimum number of trips.
	BatchLimit int
	// DiscoveryInterval defers structural rediscovery to every Nth scan.
	DiscoveryInterval uint64
	// Timeout bounds each round trip. A timed-out trip is a full-batch
	// failure; affected entries serve their last cached value per class.
	Timeout time.Duration
	// ProbeNotional is the representative trade size, in human units of
	// the input asset, used for stable-invariant exact quotes.
	ProbeNotional float64
	// MaxVenueAssets bounds per-index asset discovery.
	MaxVenueAssets int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 200
	}
	if cfg.DiscoveryInterval == 0 {
		cfg.DiscoveryInterval = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.ProbeNotional <= 0 {
		cfg.ProbeNotional = 1000
	}
	if cfg.MaxVenueAssets <= 0 {
		cfg.MaxVenueAssets = 4
	}
	return cfg
}

// Fetcher owns the cache refresh path; nothing else writes to the cache.
type Fetcher struct {
	cfg    Config
	reader BatchReader
	cache  *cache.Cache
	reg    *registry.Registry
	logger *zap.Logger
}

func New(cfg Config, reader BatchReader, stateCache *cache.Cache, reg *registry.Registry, logger *zap.Logger) (*Fetcher, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, fmt.Errorf("batch reader is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:    cfg.withDefaults(),
		reader: reader,
		cache:  stateCache,
		reg:    reg,
		logger: logger,
	}, nil
}

// packCall encodes one contract call. A pack failure yields nil calldata,
// which the endpoint rejects and the plan's decode then skips; the failure is
// surfaced here so it is not silent.
func (f *Fetcher) packCall(parsed abi.ABI, method string, args ...interface{}) []byte {
	data, err := pack(parsed, method, args...)
	if err != nil {
		f.logger.Error("abi pack failed", zap.String("method", method), zap.Error(err))
	}
	return data
}

// fieldPlan maps one cache field to the calls that produce it and the decode
// that combines their results.
type fieldPlan struct {
	key    cache.Key
	class  cache.Class
	calls  []ReadRequest
	decode func(results []ReadResult) (any, error)
}

// Refresh executes the reads due at scan seq and updates the cache. It runs
// in two phases so fast-state requests can use asset lists discovered in the
// same refresh. Returns round trips used; ErrSystemic when every trip failed.
func (f *Fetcher) Refresh(ctx context.Context, seq uint64) (int, error) {
	discoveryScan := seq%f.cfg.DiscoveryInterval == 0

	structural := f.planStructural(seq, discoveryScan)
	trips1, failed1 := f.execute(ctx, structural, seq)

	fast := f.planFast(seq)
	trips2, failed2 := f.execute(ctx, fast, seq)

	trips := trips1 + trips2
	failed := failed1 + failed2
	if trips > 0 && failed == trips {
		return trips, ErrSystemic
	}
	return trips, nil
}

func (f *Fetcher) planStructural(seq uint64, discoveryScan bool) []fieldPlan {
	snap := f.cache.Snapshot(seq)

	var plans []fieldPlan
	for _, meta := range f.reg.Venues() {
		assetsKey := cache.Key{Subject: meta.Address, Field: FieldAssets}
		_, haveAssets := snap.Value(assetsKey)

		structuralDue := !haveAssets || (discoveryScan && f.cache.NeedsRefresh(assetsKey, cache.ClassStructural))
		if structuralDue {
			plans = append(plans, f.assetPlans(meta)...)
		}

		if meta.Category == model.StableInvariant {
			vpKey := cache.Key{Subject: meta.Address, Field: FieldVirtualPrice}
			if f.cache.NeedsRefresh(vpKey, cache.ClassDerived) {
				plans = append(plans, f.virtualPricePlan(meta))
			}
		}
	}
	return plans
}

func (f *Fetcher) assetPlans(meta model.VenueMeta) []fieldPlan {
	switch meta.Category {
	case model.ConstantProduct, model.ConcentratedLiquidity:
		return []fieldPlan{f.pairAssetsPlan(meta)}
	case model.StableInvariant:
		return []fieldPlan{f.indexedAssetsPlan(meta, stableABI, "coins")}
	case model.Weighted:
		return []fieldPlan{
			f.indexedAssetsPlan(meta, weightedABI, "tokens"),
			f.weightsPlan(meta),
		}
	default:
		return nil
	}
}

func (f *Fetcher) pairAssetsPlan(meta model.VenueMeta) fieldPlan {
	data0 := f.packCall(pairABI, "token0")
	data1 := f.packCall(pairABI, "token1")
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldAssets},
		class: cache.ClassStructural,
		calls: []ReadRequest{
			{To: meta.Address, Data: data0},
			{To: meta.Address, Data: data1},
		},
		decode: func(results []ReadResult) (any, error) {
			assets := make([]common.Address, 2)
			for i, res := range results {
				if res.Err != nil {
					return nil, fmt.Errorf("token%d: %w", i, res.Err)
				}
				addr, err := decodeAddress(pairABI, fmt.Sprintf("token%d", i), res.Data)
				if err != nil {
					return nil, err
				}
				assets[i] = addr
			}
			return assets, nil
		},
	}
}

// indexedAssetsPlan discovers the venue's asset list by probing per-index
// getters until the first failure. The resulting order is the venue's own
// indexing scheme; it is never inferred from configuration.
func (f *Fetcher) indexedAssetsPlan(meta model.VenueMeta, parsed abi.ABI, method string) fieldPlan {
	calls := make([]ReadRequest, f.cfg.MaxVenueAssets)
	for i := range calls {
		calls[i] = ReadRequest{To: meta.Address, Data: f.packCall(parsed, method, big.NewInt(int64(i)))}
	}
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldAssets},
		class: cache.ClassStructural,
		calls: calls,
		decode: func(results []ReadResult) (any, error) {
			var assets []common.Address
			for _, res := range results {
				if res.Err != nil {
					break
				}
				addr, err := decodeAddress(parsed, method, res.Data)
				if err != nil {
					break
				}
				assets = append(assets, addr)
			}
			if len(assets) < 2 {
				return nil, fmt.Errorf("discovered %d assets, need at least 2", len(assets))
			}
			return assets, nil
		},
	}
}

func (f *Fetcher) weightsPlan(meta model.VenueMeta) fieldPlan {
	calls := make([]ReadRequest, f.cfg.MaxVenueAssets)
	for i := range calls {
		calls[i] = ReadRequest{To: meta.Address, Data: f.packCall(weightedABI, "normalizedWeight", big.NewInt(int64(i)))}
	}
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldWeights},
		class: cache.ClassStructural,
		calls: calls,
		decode: func(results []ReadResult) (any, error) {
			var weights []*big.Int
			for _, res := range results {
				if res.Err != nil {
					break
				}
				w, err := decodeBig(weightedABI, "normalizedWeight", res.Data)
				if err != nil {
					break
				}
				weights = append(weights, w)
			}
			if len(weights) < 2 {
				return nil, fmt.Errorf("discovered %d weights, need at least 2", len(weights))
			}
			return weights, nil
		},
	}
}

func (f *Fetcher) virtualPricePlan(meta model.VenueMeta) fieldPlan {
	data := f.packCall(stableABI, "get_virtual_price")
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldVirtualPrice},
		class: cache.ClassDerived,
		calls: []ReadRequest{{To: meta.Address, Data: data}},
		decode: func(results []ReadResult) (any, error) {
			if results[0].Err != nil {
				return nil, results[0].Err
			}
			return decodeBig(stableABI, "get_virtual_price", results[0].Data)
		},
	}
}

func (f *Fetcher) planFast(seq uint64) []fieldPlan {
	snap := f.cache.Snapshot(seq)

	var plans []fieldPlan
	for _, meta := range f.reg.Venues() {
		switch meta.Category {
		case model.ConstantProduct:
			plans = append(plans, f.reservesPairPlan(meta))
		case model.ConcentratedLiquidity:
			plans = append(plans, f.slot0Plan(meta), f.liquidityPlan(meta))
		case model.StableInvariant:
			assets, ok := snapshotAssets(snap, meta.Address)
			if !ok {
				continue
			}
			plans = append(plans, f.indexedBalancesPlan(meta, stableABI, len(assets)))
			plans = append(plans, f.probePlans(snap, meta, assets)...)
		case model.Weighted:
			assets, ok := snapshotAssets(snap, meta.Address)
			if !ok {
				continue
			}
			plans = append(plans, f.indexedBalancesPlan(meta, weightedABI, len(assets)))
		}
	}
	return plans
}

func (f *Fetcher) reservesPairPlan(meta model.VenueMeta) fieldPlan {
	data := f.packCall(pairABI, "getReserves")
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldReserves},
		class: cache.ClassFast,
		calls: []ReadRequest{{To: meta.Address, Data: data}},
		decode: func(results []ReadResult) (any, error) {
			if results[0].Err != nil {
				return nil, results[0].Err
			}
			values, err := unpack(pairABI, "getReserves", results[0].Data)
			if err != nil {
				return nil, err
			}
			if len(values) < 2 {
				return nil, fmt.Errorf("getReserves return size %d", len(values))
			}
			r0, err := asBigInt(values[0])
			if err != nil {
				return nil, fmt.Errorf("reserve0: %w", err)
			}
			r1, err := asBigInt(values[1])
			if err != nil {
				return nil, fmt.Errorf("reserve1: %w", err)
			}
			return []*big.Int{r0, r1}, nil
		},
	}
}

func (f *Fetcher) slot0Plan(meta model.VenueMeta) fieldPlan {
	data := f.packCall(concentratedABI, "slot0")
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldSlot0},
		class: cache.ClassFast,
		calls: []ReadRequest{{To: meta.Address, Data: data}},
		decode: func(results []ReadResult) (any, error) {
			if results[0].Err != nil {
				return nil, results[0].Err
			}
			return decodeSlot0(results[0].Data)
		},
	}
}

func (f *Fetcher) liquidityPlan(meta model.VenueMeta) fieldPlan {
	data := f.packCall(concentratedABI, "liquidity")
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldLiquidity},
		class: cache.ClassFast,
		calls: []ReadRequest{{To: meta.Address, Data: data}},
		decode: func(results []ReadResult) (any, error) {
			if results[0].Err != nil {
				return nil, results[0].Err
			}
			return decodeBig(concentratedABI, "liquidity", results[0].Data)
		},
	}
}

func (f *Fetcher) indexedBalancesPlan(meta model.VenueMeta, parsed abi.ABI, count int) fieldPlan {
	calls := make([]ReadRequest, count)
	for i := range calls {
		calls[i] = ReadRequest{To: meta.Address, Data: f.packCall(parsed, "balances", big.NewInt(int64(i)))}
	}
	return fieldPlan{
		key:   cache.Key{Subject: meta.Address, Field: FieldReserves},
		class: cache.ClassFast,
		calls: calls,
		decode: func(results []ReadResult) (any, error) {
			balances := make([]*big.Int, len(results))
			for i, res := range results {
				if res.Err != nil {
					return nil, fmt.Errorf("balances(%d): %w", i, res.Err)
				}
				bal, err := decodeBig(parsed, "balances", res.Data)
				if err != nil {
					return nil, err
				}
				balances[i] = bal
			}
			return balances, nil
		},
	}
}

// probePlans asks a stable venue for its exact output on a representative
// notional, both directions per pair. Failed directions are skipped, not
// fatal to the rest of the probes.
func (f *Fetcher) probePlans(snap *cache.Snapshot, meta model.VenueMeta, assets []common.Address) []fieldPlan {
	type direction struct {
		in, out int
		dx      *big.Int
	}

	lastReserves, _ := snapshotReserves(snap, meta.Address)

	var dirs []direction
	var calls []ReadRequest
	for i := range assets {
		for j := range assets {
			if i == j {
				continue
			}
			asset, ok := f.reg.Asset(assets[i])
			if !ok {
				continue
			}
			if !f.probeWorthwhile(lastReserves, i, j) {
				continue
			}
			dx := notionalRaw(f.cfg.ProbeNotional, asset.Decimals)
			data, err := pack(stableABI, "get_dy", big.NewInt(int64(i)), big.NewInt(int64(j)), dx)
			if err != nil {
				continue
			}
			dirs = append(dirs, direction{in: i, out: j, dx: dx})
			calls = append(calls, ReadRequest{To: meta.Address, Data: data})
		}
	}
	if len(calls) == 0 {
		return nil
	}

	return []fieldPlan{{
		key:   cache.Key{Subject: meta.Address, Field: FieldProbes},
		class: cache.ClassFast,
		calls: calls,
		decode: func(results []ReadResult) (any, error) {
			probes := make([]model.ProbeQuote, 0, len(results))
			for i, res := range results {
				if res.Err != nil {
					continue
				}
				dy, err := decodeBig(stableABI, "get_dy", res.Data)
				if err != nil {
					continue
				}
				probes = append(probes, model.ProbeQuote{
					InIndex:   dirs[i].in,
					OutIndex:  dirs[i].out,
					AmountIn:  dirs[i].dx,
					AmountOut: dy,
				})
			}
			if len(probes) == 0 {
				return nil, fmt.Errorf("no probe direction succeeded")
			}
			return probes, nil
		},
	}}
}

// probeWorthwhile is the cheap balance-ratio pre-filter. Unknown reserves
// pass; a wildly broken ratio skips the pair's probes this scan.
func (f *Fetcher) probeWorthwhile(reserves []*big.Int, i, j int) bool {
	if reserves == nil || i >= len(reserves) || j >= len(reserves) {
		return true
	}
	if reserves[i] == nil || reserves[j] == nil || reserves[i].Sign() <= 0 || reserves[j].Sign() <= 0 {
		return false
	}
	ri, _ := new(big.Float).SetInt(reserves[i]).Float64()
	rj, _ := new(big.Float).SetInt(reserves[j]).Float64()
	ratio := rj / ri
	return ratio >= probeRatioFloor && ratio <= probeRatioCeil
}

// execute flattens the plans' calls into round trips of at most BatchLimit
// calls, runs the trips concurrently, and writes successfully decoded fields
// to the cache. Each trip's result slots are disjoint, so no locking is
// needed around the result matrix.
func (f *Fetcher) execute(ctx context.Context, plans []fieldPlan, seq uint64) (trips, failedTrips int) {
	if len(plans) == 0 {
		return 0, 0
	}

	type callRef struct {
		plan int
		call int
	}
	var flat []ReadRequest
	var refs []callRef
	for pi, plan := range plans {
		for ci, call := range plan.calls {
			flat = append(flat, call)
			refs = append(refs, callRef{plan: pi, call: ci})
		}
	}

	results := make([][]ReadResult, len(plans))
	for pi, plan := range plans {
		results[pi] = make([]ReadResult, len(plan.calls))
	}

	var failed atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(maxConcurrentTrips)

	for start := 0; start < len(flat); start += f.cfg.BatchLimit {
		end := start + f.cfg.BatchLimit
		if end > len(flat) {
			end = len(flat)
		}
		trips++

		start, end := start, end
		eg.Go(func() error {
			tripCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
			defer cancel()

			tripResults, err := f.reader.BatchRead(tripCtx, flat[start:end])
			if err != nil {
				failed.Add(1)
				f.logger.Warn("batch round trip failed", zap.Int("calls", end-start), zap.Error(err))
				for i := start; i < end; i++ {
					ref := refs[i]
					results[ref.plan][ref.call] = ReadResult{Err: err}
				}
				return nil
			}
			for i := start; i < end; i++ {
				ref := refs[i]
				results[ref.plan][ref.call] = tripResults[i-start]
			}
			return nil
		})
	}
	eg.Wait()
	failedTrips = int(failed.Load())

	for pi, plan := range plans {
		value, err := plan.decode(results[pi])
		if err != nil {
			f.logger.Debug("field refresh skipped",
				zap.String("subject", plan.key.Subject.Hex()),
				zap.String("field", plan.key.Field),
				zap.Error(err),
			)
			continue
		}
		f.cache.Put(plan.key, plan.class, value, seq)
	}

	return trips, failedTrips
}

// notionalRaw converts a human-unit notional to raw units of an asset.
func notionalRaw(notional float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(notional), big.NewFloat(math.Pow10(int(decimals))))
	raw, _ := scaled.Int(nil)
	return raw
}
