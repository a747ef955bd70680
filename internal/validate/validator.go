// Package validate re-checks candidate opportunities against the same scan
// snapshot before they are surfaced. Validation only invalidates; it never
// adjusts a candidate to make it pass.
package validate

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arbscope/internal/model"
	"arbscope/internal/quote"
)

// Config sets the validation gates.
type Config struct {
	// QuoteToleranceBps is the allowed relative deviation between a leg's
	// proposed output and the exact re-quote.
	QuoteToleranceBps float64
	// GrowthFactorMin and GrowthFactorMax bound the plausible range of a
	// stable venue's invariant-growth factor. Min accepts at equality;
	// anything strictly below rejects. Max is inclusive.
	GrowthFactorMin float64
	GrowthFactorMax float64
	// MinVenueLiquidity and MaxTradeFraction mirror the search gates and are
	// re-applied on the exact amounts.
	MinVenueLiquidity float64
	MaxTradeFraction  float64
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.QuoteToleranceBps <= 0 {
		cfg.QuoteToleranceBps = 5
	}
	if cfg.GrowthFactorMin <= 0 {
		cfg.GrowthFactorMin = 1.0
	}
	if cfg.GrowthFactorMax <= 0 {
		cfg.GrowthFactorMax = 1.5
	}
	if cfg.MaxTradeFraction <= 0 {
		cfg.MaxTradeFraction = 0.10
	}
	return cfg
}

// Validator checks candidates against the scan's venue set.
type Validator struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg.withDefaults(), logger: logger}
}

// Validate marks each candidate Valid or not, in place, and returns the
// candidates that passed. Venues are the same objects the search priced, so
// re-quotes run against identical state.
func (v *Validator) Validate(candidates []model.Opportunity, venues []*model.Venue) []model.Opportunity {
	byAddr := make(map[common.Address]*model.Venue, len(venues))
	for _, venue := range venues {
		byAddr[venue.Address] = venue
	}

	valid := make([]model.Opportunity, 0, len(candidates))
	for i := range candidates {
		candidates[i].Valid = v.validateOne(&candidates[i], byAddr)
		if candidates[i].Valid {
			valid = append(valid, candidates[i])
		}
	}
	return valid
}

func (v *Validator) validateOne(opp *model.Opportunity, venues map[common.Address]*model.Venue) bool {
	if opp.Kind == model.KindValuationGap {
		source, ok := venues[opp.SourceVenue]
		if !ok {
			v.reject(opp, "source venue absent from scan")
			return false
		}
		if !v.growthFactorPlausible(source) {
			v.reject(opp, "growth factor out of range")
			return false
		}
	}
	for _, leg := range opp.Legs {
		venue, ok := venues[leg.Venue]
		if !ok {
			v.reject(opp, "venue absent from scan")
			return false
		}
		if !v.validateLeg(opp, leg, venue) {
			return false
		}
		if venue.Category == model.StableInvariant && !v.growthFactorPlausible(venue) {
			v.reject(opp, "growth factor out of range")
			return false
		}
	}
	return true
}

func (v *Validator) validateLeg(opp *model.Opportunity, leg model.Leg, venue *model.Venue) bool {
	inIdx := venue.AssetIndex(leg.AssetIn)
	outIdx := venue.AssetIndex(leg.AssetOut)
	if inIdx < 0 || outIdx < 0 {
		v.reject(opp, "leg assets not held by venue")
		return false
	}

	exact, err := quote.AmountOut(venue, inIdx, outIdx, leg.AmountIn)
	if err != nil || exact <= 0 {
		v.reject(opp, "re-quote failed")
		return false
	}
	deviation := math.Abs(exact-leg.AmountOut) / exact * 10000
	if deviation > v.cfg.QuoteToleranceBps {
		v.reject(opp, "re-quote deviation over tolerance")
		return false
	}

	depth, err := quote.DepthOut(venue, outIdx)
	if err != nil {
		v.reject(opp, "depth unavailable")
		return false
	}
	if depth < v.cfg.MinVenueLiquidity {
		v.reject(opp, "venue below liquidity floor")
		return false
	}
	if exact >= depth*v.cfg.MaxTradeFraction {
		v.reject(opp, "trade consumes too much depth")
		return false
	}
	return true
}

// growthFactorPlausible checks the 1e18-scaled invariant-growth factor
// against the configured range. This gate is about plausibility of the value
// itself, not freshness; it applies however old the cached factor is.
func (v *Validator) growthFactorPlausible(venue *model.Venue) bool {
	if venue.State.VirtualPrice == nil {
		// Swap-only candidates do not need the growth factor.
		return true
	}
	vp := normalize18(venue.State.VirtualPrice)
	return vp >= v.cfg.GrowthFactorMin && vp <= v.cfg.GrowthFactorMax
}

func normalize18(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e18)).Float64()
	return f
}

func (v *Validator) reject(opp *model.Opportunity, reason string) {
	v.logger.Debug("candidate rejected",
		zap.String("kind", string(opp.Kind)),
		zap.String("path", opp.PathKey()),
		zap.String("reason", reason),
	)
}
