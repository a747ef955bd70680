// Package search walks the valuation graph for profitable round trips and
// cross-venue valuation gaps. It proposes candidates; the validator has the
// final word.
package search

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arbscope/internal/graph"
	"arbscope/internal/model"
	"arbscope/internal/quote"
)

// Config bounds the search and sets the acceptance thresholds.
type Config struct {
	// BaseAssets are the cycle start/end points.
	BaseAssets []common.Address
	// MaxHops caps cycle length in legs.
	MaxHops int
	// MinMarginBps is the strict lower bound on net cycle margin.
	MinMarginBps float64
	// GasBps is the flat gas allowance charged per opportunity.
	GasBps float64
	// Notional is the candidate trade size in base-asset human units.
	Notional float64
	// MinVenueLiquidity is the floor, in output-asset human units, under
	// which a venue's depth disqualifies a leg.
	MinVenueLiquidity float64
	// MaxTradeFraction is the largest share of a leg's output-side depth a
	// candidate may consume. A fraction at or above it rejects.
	MaxTradeFraction float64
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.MaxHops < 2 {
		cfg.MaxHops = 4
	}
	if cfg.MaxTradeFraction <= 0 {
		cfg.MaxTradeFraction = 0.10
	}
	if cfg.Notional <= 0 {
		cfg.Notional = 1
	}
	return cfg
}

// Searcher enumerates candidate opportunities on one scan's graph.
type Searcher struct {
	cfg    Config
	logger *zap.Logger
}

func NewSearcher(cfg Config, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{cfg: cfg.withDefaults(), logger: logger}
}

// FindCycles enumerates closed walks from each base asset up to MaxHops legs,
// materializes leg amounts at the configured notional, and keeps walks whose
// net margin strictly clears the threshold. Results are deduplicated by
// canonical path and ranked by net margin, then fewer legs, then path key.
func (s *Searcher) FindCycles(g *graph.Graph) []model.Opportunity {
	seen := make(map[string]struct{})
	var found []model.Opportunity

	for _, base := range s.cfg.BaseAssets {
		if !g.HasNode(base) {
			continue
		}
		walk := walkState{
			base:      base,
			visited:   map[common.Address]struct{}{},
			venueUsed: map[common.Address]struct{}{},
		}
		s.extend(g, base, &walk, seen, &found)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].NetBps != found[j].NetBps {
			return found[i].NetBps > found[j].NetBps
		}
		if len(found[i].Legs) != len(found[j].Legs) {
			return len(found[i].Legs) < len(found[j].Legs)
		}
		return found[i].PathKey() < found[j].PathKey()
	})
	return found
}

type walkState struct {
	base      common.Address
	edges     []graph.Edge
	visited   map[common.Address]struct{}
	venueUsed map[common.Address]struct{}
}

func (s *Searcher) extend(g *graph.Graph, at common.Address, walk *walkState, seen map[string]struct{}, found *[]model.Opportunity) {
	if len(walk.edges) >= s.cfg.MaxHops {
		return
	}
	for _, edge := range g.OutEdges(at) {
		if _, used := walk.venueUsed[edge.Venue.Address]; used {
			continue
		}
		if edge.To == walk.base {
			if len(walk.edges) >= 1 {
				walk.edges = append(walk.edges, edge)
				s.consider(walk, seen, found)
				walk.edges = walk.edges[:len(walk.edges)-1]
			}
			continue
		}
		if _, visited := walk.visited[edge.To]; visited {
			continue
		}
		walk.edges = append(walk.edges, edge)
		walk.visited[edge.To] = struct{}{}
		walk.venueUsed[edge.Venue.Address] = struct{}{}
		s.extend(g, edge.To, walk, seen, found)
		delete(walk.venueUsed, edge.Venue.Address)
		delete(walk.visited, edge.To)
		walk.edges = walk.edges[:len(walk.edges)-1]
	}
}

// consider materializes the walk at the configured notional and applies the
// margin, liquidity floor, and depth-fraction gates.
func (s *Searcher) consider(walk *walkState, seen map[string]struct{}, found *[]model.Opportunity) {
	key := canonicalKey(walk.edges)
	if _, dup := seen[key]; dup {
		return
	}

	legs := make([]model.Leg, len(walk.edges))
	amount := s.cfg.Notional
	for i, edge := range walk.edges {
		out, err := quote.AmountOut(edge.Venue, edge.FromIdx, edge.ToIdx, amount)
		if err != nil || out <= 0 {
			return
		}
		depth, err := quote.DepthOut(edge.Venue, edge.ToIdx)
		if err != nil {
			return
		}
		if depth < s.cfg.MinVenueLiquidity {
			return
		}
		if out >= depth*s.cfg.MaxTradeFraction {
			return
		}
		legs[i] = model.Leg{
			Venue:     edge.Venue.Address,
			AssetIn:   edge.From,
			AssetOut:  edge.To,
			AmountIn:  amount,
			AmountOut: out,
			Rate:      out / amount,
		}
		amount = out
	}

	grossBps := (amount/s.cfg.Notional - 1) * 10000
	netBps := grossBps - s.cfg.GasBps
	if netBps <= s.cfg.MinMarginBps {
		return
	}

	seen[key] = struct{}{}
	*found = append(*found, model.Opportunity{
		Kind:     model.KindCycle,
		Legs:     legs,
		GrossBps: grossBps,
		CostBps:  s.cfg.GasBps,
		NetBps:   netBps,
	})

	s.logger.Debug("cycle candidate",
		zap.Float64("gross_bps", grossBps),
		zap.Float64("net_bps", netBps),
		zap.Int("legs", len(legs)),
	)
}

// canonicalKey rotates the walk so it starts at its smallest venue address,
// making the same cycle found from different base assets collapse to one key.
func canonicalKey(edges []graph.Edge) string {
	best := 0
	for i := 1; i < len(edges); i++ {
		if edges[i].Venue.Address.Hex() < edges[best].Venue.Address.Hex() {
			best = i
		}
	}
	key := ""
	for i := range edges {
		e := edges[(best+i)%len(edges)]
		key += e.Venue.Address.Hex() + ":" + e.From.Hex() + ">"
	}
	return key
}
