// Package graph builds the valuation graph for one scan: assets are nodes,
// priced venue directions are edges. The graph is rebuilt from scratch each
// scan from the snapshot's venues and is immutable afterwards.
package graph

import (
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arbscope/internal/model"
	"arbscope/internal/quote"
)

// Edge is one tradable direction through a venue. Weight is the negative log
// of the marginal rate, so a cycle with negative total weight multiplies out
// above 1.
type Edge struct {
	Venue   *model.Venue
	From    common.Address
	To      common.Address
	FromIdx int
	ToIdx   int
	Rate    float64
	Weight  float64
}

// Graph is the per-scan valuation graph.
type Graph struct {
	Nodes []common.Address
	Edges []Edge

	index map[common.Address]int
	out   map[common.Address][]int
}

// Stats summarizes one build for the scan log line.
type Stats struct {
	Nodes        int
	Edges        int
	EdgesSkipped int
}

// Build constructs the graph from the scan's priced venues. Each venue
// contributes one edge attempt per ordered asset pair; a direction whose rate
// cannot be computed is skipped without affecting the opposite direction.
// Output is deterministic: the same venues produce the same node and edge
// order.
func Build(venues []*model.Venue, logger *zap.Logger) (*Graph, Stats) {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Graph{
		index: make(map[common.Address]int),
		out:   make(map[common.Address][]int),
	}
	var stats Stats

	for _, v := range venues {
		for i := range v.Assets {
			for j := range v.Assets {
				if i == j {
					continue
				}
				rate, err := quote.Rate(v, i, j)
				if err != nil || rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
					stats.EdgesSkipped++
					logger.Debug("edge skipped",
						zap.String("venue", v.Address.Hex()),
						zap.Int("in", i),
						zap.Int("out", j),
						zap.Error(err),
					)
					continue
				}
				g.addEdge(Edge{
					Venue:   v,
					From:    v.Assets[i],
					To:      v.Assets[j],
					FromIdx: i,
					ToIdx:   j,
					Rate:    rate,
					Weight:  -math.Log(rate),
				})
			}
		}
	}

	g.sortNodes()
	stats.Nodes = len(g.Nodes)
	stats.Edges = len(g.Edges)
	return g, stats
}

func (g *Graph) addEdge(e Edge) {
	for _, addr := range []common.Address{e.From, e.To} {
		if _, ok := g.index[addr]; !ok {
			g.index[addr] = len(g.Nodes)
			g.Nodes = append(g.Nodes, addr)
		}
	}
	g.out[e.From] = append(g.out[e.From], len(g.Edges))
	g.Edges = append(g.Edges, e)
}

// sortNodes fixes node order by address so downstream iteration is stable
// regardless of venue input order.
func (g *Graph) sortNodes() {
	sort.Slice(g.Nodes, func(i, j int) bool {
		return g.Nodes[i].Hex() < g.Nodes[j].Hex()
	})
	for i, addr := range g.Nodes {
		g.index[addr] = i
	}
}

// OutEdges returns the edges leaving the asset, in insertion order.
func (g *Graph) OutEdges(from common.Address) []Edge {
	idxs := g.out[from]
	edges := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		edges = append(edges, g.Edges[i])
	}
	return edges
}

// HasNode reports whether the asset appears in the graph.
func (g *Graph) HasNode(addr common.Address) bool {
	_, ok := g.index[addr]
	return ok
}
