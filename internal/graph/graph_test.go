package graph

import (
	"math"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"arbscope/internal/model"
)

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func raw(human float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(human), big.NewFloat(math.Pow10(decimals)))
	out, _ := scaled.Int(nil)
	return out
}

func cpVenue(venue, a, b byte, reserveA, reserveB float64) *model.Venue {
	return &model.Venue{
		Address:  addr(venue),
		Category: model.ConstantProduct,
		Assets:   []common.Address{addr(a), addr(b)},
		Decimals: []uint8{18, 18},
		FeeBps:   30,
		State: model.VenueState{
			Reserves: []*big.Int{raw(reserveA, 18), raw(reserveB, 18)},
		},
	}
}

func TestBuildBothDirections(t *testing.T) {
	g, stats := Build([]*model.Venue{cpVenue(0x20, 1, 2, 100, 200)}, nil)

	if stats.Nodes != 2 || stats.Edges != 2 {
		t.Fatalf("expected 2 nodes and 2 edges, got %d/%d", stats.Nodes, stats.Edges)
	}
	for _, e := range g.Edges {
		if math.Abs(e.Weight+math.Log(e.Rate)) > 1e-12 {
			t.Fatalf("edge weight must be -log(rate): %v vs %v", e.Weight, -math.Log(e.Rate))
		}
	}
}

func TestBuildSkipsFailedDirectionIndependently(t *testing.T) {
	// A stable venue with a single probe direction prices one way only.
	v := &model.Venue{
		Address:  addr(0x21),
		Category: model.StableInvariant,
		Assets:   []common.Address{addr(1), addr(2)},
		Decimals: []uint8{6, 6},
		State: model.VenueState{
			Reserves: []*big.Int{raw(1000, 6), raw(1000, 6)},
			Probes: []model.ProbeQuote{{
				InIndex: 0, OutIndex: 1,
				AmountIn: raw(100, 6), AmountOut: raw(99.9, 6),
			}},
		},
	}

	g, stats := Build([]*model.Venue{v}, nil)
	if stats.Edges != 1 || stats.EdgesSkipped != 1 {
		t.Fatalf("expected 1 edge and 1 skip, got %d/%d", stats.Edges, stats.EdgesSkipped)
	}
	if g.Edges[0].From != addr(1) || g.Edges[0].To != addr(2) {
		t.Fatalf("surviving edge has wrong direction: %+v", g.Edges[0])
	}
}

func TestBuildDeterministic(t *testing.T) {
	venues := []*model.Venue{
		cpVenue(0x22, 3, 1, 50, 100),
		cpVenue(0x23, 1, 2, 100, 200),
	}

	g1, _ := Build(venues, nil)
	g2, _ := Build(venues, nil)

	if !reflect.DeepEqual(g1.Nodes, g2.Nodes) {
		t.Fatalf("node order must be stable across builds")
	}
	if len(g1.Edges) != len(g2.Edges) {
		t.Fatalf("edge count differs between builds")
	}
	for i := range g1.Edges {
		if g1.Edges[i].Venue.Address != g2.Edges[i].Venue.Address ||
			g1.Edges[i].From != g2.Edges[i].From ||
			g1.Edges[i].To != g2.Edges[i].To {
			t.Fatalf("edge %d differs between builds", i)
		}
	}
}

func TestOutEdges(t *testing.T) {
	g, _ := Build([]*model.Venue{
		cpVenue(0x24, 1, 2, 100, 200),
		cpVenue(0x25, 1, 3, 100, 300),
	}, nil)

	out := g.OutEdges(addr(1))
	if len(out) != 2 {
		t.Fatalf("expected 2 out edges from shared asset, got %d", len(out))
	}
	if !g.HasNode(addr(3)) {
		t.Fatalf("expected asset 3 in graph")
	}
}
