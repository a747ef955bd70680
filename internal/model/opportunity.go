package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// OpportunityKind distinguishes the two detection modes.
type OpportunityKind string

const (
	KindCycle        OpportunityKind = "cycle"
	KindValuationGap OpportunityKind = "valuation-gap"
)

// Leg is one directed trade through one venue. Amounts are decimal-normalized
// (human units of the respective asset).
type Leg struct {
	Venue     common.Address `json:"venue"`
	AssetIn   common.Address `json:"asset_in"`
	AssetOut  common.Address `json:"asset_out"`
	AmountIn  float64        `json:"amount_in"`
	AmountOut float64        `json:"amount_out"`
	Rate      float64        `json:"rate"`
}

// Opportunity is a candidate profitable cycle or cross-venue valuation gap.
// Lives for one scan unless explicitly written to a sink.
type Opportunity struct {
	Kind OpportunityKind `json:"kind"`
	Legs []Leg           `json:"legs"`

	// GrossBps is the return before costs, in basis points over breakeven.
	GrossBps float64 `json:"gross_bps"`
	// CostBps is the gas allowance charged against the gross return.
	CostBps float64 `json:"cost_bps"`
	// NetBps is the reported margin: GrossBps - CostBps for cycles; for
	// valuation gaps the discount itself, with the cost folded into the
	// acceptance threshold instead.
	NetBps float64 `json:"net_bps"`

	// Valid is set by the validator after exact re-quoting.
	Valid bool `json:"valid"`

	// DerivedValue and QuotedValue are populated for valuation-gap
	// opportunities (fair value vs. best market quote, in value units).
	// SourceVenue names the venue whose state derived the fair value.
	DerivedValue float64        `json:"derived_value,omitempty"`
	QuotedValue  float64        `json:"quoted_value,omitempty"`
	SourceVenue  common.Address `json:"source_venue,omitempty"`
}

// PathKey is a stable string identity for the opportunity's venue/asset path,
// used for deduplication and deterministic tie-breaking.
func (o *Opportunity) PathKey() string {
	parts := make([]string, 0, len(o.Legs)*2)
	for _, leg := range o.Legs {
		parts = append(parts, leg.Venue.Hex(), leg.AssetOut.Hex())
	}
	return string(o.Kind) + ":" + strings.Join(parts, ">")
}

// String renders a short human-readable summary.
func (o *Opportunity) String() string {
	return fmt.Sprintf("%s legs=%d net=%.1fbps valid=%t", o.Kind, len(o.Legs), o.NetBps, o.Valid)
}

// ScanOutcome distinguishes a clean empty scan from one that could not run.
type ScanOutcome string

const (
	ScanOK      ScanOutcome = "ok"
	ScanAborted ScanOutcome = "aborted"
)

// ScanResult is the per-scan output handed to collaborators.
type ScanResult struct {
	Sequence      uint64        `json:"sequence"`
	Outcome       ScanOutcome   `json:"outcome"`
	Opportunities []Opportunity `json:"opportunities"`
	VenuesPriced  int           `json:"venues_priced"`
	VenuesSkipped int           `json:"venues_skipped"`
	Edges         int           `json:"edges"`
	RoundTrips    int           `json:"round_trips"`
}
