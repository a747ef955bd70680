package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbscope/internal/model"
)

// Store provides Postgres persistence for scan output.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutScanResult records the scan summary and its validated opportunities in
// one batch.
func (s *Store) PutScanResult(ctx context.Context, result model.ScanResult) error {
	batch := &pgx.Batch{}

	batch.Queue(`
		INSERT INTO scans (
			sequence, outcome, venues_priced, venues_skipped, edges, round_trips, opportunity_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (sequence) DO NOTHING
	`,
		int64(result.Sequence),
		string(result.Outcome),
		result.VenuesPriced,
		result.VenuesSkipped,
		result.Edges,
		result.RoundTrips,
		len(result.Opportunities),
	)

	for _, opp := range result.Opportunities {
		legs, err := legsJSON(opp)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO opportunities (
				scan_sequence, kind, path_key, legs, gross_bps, cost_bps, net_bps,
				derived_value, quoted_value, source_venue, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (scan_sequence, path_key) DO NOTHING
		`,
			int64(result.Sequence),
			string(opp.Kind),
			opp.PathKey(),
			legs,
			opp.GrossBps,
			opp.CostBps,
			opp.NetBps,
			opp.DerivedValue,
			opp.QuotedValue,
			opp.SourceVenue.Hex(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(result.Opportunities)+1; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func legsJSON(opp model.Opportunity) ([]byte, error) {
	data, err := json.Marshal(opp.Legs)
	if err != nil {
		return nil, fmt.Errorf("marshal legs: %w", err)
	}
	return data, nil
}
