// Package scan runs the periodic detection pipeline: refresh, snapshot,
// assemble, build, search, validate, publish. One scan is one consistent
// pass over a single snapshot; nothing carries over between scans except the
// cache.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arbscope/internal/cache"
	"arbscope/internal/fetch"
	"arbscope/internal/graph"
	"arbscope/internal/model"
	"arbscope/internal/registry"
	"arbscope/internal/search"
	"arbscope/internal/storage"
	"arbscope/internal/validate"
)

// Options sets the scan cadence and budget.
type Options struct {
	// TickInterval is the time between scan starts.
	TickInterval time.Duration
	// Budget is the wall-clock limit for one scan. A scan that overruns is
	// abandoned whole; partial results are never published.
	Budget time.Duration
	// Nav configures valuation-gap detection.
	Nav search.NavConfig
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.TickInterval <= 0 {
		opts.TickInterval = 3 * time.Second
	}
	if opts.Budget <= 0 {
		opts.Budget = 2 * time.Second
	}
	return opts
}

// Scanner owns the scan loop and the latest published result.
type Scanner struct {
	opts      Options
	fetcher   *fetch.Fetcher
	cache     *cache.Cache
	reg       *registry.Registry
	searcher  *search.Searcher
	validator *validate.Validator
	sinks     []storage.Sink
	logger    *zap.Logger

	mu     sync.RWMutex
	seq    uint64
	latest model.ScanResult
}

func New(opts Options, fetcher *fetch.Fetcher, stateCache *cache.Cache, reg *registry.Registry, searcher *search.Searcher, validator *validate.Validator, sinks []storage.Sink, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		opts:      opts.withDefaults(),
		fetcher:   fetcher,
		cache:     stateCache,
		reg:       reg,
		searcher:  searcher,
		validator: validator,
		sinks:     sinks,
		logger:    logger,
	}
}

// Opportunities returns the latest scan's validated opportunities. After an
// aborted scan it is empty until a scan completes again; opportunities are
// never replayed across scans.
func (s *Scanner) Opportunities() []model.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Opportunity(nil), s.latest.Opportunities...)
}

// Latest returns the most recent scan result.
func (s *Scanner) Latest() model.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Run executes scans on the configured cadence until the context ends.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		result := s.ScanOnce(ctx)
		s.publish(ctx, result)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanOnce runs one complete scan within the wall-clock budget.
func (s *Scanner) ScanOnce(ctx context.Context) model.ScanResult {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	start := time.Now()
	scanCtx, cancel := context.WithTimeout(ctx, s.opts.Budget)
	defer cancel()

	result := model.ScanResult{Sequence: seq, Outcome: model.ScanOK}

	trips, err := s.fetcher.Refresh(scanCtx, seq)
	result.RoundTrips = trips
	if err != nil {
		if errors.Is(err, fetch.ErrSystemic) {
			s.logger.Warn("scan aborted, data source unreachable", zap.Uint64("seq", seq))
		} else {
			s.logger.Warn("scan aborted during refresh", zap.Uint64("seq", seq), zap.Error(err))
		}
		result.Outcome = model.ScanAborted
		return result
	}

	snap := s.cache.Snapshot(seq)
	venues, skipped := fetch.AssembleVenues(snap, s.reg, s.logger)
	result.VenuesPriced = len(venues)
	result.VenuesSkipped = skipped

	g, stats := graph.Build(venues, s.logger)
	result.Edges = stats.Edges

	if scanCtx.Err() != nil {
		result.Outcome = model.ScanAborted
		return result
	}

	candidates := s.searcher.FindCycles(g)
	gaps := s.searcher.FindValuationGaps(g, venues, s.shareMap(), s.opts.Nav, s.priceFunc(g), s.reg.Asset)
	candidates = append(candidates, gaps...)

	if scanCtx.Err() != nil {
		// Over budget: the snapshot's fast state is no longer trustworthy,
		// so nothing found this scan is published.
		result.Outcome = model.ScanAborted
		return result
	}

	result.Opportunities = s.validator.Validate(candidates, venues)

	s.logger.Info("scan complete",
		zap.Uint64("seq", seq),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("venues_priced", result.VenuesPriced),
		zap.Int("venues_skipped", result.VenuesSkipped),
		zap.Int("edges", result.Edges),
		zap.Int("edges_skipped", stats.EdgesSkipped),
		zap.Int("round_trips", result.RoundTrips),
		zap.Int("candidates", len(candidates)),
		zap.Int("opportunities", len(result.Opportunities)),
	)
	return result
}

// publish stores the result for Opportunities() and fans it out to the
// sinks. Aborted results are published too: they carry zero opportunities, so
// a consumer polling after a failed tick sees nothing rather than the prior
// scan's list. Sink failures are logged, never escalated.
func (s *Scanner) publish(ctx context.Context, result model.ScanResult) {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()

	if len(s.sinks) == 0 {
		return
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for _, sink := range s.sinks {
		sink := sink
		eg.Go(func() error {
			return sink.PutScanResult(egCtx, result)
		})
	}
	if err := eg.Wait(); err != nil {
		s.logger.Warn("sink write failed", zap.Uint64("seq", result.Sequence), zap.Error(err))
	}
}

// shareMap maps stable venue address to the pooled-share asset it mints.
func (s *Scanner) shareMap() map[common.Address]common.Address {
	shares := make(map[common.Address]common.Address)
	for _, meta := range s.reg.Venues() {
		if meta.PooledShare != (common.Address{}) {
			shares[meta.Address] = meta.PooledShare
		}
	}
	return shares
}

// priceFunc prices an asset in value units off the scan's own graph: the best
// direct quote into a registered stable asset. Assets with no such market are
// unpriceable this scan.
func (s *Scanner) priceFunc(g *graph.Graph) search.PriceFunc {
	return func(asset common.Address) (float64, bool) {
		best := 0.0
		for _, edge := range g.OutEdges(asset) {
			target, ok := s.reg.Asset(edge.To)
			if !ok || target.Category != model.AssetStable {
				continue
			}
			if edge.Rate > best {
				best = edge.Rate
			}
		}
		if best <= 0 {
			return 0, false
		}
		return best, true
	}
}
