package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"arbscope/internal/cache"
	"arbscope/internal/fetch"
	"arbscope/internal/model"
	"arbscope/internal/registry"
	"arbscope/internal/search"
	"arbscope/internal/storage"
	"arbscope/internal/validate"
)

type downReader struct{}

func (downReader) BatchRead(context.Context, []fetch.ReadRequest) ([]fetch.ReadResult, error) {
	return nil, errors.New("endpoint unreachable")
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	venue := common.BytesToAddress([]byte{0x70})
	doc := fmt.Sprintf(`{
	  "assets": [{"address": "%s", "symbol": "A", "decimals": 18, "category": "stable"}],
	  "venues": [{"address": "%s", "category": "constant-product", "fee_bps": 30}]
	}`, common.BytesToAddress([]byte{1}).Hex(), venue.Hex())

	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

func newTestScanner(t *testing.T, reader fetch.BatchReader, sinks []storage.Sink) *Scanner {
	t.Helper()
	reg := testRegistry(t)
	stateCache := cache.New(cache.Config{})
	fetcher, err := fetch.New(fetch.Config{}, reader, stateCache, reg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	searcher := search.NewSearcher(search.Config{
		BaseAssets: []common.Address{common.BytesToAddress([]byte{1})},
	}, nil)
	validator := validate.New(validate.Config{}, nil)

	return New(Options{}, fetcher, stateCache, reg, searcher, validator, sinks, nil)
}

func TestScanAbortsWhenSourceUnreachable(t *testing.T) {
	s := newTestScanner(t, downReader{}, nil)

	result := s.ScanOnce(context.Background())
	if result.Outcome != model.ScanAborted {
		t.Fatalf("expected aborted scan, got %q", result.Outcome)
	}
	if len(result.Opportunities) != 0 {
		t.Fatalf("aborted scan must not report opportunities")
	}
	if len(s.Opportunities()) != 0 {
		t.Fatalf("aborted scan must not publish a result")
	}
}

func TestAbortedScanClearsPublishedOpportunities(t *testing.T) {
	s := newTestScanner(t, downReader{}, nil)

	// A prior scan completed and published a validated opportunity.
	s.mu.Lock()
	s.latest = model.ScanResult{
		Sequence: 1,
		Outcome:  model.ScanOK,
		Opportunities: []model.Opportunity{
			{Kind: model.KindCycle, Valid: true},
		},
	}
	s.mu.Unlock()

	result := s.ScanOnce(context.Background())
	s.publish(context.Background(), result)

	if len(s.Opportunities()) != 0 {
		t.Fatalf("aborted scan must not replay the previous scan's opportunities")
	}
	latest := s.Latest()
	if latest.Outcome != model.ScanAborted {
		t.Fatalf("latest must record the abort, got %q", latest.Outcome)
	}
	if latest.Sequence != result.Sequence {
		t.Fatalf("latest must be the aborted scan: %d vs %d", latest.Sequence, result.Sequence)
	}
}

func TestScanSequenceAdvances(t *testing.T) {
	s := newTestScanner(t, downReader{}, nil)

	first := s.ScanOnce(context.Background())
	second := s.ScanOnce(context.Background())
	if second.Sequence != first.Sequence+1 {
		t.Fatalf("sequence must advance: %d then %d", first.Sequence, second.Sequence)
	}
}

type captureSink struct {
	results []model.ScanResult
}

func (c *captureSink) PutScanResult(_ context.Context, result model.ScanResult) error {
	c.results = append(c.results, result)
	return nil
}

func TestPublishFansOutToSinks(t *testing.T) {
	sink := &captureSink{}
	s := newTestScanner(t, downReader{}, []storage.Sink{sink})

	result := s.ScanOnce(context.Background())
	s.publish(context.Background(), result)

	if len(sink.results) != 1 {
		t.Fatalf("expected 1 sink write, got %d", len(sink.results))
	}
	if sink.results[0].Outcome != model.ScanAborted {
		t.Fatalf("sink should record the aborted outcome")
	}
}
