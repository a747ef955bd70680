// Package cache is the tiered state cache between the fetcher and everything
// else. Entries are keyed by (subject, field) and grouped into classes with
// independent freshness windows. The fetcher's refresh path is the only
// writer; readers work from immutable snapshots taken at scan start, so a
// refresh completing mid-scan only affects the next scan.
package cache

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Class identifies a freshness tier.
type Class string

const (
	// ClassStructural covers venue metadata: asset legs, decimals, fee.
	ClassStructural Class = "structural"
	// ClassDerived covers slow-moving derived state such as
	// invariant-growth price factors.
	ClassDerived Class = "derived"
	// ClassFast covers instantaneous price state. Fast entries are valid
	// only within the scan that fetched them; a stale price root directly
	// produces false opportunities.
	ClassFast Class = "fast"
	// ClassDiscovery covers which venues and secondary markets exist. It is
	// refreshed on the throttled discovery cadence, independent of the
	// price refresh cadence.
	ClassDiscovery Class = "discovery"
)

// Policy holds a class's TTL and staleness behavior.
type Policy struct {
	TTL        time.Duration
	ServeStale bool
}

// Config sets the configurable TTLs. Zero values fall back to the defaults
// (structural 5m, derived 60s).
type Config struct {
	StructuralTTL time.Duration
	DerivedTTL    time.Duration
}

// Key addresses one cached value.
type Key struct {
	Subject common.Address
	Field   string
}

// Entry is one cached value. Entries are replaced wholesale on refresh; a
// refresh of one field never touches sibling fields of the same subject.
type Entry struct {
	Value     any
	Class     Class
	FetchedAt time.Time
	Seq       uint64
}

// Cache is the long-lived shared state. Safe for concurrent use; writes come
// from a single refresh path.
type Cache struct {
	mu       sync.RWMutex
	policies map[Class]Policy
	data     map[Key]Entry
	now      func() time.Time
}

func New(cfg Config) *Cache {
	structuralTTL := cfg.StructuralTTL
	if structuralTTL <= 0 {
		structuralTTL = 5 * time.Minute
	}
	derivedTTL := cfg.DerivedTTL
	if derivedTTL <= 0 {
		derivedTTL = 60 * time.Second
	}

	return &Cache{
		policies: map[Class]Policy{
			ClassStructural: {TTL: structuralTTL, ServeStale: true},
			ClassDerived:    {TTL: derivedTTL, ServeStale: true},
			ClassFast:       {TTL: 0, ServeStale: false},
			ClassDiscovery:  {TTL: 0, ServeStale: true},
		},
		data: make(map[Key]Entry),
		now:  time.Now,
	}
}

// Put stores a value fetched during scan seq, replacing any prior entry for
// the key. Stored values must not be mutated afterwards.
func (c *Cache) Put(key Key, class Class, value any, seq uint64) {
	c.mu.Lock()
	c.data[key] = Entry{Value: value, Class: class, FetchedAt: c.now(), Seq: seq}
	c.mu.Unlock()
}

// NeedsRefresh reports whether the key is due for a refresh at scan seq.
// Fast-class keys are always due. Discovery keys are due only when absent;
// their cadence is driven by the caller.
func (c *Cache) NeedsRefresh(key Key, class Class) bool {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return true
	}
	switch class {
	case ClassFast:
		return true
	case ClassDiscovery:
		return false
	default:
		policy := c.policies[class]
		return c.now().Sub(entry.FetchedAt) > policy.TTL
	}
}

// Snapshot returns a consistent read-only view for scan seq. The snapshot
// holds its own entry map; later refreshes do not mutate it.
func (c *Cache) Snapshot(seq uint64) *Snapshot {
	c.mu.RLock()
	data := make(map[Key]Entry, len(c.data))
	for k, v := range c.data {
		data[k] = v
	}
	c.mu.RUnlock()

	return &Snapshot{
		seq:      seq,
		takenAt:  c.now(),
		policies: c.policies,
		data:     data,
	}
}

// Snapshot is a frozen view of the cache as of one scan.
type Snapshot struct {
	seq      uint64
	takenAt  time.Time
	policies map[Class]Policy
	data     map[Key]Entry
}

// Value returns the entry's value if it is servable for this snapshot's
// scan: fresh within its class TTL, fetched this scan for fast-class data,
// or stale with a serve-stale policy.
func (s *Snapshot) Value(key Key) (any, bool) {
	entry, ok := s.data[key]
	if !ok {
		return nil, false
	}

	policy := s.policies[entry.Class]
	switch entry.Class {
	case ClassFast:
		if entry.Seq != s.seq {
			return nil, false
		}
	case ClassDiscovery:
		// always servable once discovered
	default:
		if s.takenAt.Sub(entry.FetchedAt) > policy.TTL && !policy.ServeStale {
			return nil, false
		}
	}
	return entry.Value, true
}

// Seq returns the scan sequence this snapshot was taken for.
func (s *Snapshot) Seq() uint64 {
	return s.seq
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.data)
}
