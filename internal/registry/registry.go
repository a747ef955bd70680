// Package registry loads the static asset and venue registry. It is read
// once per process lifetime and reloadable on an explicit signal. Venue
// asset ordering is NOT part of the registry: it is discovered from each
// venue at structural-refresh time.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"arbscope/internal/model"
)

// File is the on-disk registry document.
type File struct {
	Assets []assetEntry `json:"assets"`
	Venues []venueEntry `json:"venues"`
}

type assetEntry struct {
	Address  string              `json:"address"`
	Symbol   string              `json:"symbol"`
	Decimals uint8               `json:"decimals"`
	Category model.AssetCategory `json:"category"`
}

type venueEntry struct {
	Address     string              `json:"address"`
	Category    model.VenueCategory `json:"category"`
	FeeBps      uint32              `json:"fee_bps"`
	Disabled    bool                `json:"disabled"`
	PooledShare string              `json:"pooled_share"`
}

// Registry holds the loaded assets and venue metadata.
type Registry struct {
	mu     sync.RWMutex
	path   string
	assets []model.Asset
	byAddr map[common.Address]model.Asset
	venues []model.VenueMeta
}

// Load reads and validates the registry file.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file, replacing the in-memory view on
// success and leaving it untouched on failure.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse registry: %w", err)
	}

	assets, byAddr, err := parseAssets(file.Assets)
	if err != nil {
		return err
	}
	venues, err := parseVenues(file.Venues)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.assets = assets
	r.byAddr = byAddr
	r.venues = venues
	r.mu.Unlock()

	return nil
}

func parseAssets(entries []assetEntry) ([]model.Asset, map[common.Address]model.Asset, error) {
	assets := make([]model.Asset, 0, len(entries))
	byAddr := make(map[common.Address]model.Asset, len(entries))
	for i, entry := range entries {
		if !common.IsHexAddress(entry.Address) {
			return nil, nil, fmt.Errorf("asset %d: invalid address %q", i, entry.Address)
		}
		addr := common.HexToAddress(entry.Address)
		if _, ok := byAddr[addr]; ok {
			return nil, nil, fmt.Errorf("asset %d: duplicate address %s", i, addr.Hex())
		}
		asset := model.Asset{
			Address:  addr,
			Symbol:   entry.Symbol,
			Decimals: entry.Decimals,
			Category: entry.Category,
		}
		assets = append(assets, asset)
		byAddr[addr] = asset
	}
	return assets, byAddr, nil
}

func parseVenues(entries []venueEntry) ([]model.VenueMeta, error) {
	venues := make([]model.VenueMeta, 0, len(entries))
	seen := make(map[common.Address]struct{}, len(entries))
	for i, entry := range entries {
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("venue %d: invalid address %q", i, entry.Address)
		}
		if !entry.Category.Valid() {
			return nil, fmt.Errorf("venue %d: unknown category %q", i, entry.Category)
		}
		addr := common.HexToAddress(entry.Address)
		if _, ok := seen[addr]; ok {
			return nil, fmt.Errorf("venue %d: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}

		meta := model.VenueMeta{
			Address:  addr,
			Category: entry.Category,
			FeeBps:   entry.FeeBps,
			Disabled: entry.Disabled,
		}
		if entry.PooledShare != "" {
			if !common.IsHexAddress(entry.PooledShare) {
				return nil, fmt.Errorf("venue %d: invalid pooled share %q", i, entry.PooledShare)
			}
			meta.PooledShare = common.HexToAddress(entry.PooledShare)
		}
		venues = append(venues, meta)
	}
	return venues, nil
}

// Assets returns the registered assets in registry order.
func (r *Registry) Assets() []model.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Asset(nil), r.assets...)
}

// Asset looks up one asset by address.
func (r *Registry) Asset(addr common.Address) (model.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.byAddr[addr]
	return asset, ok
}

// Venues returns enabled venue metadata in registry order. Disabled venues
// (delisted, duplicate, invalid) are dropped here, which is the only path by
// which a venue leaves the system.
func (r *Registry) Venues() []model.VenueMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	venues := make([]model.VenueMeta, 0, len(r.venues))
	for _, v := range r.venues {
		if !v.Disabled {
			venues = append(venues, v)
		}
	}
	return venues
}
