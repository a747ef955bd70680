package model

import "github.com/ethereum/go-ethereum/common"

// AssetCategory tags an asset with its broad behavior class.
type AssetCategory string

const (
	AssetStable       AssetCategory = "stable"
	AssetYieldBearing AssetCategory = "yield-bearing"
	AssetVolatile     AssetCategory = "volatile"
	AssetPooledShare  AssetCategory = "pooled-share"
)

// Asset is a tradable token. Immutable once registered.
type Asset struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Category AssetCategory  `json:"category"`
}
