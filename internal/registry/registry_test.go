package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

const validDoc = `{
  "assets": [
    {"address": "0x0000000000000000000000000000000000000001", "symbol": "USDA", "decimals": 6, "category": "stable"},
    {"address": "0x0000000000000000000000000000000000000002", "symbol": "WETH", "decimals": 18, "category": "volatile"}
  ],
  "venues": [
    {"address": "0x0000000000000000000000000000000000000010", "category": "constant-product", "fee_bps": 30},
    {"address": "0x0000000000000000000000000000000000000011", "category": "stable-invariant", "fee_bps": 4, "disabled": true}
  ]
}`

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), validDoc)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reg.Assets()) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(reg.Assets()))
	}
	asset, ok := reg.Asset(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	if !ok || asset.Decimals != 6 {
		t.Fatalf("asset lookup failed: %+v", asset)
	}
}

func TestDisabledVenuesDropped(t *testing.T) {
	path := writeFile(t, t.TempDir(), validDoc)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	venues := reg.Venues()
	if len(venues) != 1 {
		t.Fatalf("expected the disabled venue dropped, got %d venues", len(venues))
	}
	if venues[0].Address != common.HexToAddress("0x0000000000000000000000000000000000000010") {
		t.Fatalf("wrong venue survived: %s", venues[0].Address.Hex())
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"bad asset address", `{"assets": [{"address": "nope", "symbol": "X", "decimals": 6, "category": "stable"}]}`},
		{"duplicate asset", `{"assets": [
			{"address": "0x0000000000000000000000000000000000000001", "symbol": "A", "decimals": 6, "category": "stable"},
			{"address": "0x0000000000000000000000000000000000000001", "symbol": "B", "decimals": 6, "category": "stable"}
		]}`},
		{"unknown venue category", `{"venues": [{"address": "0x0000000000000000000000000000000000000010", "category": "order-book"}]}`},
		{"duplicate venue", `{"venues": [
			{"address": "0x0000000000000000000000000000000000000010", "category": "constant-product"},
			{"address": "0x0000000000000000000000000000000000000010", "category": "weighted"}
		]}`},
		{"not json", `not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tc.doc)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestReloadKeepsOldViewOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, validDoc)

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writeFile(t, dir, `broken`)
	if err := reg.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if len(reg.Assets()) != 2 {
		t.Fatalf("failed reload must keep the previous view")
	}
}
