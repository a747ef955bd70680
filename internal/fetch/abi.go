package fetch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABI fragments for the fixed set of swap primitives the venue
// categories expose. Parsed once, lazily.

const pairABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getReserves", "outputs": [{"type": "uint112"}, {"type": "uint112"}, {"type": "uint32"}], "stateMutability": "view", "type": "function"}
]`

const concentratedABIJSON = `[
  {"inputs": [], "name": "slot0", "outputs": [{"type": "uint160"}, {"type": "int24"}, {"type": "uint16"}, {"type": "uint16"}, {"type": "uint16"}, {"type": "uint8"}, {"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "liquidity", "outputs": [{"type": "uint128"}], "stateMutability": "view", "type": "function"}
]`

const stableABIJSON = `[
  {"inputs": [{"type": "uint256"}], "name": "coins", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}], "name": "balances", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "get_virtual_price", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "int128"}, {"type": "int128"}, {"type": "uint256"}], "name": "get_dy", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const weightedABIJSON = `[
  {"inputs": [{"type": "uint256"}], "name": "tokens", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}], "name": "balances", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}], "name": "normalizedWeight", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	abiOnce sync.Once
	abiErr  error

	pairABI         abi.ABI
	concentratedABI abi.ABI
	stableABI       abi.ABI
	weightedABI     abi.ABI
)

func loadABIs() error {
	abiOnce.Do(func() {
		parse := func(name, js string) abi.ABI {
			parsed, err := abi.JSON(strings.NewReader(js))
			if err != nil && abiErr == nil {
				abiErr = fmt.Errorf("parse %s abi: %w", name, err)
			}
			return parsed
		}
		pairABI = parse("pair", pairABIJSON)
		concentratedABI = parse("concentrated", concentratedABIJSON)
		stableABI = parse("stable", stableABIJSON)
		weightedABI = parse("weighted", weightedABIJSON)
	})
	return abiErr
}

func pack(parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func unpack(parsed abi.ABI, method string, data []byte) ([]interface{}, error) {
	values, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
