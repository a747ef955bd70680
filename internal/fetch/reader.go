// Package fetch is the remote state fetcher: it turns the per-scan refresh
// plan into the minimum number of batched read round trips, tolerates
// per-request failure, and writes decoded values into the tiered cache.
package fetch

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ReadRequest is one independent contract read.
type ReadRequest struct {
	To   common.Address
	Data []byte
}

// ReadResult is the per-request outcome. A failing request carries its own
// error and never fails the batch around it.
type ReadResult struct {
	Data []byte
	Err  error
}

// BatchReader is the sole I/O capability the core depends on. One call is
// one remote round trip regardless of batch size. An error return means the
// whole round trip failed (transport failure or timeout), as opposed to
// per-request errors inside the results.
type BatchReader interface {
	BatchRead(ctx context.Context, reqs []ReadRequest) ([]ReadResult, error)
}

// ErrSystemic is returned by Refresh when every round trip of a scan's
// refresh failed; the scan should be abandoned, not errored upward.
var ErrSystemic = errors.New("remote data source unreachable for entire refresh")
