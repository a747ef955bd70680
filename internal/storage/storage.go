package storage

import (
	"context"

	"arbscope/internal/model"
)

// Sink persists validated opportunities. Persistence is best-effort from the
// scanner's point of view; a sink failure never fails a scan.
type Sink interface {
	PutScanResult(ctx context.Context, result model.ScanResult) error
}
