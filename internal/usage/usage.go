// Package usage reports consumed versus available on-device storage for the
// dashboard's storage panel.
package usage

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/harborlight/relief-offline/internal/domain"
)

// SizeReporter exposes the on-disk footprint of the offline store.
type SizeReporter interface {
	Size() (int64, error)
}

// Reporter computes storage usage on demand. It never caches a result: usage
// changes continuously and callers only ask when the panel is open.
type Reporter struct {
	store  SizeReporter
	dir    string
	logger *slog.Logger
}

// NewReporter creates a Reporter for a store persisted under dir.
func NewReporter(store SizeReporter, dir string, logger *slog.Logger) *Reporter {
	return &Reporter{store: store, dir: dir, logger: logger}
}

// Usage returns the store's size, the quota (store size plus the free bytes
// of the volume holding it), and the used percentage. ok is false when the
// platform cannot report; callers hide the panel rather than error.
func (r *Reporter) Usage(ctx context.Context) (domain.StorageUsage, bool) {
	size, err := r.store.Size()
	if err != nil {
		r.logger.Warn("storage usage unavailable", "error", err)
		return domain.StorageUsage{}, false
	}

	stat, err := disk.UsageWithContext(ctx, r.dir)
	if err != nil {
		r.logger.Warn("storage usage unavailable", "dir", r.dir, "error", err)
		return domain.StorageUsage{}, false
	}

	used := uint64(size)
	u := domain.StorageUsage{
		UsedBytes:  used,
		QuotaBytes: used + stat.Free,
	}
	if u.QuotaBytes > 0 {
		u.Percentage = float64(u.UsedBytes) / float64(u.QuotaBytes) * 100
	}
	return u, true
}
