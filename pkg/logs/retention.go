package logs

import (
	"context"
	"time"

	"github.com/quillcms/quill/pkg/observability"
)

// Sweeper trims the log table down to the retention window. It runs on
// the shared background scheduler.
type Sweeper struct {
	store     *Store
	retention time.Duration
	logger    *observability.Logger
}

// NewSweeper creates a sweeper keeping retentionDays of history
func NewSweeper(store *Store, retentionDays int, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
	}
}

// Sweep deletes entries older than the retention window
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("log retention sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.WithFields(map[string]interface{}{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("log retention sweep complete")
	}
}
