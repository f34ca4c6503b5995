package syncer

import (
	"context"
	"errors"
	"time"
)

// Retention holds the windows after which the sweeper reclaims state.
type Retention struct {
	SoftDelete       time.Duration
	ResolvedConflict time.Duration
	OperationLog     time.Duration
}

// DefaultRetention matches the configuration defaults.
func DefaultRetention() Retention {
	return Retention{
		SoftDelete:       30 * 24 * time.Hour,
		ResolvedConflict: 7 * 24 * time.Hour,
		OperationLog:     90 * 24 * time.Hour,
	}
}

// SweepStats counts what one sweep reclaimed.
type SweepStats struct {
	PurgedDocuments   int
	DeletedConflicts  int
	TrimmedOperations int64
	Errors            int
}

// Sweeper reclaims expired soft-deletes, resolved conflicts, and old audit
// rows. Sweeps are best-effort and idempotent: a blob delete failure leaves
// the owning row in place so the next sweep retries, and per-item errors
// never abort the batch.
type Sweeper struct {
	catalog   Catalog
	conflicts ConflictStore
	oplog     OperationLog
	blobs     BlobStore
	logger    Logger
	clock     Clock
	retention Retention
}

// NewSweeper creates a Sweeper with the provided dependencies.
func NewSweeper(catalog Catalog, conflicts ConflictStore, oplog OperationLog, blobs BlobStore, logger Logger, clock Clock, retention Retention) *Sweeper {
	return &Sweeper{
		catalog:   catalog,
		conflicts: conflicts,
		oplog:     oplog,
		blobs:     blobs,
		logger:    logger,
		clock:     clock,
		retention: retention,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep over all three categories.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	now := s.clock.Now()
	var stats SweepStats

	s.sweepSoftDeletes(ctx, now, &stats)
	s.sweepResolvedConflicts(ctx, now, &stats)
	s.sweepOperationLog(ctx, now, &stats)

	s.logger.Info("sweep complete",
		"purged_documents", stats.PurgedDocuments,
		"deleted_conflicts", stats.DeletedConflicts,
		"trimmed_operations", stats.TrimmedOperations,
		"errors", stats.Errors)
	return stats, ctx.Err()
}

func (s *Sweeper) sweepSoftDeletes(ctx context.Context, now time.Time, stats *SweepStats) {
	cutoff := now.Add(-s.retention.SoftDelete)
	docs, err := s.catalog.ExpiredSoftDeletes(ctx, cutoff)
	if err != nil {
		s.logger.Error("listing expired soft-deletes", "error", err)
		stats.Errors++
		return
	}

	for _, doc := range docs {
		// Blobs go first. If any delete fails the catalog row stays so
		// the next sweep retries; a row purged with blobs left behind
		// would orphan them forever.
		keys := []string{doc.ContentKey, doc.SidecarKey}
		conflictKeys, err := s.blobs.List(ctx, TenantPrefix(doc.TenantID)+"conflicts/"+doc.ID+"/")
		if err != nil {
			s.logger.Error("listing conflict blobs", "tenant", doc.TenantID, "doc", doc.ID, "error", err)
			stats.Errors++
			continue
		}
		keys = append(keys, conflictKeys...)

		if !s.deleteBlobs(ctx, keys, stats) {
			continue
		}

		if err := s.catalog.Purge(ctx, doc.TenantID, doc.ID, now); err != nil {
			s.logger.Error("purging document", "tenant", doc.TenantID, "doc", doc.ID, "error", err)
			stats.Errors++
			continue
		}
		stats.PurgedDocuments++
		s.logger.Debug("document purged", "tenant", doc.TenantID, "doc", doc.ID, "path", doc.Path)
	}
}

func (s *Sweeper) sweepResolvedConflicts(ctx context.Context, now time.Time, stats *SweepStats) {
	cutoff := now.Add(-s.retention.ResolvedConflict)
	conflicts, err := s.conflicts.ResolvedConflictsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("listing resolved conflicts", "error", err)
		stats.Errors++
		return
	}

	for _, c := range conflicts {
		// Only the preserved proposer blobs belong to the conflict; the
		// remote key points at the document's current blobs.
		keys := []string{c.LocalBlobKey, sidecarKeyFor(c.LocalBlobKey)}
		if !s.deleteBlobs(ctx, keys, stats) {
			continue
		}

		if err := s.conflicts.DeleteConflict(ctx, c.ID); err != nil {
			s.logger.Error("deleting conflict", "conflict", c.ID, "error", err)
			stats.Errors++
			continue
		}
		stats.DeletedConflicts++
	}
}

func (s *Sweeper) sweepOperationLog(ctx context.Context, now time.Time, stats *SweepStats) {
	cutoff := now.Add(-s.retention.OperationLog)
	trimmed, err := s.oplog.TrimOperationsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("trimming operation log", "error", err)
		stats.Errors++
		return
	}
	stats.TrimmedOperations = trimmed
}

// deleteBlobs removes every key, treating already-missing blobs as done.
// Returns false if any delete genuinely failed.
func (s *Sweeper) deleteBlobs(ctx context.Context, keys []string, stats *SweepStats) bool {
	ok := true
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
			s.logger.Warn("deleting blob", "key", key, "error", err)
			stats.Errors++
			ok = false
		}
	}
	return ok
}
