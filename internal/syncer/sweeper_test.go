package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docsync/internal/model"
	"docsync/internal/syncer"
)

type sweepFixture struct {
	*fixture
	sweeper *syncer.Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := newFixture(t)
	sweeper := syncer.NewSweeper(f.store, f.store, f.store, f.blobs, syncer.NewNopLogger(), f.clock, syncer.DefaultRetention())
	return &sweepFixture{fixture: f, sweeper: sweeper}
}

func TestSweeper_SoftDeletes(t *testing.T) {
	ctx := context.Background()

	t.Run("purges documents past the retention window", func(t *testing.T) {
		f := newSweepFixture(t)
		doc := mustUpload(t, f.fixture, "t1", "old.md", "bytes", nil)
		if _, err := f.svc.SoftDelete(ctx, "t1", doc.ID); err != nil {
			t.Fatalf("SoftDelete() error = %v", err)
		}

		f.clock.Advance(31 * 24 * time.Hour)

		stats, err := f.sweeper.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
		if stats.PurgedDocuments != 1 {
			t.Errorf("PurgedDocuments = %d, want 1", stats.PurgedDocuments)
		}

		// Row and blobs are both gone.
		if got, err := f.store.GetByID(ctx, "t1", doc.ID); err != nil || got != nil {
			t.Errorf("GetByID after purge = %+v, %v", got, err)
		}
		if _, err := f.blobs.Get(ctx, doc.ContentKey); !errors.Is(err, syncer.ErrBlobNotFound) {
			t.Errorf("content blob still present: %v", err)
		}
		if _, err := f.blobs.Get(ctx, doc.SidecarKey); !errors.Is(err, syncer.ErrBlobNotFound) {
			t.Errorf("sidecar blob still present: %v", err)
		}
	})

	t.Run("leaves recent soft-deletes alone", func(t *testing.T) {
		f := newSweepFixture(t)
		doc := mustUpload(t, f.fixture, "t1", "recent.md", "bytes", nil)
		f.svc.SoftDelete(ctx, "t1", doc.ID)

		f.clock.Advance(29 * 24 * time.Hour)

		stats, _ := f.sweeper.RunOnce(ctx)
		if stats.PurgedDocuments != 0 {
			t.Errorf("PurgedDocuments = %d, want 0", stats.PurgedDocuments)
		}
		if got, _ := f.store.GetByID(ctx, "t1", doc.ID); got == nil {
			t.Error("recent soft-delete was purged")
		}
	})

	t.Run("purge removes preserved conflict blobs for the document", func(t *testing.T) {
		f := newSweepFixture(t)
		doc := mustUpload(t, f.fixture, "t1", "shared.md", "v1", nil)
		mustUpload(t, f.fixture, "t1", "shared.md", "v2", base(1))
		res, err := f.svc.Upload(ctx, "t1", testTier, "shared.md", []byte("stale"), sidecar(), base(1))
		if err != nil || res.Conflict == nil {
			t.Fatalf("seeding conflict: %+v, %v", res, err)
		}
		row, err := f.store.GetConflict(ctx, "t1", res.Conflict.ConflictID)
		if err != nil || row == nil {
			t.Fatalf("conflict row: %+v, %v", row, err)
		}

		f.svc.SoftDelete(ctx, "t1", doc.ID)
		f.clock.Advance(31 * 24 * time.Hour)

		if _, err := f.sweeper.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}

		if _, err := f.blobs.Get(ctx, row.LocalBlobKey); !errors.Is(err, syncer.ErrBlobNotFound) {
			t.Errorf("preserved conflict blob still present: %v", err)
		}
	})

	t.Run("sweeping twice is idempotent", func(t *testing.T) {
		f := newSweepFixture(t)
		doc := mustUpload(t, f.fixture, "t1", "old.md", "x", nil)
		f.svc.SoftDelete(ctx, "t1", doc.ID)
		f.clock.Advance(31 * 24 * time.Hour)

		if _, err := f.sweeper.RunOnce(ctx); err != nil {
			t.Fatalf("first sweep error = %v", err)
		}
		stats, err := f.sweeper.RunOnce(ctx)
		if err != nil {
			t.Fatalf("second sweep error = %v", err)
		}
		if stats.PurgedDocuments != 0 || stats.Errors != 0 {
			t.Errorf("second sweep stats = %+v", stats)
		}
	})
}

func TestSweeper_ResolvedConflicts(t *testing.T) {
	ctx := context.Background()

	seedResolved := func(t *testing.T, f *sweepFixture) (docID, conflictID, preservedKey string) {
		t.Helper()
		doc := mustUpload(t, f.fixture, "t1", "a.md", "v1", nil)
		mustUpload(t, f.fixture, "t1", "a.md", "v2", base(1))
		res, err := f.svc.Upload(ctx, "t1", testTier, "a.md", []byte("stale"), sidecar(), base(1))
		if err != nil || res.Conflict == nil {
			t.Fatalf("seeding conflict: %+v, %v", res, err)
		}
		row, err := f.store.GetConflict(ctx, "t1", res.Conflict.ConflictID)
		if err != nil || row == nil {
			t.Fatalf("conflict row: %+v, %v", row, err)
		}
		if _, err := f.svc.ResolveConflict(ctx, "t1", testTier, res.Conflict.ConflictID, model.ResolutionRemote); err != nil {
			t.Fatalf("resolving: %v", err)
		}
		return doc.ID, res.Conflict.ConflictID, row.LocalBlobKey
	}

	t.Run("deletes resolved conflicts past the window", func(t *testing.T) {
		f := newSweepFixture(t)
		docID, conflictID, preserved := seedResolved(t, f)

		f.clock.Advance(8 * 24 * time.Hour)

		stats, err := f.sweeper.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
		if stats.DeletedConflicts != 1 {
			t.Errorf("DeletedConflicts = %d, want 1", stats.DeletedConflicts)
		}

		if c, _ := f.store.GetConflict(ctx, "t1", conflictID); c != nil {
			t.Error("conflict row still present")
		}
		// Preserved proposer blobs are reclaimed.
		if _, err := f.blobs.Get(ctx, preserved); !errors.Is(err, syncer.ErrBlobNotFound) {
			t.Errorf("preserved blob still present: %v", err)
		}
		// The document's current blobs are untouched.
		if got, err := f.svc.Download(ctx, "t1", docID); err != nil || string(got.Content) != "v2" {
			t.Errorf("document content after sweep = %q, %v", got.Content, err)
		}
	})

	t.Run("leaves open conflicts alone", func(t *testing.T) {
		f := newSweepFixture(t)
		mustUpload(t, f.fixture, "t1", "a.md", "v1", nil)
		mustUpload(t, f.fixture, "t1", "a.md", "v2", base(1))
		res, err := f.svc.Upload(ctx, "t1", testTier, "a.md", []byte("stale"), sidecar(), base(1))
		if err != nil || res.Conflict == nil {
			t.Fatalf("seeding conflict: %+v, %v", res, err)
		}

		f.clock.Advance(365 * 24 * time.Hour)

		stats, _ := f.sweeper.RunOnce(ctx)
		if stats.DeletedConflicts != 0 {
			t.Errorf("DeletedConflicts = %d, want 0", stats.DeletedConflicts)
		}
		if c, _ := f.store.GetConflict(ctx, "t1", res.Conflict.ConflictID); c == nil {
			t.Error("open conflict was deleted")
		}
	})
}

func TestSweeper_OperationLog(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)

	mustUpload(t, f.fixture, "t1", "a.md", "x", nil)
	f.clock.Advance(91 * 24 * time.Hour)
	mustUpload(t, f.fixture, "t1", "b.md", "y", nil)

	stats, err := f.sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	// Only the old upload's audit row is trimmed.
	if stats.TrimmedOperations != 1 {
		t.Errorf("TrimmedOperations = %d, want 1", stats.TrimmedOperations)
	}
}

func TestSweeper_Run(t *testing.T) {
	f := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sweeper.Run(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
