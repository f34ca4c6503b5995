// Package app is the application layer between the CLI and the sync service.
// It constructs all dependencies from config, applies per-tenant rate limits
// at the boundary, and manages resource lifecycles on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"docsync/internal/blob"
	"docsync/internal/config"
	"docsync/internal/database"
	"docsync/internal/model"
	"docsync/internal/syncer"
)

// App wires the sync service together and enforces the per-tenant request
// rate before any operation reaches it.
type App struct {
	cfg     *config.Config
	store   *database.Store
	blobs   syncer.BlobStore
	service *syncer.Service
	sweeper *syncer.Sweeper
	limiter *syncer.TenantLimiter
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	blobs, err := blob.NewBlobStoreFromConfig(ctx, cfg.Storage, store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blobs.ValidateSetup(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("validating blob store: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	limits := syncer.Limits{
		ContentMaxBytes: cfg.Limits.ContentMaxBytes,
		SidecarMaxBytes: cfg.Limits.SidecarMaxBytes,
		Path: syncer.PathLimits{
			MaxPathChars:    cfg.Limits.PathMaxChars,
			MaxSegmentChars: cfg.Limits.FilenameMaxChars,
		},
	}

	adapter := &slogAdapter{l: logger}
	svc := syncer.NewService(store, store, store, blobs, adapter, syncer.RealClock{}, syncer.UUIDGenerator{}, limits)

	retention := syncer.Retention{
		SoftDelete:       days(cfg.Retention.SoftDeleteDays),
		ResolvedConflict: days(cfg.Retention.ResolvedConflictDays),
		OperationLog:     days(cfg.Retention.OperationLogDays),
	}
	sweeper := syncer.NewSweeper(store, store, store, blobs, adapter, syncer.RealClock{}, retention)

	return &App{
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		service: svc,
		sweeper: sweeper,
		limiter: syncer.NewTenantLimiter(),
		logFile: logFile,
	}, nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// tierLimits resolves a tenant's tier against the configured quotas.
func (a *App) tierLimits(tier model.Tier) syncer.TierLimits {
	t := a.cfg.TierLimits(tier)
	return syncer.TierLimits{
		MaxBytes:          t.MaxBytes,
		MaxDocuments:      t.MaxDocuments,
		RequestsPerMinute: t.RequestsPerMinute,
	}
}

// admitRequest enforces the tenant's request rate. It fails before any
// catalog or blob work happens.
func (a *App) admitRequest(tenantID string, limits syncer.TierLimits) error {
	if !a.limiter.Allow(tenantID, limits.RequestsPerMinute) {
		return syncer.Errf(syncer.KindRateLimited, "tenant %s exceeded %d requests per minute", tenantID, limits.RequestsPerMinute)
	}
	return nil
}

// Upload validates and stores a document revision.
func (a *App) Upload(ctx context.Context, tenantID string, tier model.Tier, path string, content []byte, sidecar any, baseVersion *int64) (syncer.UploadResult, error) {
	limits := a.tierLimits(tier)
	if err := a.admitRequest(tenantID, limits); err != nil {
		return syncer.UploadResult{}, err
	}
	return a.service.Upload(ctx, tenantID, limits, path, content, sidecar, baseVersion)
}

// Download returns a document's content and sidecar.
func (a *App) Download(ctx context.Context, tenantID string, tier model.Tier, docID string) (syncer.DownloadResult, error) {
	if err := a.admitRequest(tenantID, a.tierLimits(tier)); err != nil {
		return syncer.DownloadResult{}, err
	}
	return a.service.Download(ctx, tenantID, docID)
}

// Rename moves a live document to a new path.
func (a *App) Rename(ctx context.Context, tenantID string, tier model.Tier, docID, newPath string) (*model.Document, error) {
	if err := a.admitRequest(tenantID, a.tierLimits(tier)); err != nil {
		return nil, err
	}
	return a.service.Rename(ctx, tenantID, docID, newPath)
}

// SoftDelete marks a document deleted and releases its quota.
func (a *App) SoftDelete(ctx context.Context, tenantID string, tier model.Tier, docID string) (*model.Document, error) {
	if err := a.admitRequest(tenantID, a.tierLimits(tier)); err != nil {
		return nil, err
	}
	return a.service.SoftDelete(ctx, tenantID, docID)
}

// List pages through a tenant's live documents.
func (a *App) List(ctx context.Context, tenantID string, tier model.Tier, limit int, cursor string) (syncer.ListPage, error) {
	limits := a.tierLimits(tier)
	if err := a.admitRequest(tenantID, limits); err != nil {
		return syncer.ListPage{}, err
	}
	return a.service.List(ctx, tenantID, limits, limit, cursor)
}

// Usage reports a tenant's quota consumption.
func (a *App) Usage(ctx context.Context, tenantID string, tier model.Tier) (syncer.UsageSnapshot, error) {
	limits := a.tierLimits(tier)
	if err := a.admitRequest(tenantID, limits); err != nil {
		return syncer.UsageSnapshot{}, err
	}
	return a.service.Usage(ctx, tenantID, limits)
}

// GetConflict returns a conflict with both revisions' payloads.
func (a *App) GetConflict(ctx context.Context, tenantID string, tier model.Tier, conflictID string) (syncer.ConflictDetail, error) {
	if err := a.admitRequest(tenantID, a.tierLimits(tier)); err != nil {
		return syncer.ConflictDetail{}, err
	}
	return a.service.GetConflict(ctx, tenantID, conflictID)
}

// ResolveConflict applies a resolution choice to an open conflict.
func (a *App) ResolveConflict(ctx context.Context, tenantID string, tier model.Tier, conflictID string, res model.Resolution) (syncer.ResolveResult, error) {
	limits := a.tierLimits(tier)
	if err := a.admitRequest(tenantID, limits); err != nil {
		return syncer.ResolveResult{}, err
	}
	return a.service.ResolveConflict(ctx, tenantID, limits, conflictID, res)
}

// SignDownloadURL mints a time-limited download URL when the backend
// supports it.
func (a *App) SignDownloadURL(ctx context.Context, tenantID string, tier model.Tier, docID string, ttl time.Duration) (string, error) {
	if err := a.admitRequest(tenantID, a.tierLimits(tier)); err != nil {
		return "", err
	}
	return a.service.SignDownloadURL(ctx, tenantID, docID, ttl)
}

// Sweep runs one lifecycle pass immediately.
func (a *App) Sweep(ctx context.Context) (syncer.SweepStats, error) {
	return a.sweeper.RunOnce(ctx)
}

// RunSweeper runs the sweeper loop until ctx is cancelled.
func (a *App) RunSweeper(ctx context.Context) {
	a.sweeper.Run(ctx, time.Duration(a.cfg.Sweeper.IntervalHours)*time.Hour)
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
