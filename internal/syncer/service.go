package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docsync/internal/model"
)

// Limits bounds payloads accepted by the coordinator.
type Limits struct {
	ContentMaxBytes int64
	SidecarMaxBytes int64
	Path            PathLimits
}

// DefaultLimits matches the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		ContentMaxBytes: 10 << 20,
		SidecarMaxBytes: 1 << 20,
		Path:            DefaultPathLimits(),
	}
}

const (
	contentMIME = "text/plain; charset=utf-8"
	sidecarMIME = "application/json"
)

// Service is the sync coordinator. It orchestrates path validation, sidecar
// sanitization, quota admission, blob writes, and the catalog transaction for
// every public operation, and appends each outcome to the operation log.
//
// Blob writes always happen outside the catalog transaction: a failed
// transaction can leave orphaned blobs, which the sweeper reclaims.
type Service struct {
	catalog   Catalog
	conflicts ConflictStore
	oplog     OperationLog
	blobs     BlobStore
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	limits    Limits
}

// NewService creates a Service with the provided dependencies.
func NewService(catalog Catalog, conflicts ConflictStore, oplog OperationLog, blobs BlobStore, logger Logger, clock Clock, idgen IDGenerator, limits Limits) *Service {
	return &Service{
		catalog:   catalog,
		conflicts: conflicts,
		oplog:     oplog,
		blobs:     blobs,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		limits:    limits,
	}
}

// ConflictResult is the structured outcome of an upload proposed against a
// stale base version. It is not an error: the proposer's revision has been
// preserved and the client chooses a resolution.
type ConflictResult struct {
	ConflictID    string
	RemoteVersion int64
	RemoteContent []byte
	RemoteSidecar []byte
}

// UploadResult carries either the new document row or a conflict.
type UploadResult struct {
	Document *model.Document
	Conflict *ConflictResult
}

// Upload proposes a new revision for the document at rawPath. A nil
// baseVersion skips optimistic concurrency entirely; otherwise the proposal
// wins only if baseVersion equals the current catalog version, and loses into
// a preserved conflict otherwise.
func (s *Service) Upload(ctx context.Context, tenantID string, tier TierLimits, rawPath string, content []byte, sidecar any, baseVersion *int64) (UploadResult, error) {
	res, err := s.upload(ctx, tenantID, tier, rawPath, content, sidecar, baseVersion)
	size := int64(len(content))
	if res.Document != nil {
		size = res.Document.SizeBytes
	}
	docID := ""
	if res.Document != nil {
		docID = res.Document.ID
	}
	s.logOperation(ctx, tenantID, docID, "upload", rawPath, size, err)
	return res, err
}

func (s *Service) upload(ctx context.Context, tenantID string, tier TierLimits, rawPath string, content []byte, sidecar any, baseVersion *int64) (UploadResult, error) {
	canonical, err := ValidatePath(rawPath, s.limits.Path)
	if err != nil {
		return UploadResult{}, err
	}

	if int64(len(content)) > s.limits.ContentMaxBytes {
		return UploadResult{}, Errf(KindPayloadTooLarge, "content exceeds %d bytes", s.limits.ContentMaxBytes)
	}
	if !utf8.Valid(content) {
		return UploadResult{}, Errf(KindPayloadTooLarge, "content is not valid UTF-8 text")
	}

	_, serialized, err := SanitizeSidecar(sidecar, s.limits.SidecarMaxBytes)
	if err != nil {
		return UploadResult{}, err
	}

	totalSize := int64(len(content)) + int64(len(serialized))

	existing, err := s.catalog.GetByPath(ctx, tenantID, canonical)
	if err != nil {
		return UploadResult{}, fmt.Errorf("looking up document: %w", err)
	}

	// A stale base version is decided here, before any blob reaches the
	// document's current keys, so the winning revision's blobs are never
	// overwritten by the loser.
	if existing != nil && baseVersion != nil && *baseVersion != existing.Version {
		conflict, err := s.recordConflict(ctx, tenantID, existing, *baseVersion, content, serialized)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Conflict: conflict}, nil
	}

	var existingSize int64
	isNew := existing == nil
	if existing != nil {
		existingSize = existing.SizeBytes
	}

	ledger, err := s.catalog.GetLedger(ctx, tenantID)
	if err != nil {
		return UploadResult{}, fmt.Errorf("reading ledger: %w", err)
	}
	if admitErr := Admit(ledger, tier, totalSize-existingSize, isNew); admitErr != nil {
		return UploadResult{}, admitErr
	}

	docID := s.idgen.New()
	if existing != nil {
		docID = existing.ID
	}

	contentKey := DocumentKey(tenantID, docID, RoleContent)
	sidecarKey := DocumentKey(tenantID, docID, RoleSidecar)
	contentHash := HashBytes(content)
	sidecarHash := HashBytes(serialized)

	if err := s.putBlob(ctx, contentKey, content, contentMIME, contentHash, tenantID, docID); err != nil {
		return UploadResult{}, err
	}
	if err := s.putBlob(ctx, sidecarKey, serialized, sidecarMIME, sidecarHash, tenantID, docID); err != nil {
		return UploadResult{}, err
	}

	outcome, err := s.catalog.UpsertOnUpload(ctx, UpsertParams{
		TenantID:    tenantID,
		DocumentID:  docID,
		Path:        canonical,
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		ContentKey:  contentKey,
		SidecarKey:  sidecarKey,
		SizeBytes:   totalSize,
		BaseVersion: baseVersion,
		Limits:      tier,
		Now:         s.clock.Now(),
	})
	if err != nil {
		return UploadResult{}, err
	}
	if outcome.Conflict != nil {
		// Lost a race between the precheck and the transaction. The
		// current keys now hold the loser's bytes; the catalog hashes
		// still identify the winner, so downloads surface the mismatch.
		s.logger.Warn("upload raced at version boundary", "tenant", tenantID, "doc", docID, "version", outcome.Conflict.Version)
		conflict, err := s.recordConflict(ctx, tenantID, outcome.Conflict, derefVersion(baseVersion), content, serialized)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Conflict: conflict}, nil
	}

	s.logger.Info("document uploaded", "tenant", tenantID, "doc", docID, "path", canonical, "version", outcome.Document.Version)
	return UploadResult{Document: outcome.Document}, nil
}

// recordConflict preserves a losing revision: the proposer's blobs are written
// into the conflict namespace, a conflict row is inserted, and the current
// revision's payload is loaded for the response.
func (s *Service) recordConflict(ctx context.Context, tenantID string, current *model.Document, baseVersion int64, content, serialized []byte) (*ConflictResult, error) {
	conflictID := s.idgen.New()
	localContentKey := ConflictKey(tenantID, current.ID, conflictID, RoleContent)
	localSidecarKey := ConflictKey(tenantID, current.ID, conflictID, RoleSidecar)
	localContentHash := HashBytes(content)

	if err := s.putBlob(ctx, localContentKey, content, contentMIME, localContentHash, tenantID, current.ID); err != nil {
		return nil, err
	}
	if err := s.putBlob(ctx, localSidecarKey, serialized, sidecarMIME, HashBytes(serialized), tenantID, current.ID); err != nil {
		return nil, err
	}

	c := model.Conflict{
		ID:                conflictID,
		DocumentID:        current.ID,
		TenantID:          tenantID,
		LocalVersion:      baseVersion,
		RemoteVersion:     current.Version,
		LocalContentHash:  localContentHash,
		RemoteContentHash: current.ContentHash,
		LocalBlobKey:      localContentKey,
		RemoteBlobKey:     current.ContentKey,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.conflicts.InsertConflict(ctx, c); err != nil {
		return nil, fmt.Errorf("recording conflict: %w", err)
	}

	remoteContent, err := s.getBlob(ctx, current.ContentKey)
	if err != nil {
		return nil, err
	}
	remoteSidecar, err := s.getBlob(ctx, current.SidecarKey)
	if err != nil {
		return nil, err
	}

	s.logger.Info("conflict recorded", "tenant", tenantID, "doc", current.ID, "conflict", c.ID,
		"local_version", baseVersion, "remote_version", current.Version)

	return &ConflictResult{
		ConflictID:    c.ID,
		RemoteVersion: current.Version,
		RemoteContent: remoteContent,
		RemoteSidecar: remoteSidecar,
	}, nil
}

// DownloadResult is a document row plus its blob payloads.
type DownloadResult struct {
	Document *model.Document
	Content  []byte
	Sidecar  []byte
}

// Download fetches a live document and its blobs by id.
func (s *Service) Download(ctx context.Context, tenantID, docID string) (DownloadResult, error) {
	res, err := s.download(ctx, tenantID, docID)
	path := ""
	var size int64
	if res.Document != nil {
		path = res.Document.Path
		size = res.Document.SizeBytes
	}
	s.logOperation(ctx, tenantID, docID, "download", path, size, err)
	return res, err
}

func (s *Service) download(ctx context.Context, tenantID, docID string) (DownloadResult, error) {
	doc, err := s.catalog.GetByID(ctx, tenantID, docID)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("looking up document: %w", err)
	}
	if doc == nil || !doc.Live() {
		return DownloadResult{}, Errf(KindNotFound, "document %s not found", docID)
	}

	content, err := s.blobs.Get(ctx, doc.ContentKey)
	if err != nil {
		return DownloadResult{}, s.downloadBlobError(doc, doc.ContentKey, err)
	}
	sidecar, err := s.blobs.Get(ctx, doc.SidecarKey)
	if err != nil {
		return DownloadResult{}, s.downloadBlobError(doc, doc.SidecarKey, err)
	}

	return DownloadResult{Document: doc, Content: content, Sidecar: sidecar}, nil
}

// downloadBlobError distinguishes a missing blob behind a healthy catalog row
// (an integrity signal operators must investigate) from a transient backend
// failure.
func (s *Service) downloadBlobError(doc *model.Document, key string, err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		s.logger.Error("catalog row references missing blob",
			"tenant", doc.TenantID, "doc", doc.ID, "path", doc.Path, "version", doc.Version, "key", key)
		return WrapErr(KindCorruptCatalog, err, "blob missing for document %s", doc.ID)
	}
	return WrapErr(KindStorageUnavailable, err, "fetching blob")
}

// Rename moves a document to a new canonical path. No blob I/O: keys embed
// the document id, not the path.
func (s *Service) Rename(ctx context.Context, tenantID, docID, rawNewPath string) (*model.Document, error) {
	doc, err := s.rename(ctx, tenantID, docID, rawNewPath)
	var size int64
	if doc != nil {
		size = doc.SizeBytes
	}
	s.logOperation(ctx, tenantID, docID, "rename", rawNewPath, size, err)
	return doc, err
}

func (s *Service) rename(ctx context.Context, tenantID, docID, rawNewPath string) (*model.Document, error) {
	canonical, err := ValidatePath(rawNewPath, s.limits.Path)
	if err != nil {
		return nil, err
	}
	doc, err := s.catalog.Rename(ctx, tenantID, docID, canonical, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("document renamed", "tenant", tenantID, "doc", docID, "path", canonical)
	return doc, nil
}

// SoftDelete marks a document deleted. Blobs are retained for the retention
// window; the sweeper purges both row and blobs after it elapses.
func (s *Service) SoftDelete(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	doc, err := s.catalog.SoftDelete(ctx, tenantID, docID, s.clock.Now())
	path := ""
	var size int64
	if doc != nil {
		path = doc.Path
		size = doc.SizeBytes
	}
	s.logOperation(ctx, tenantID, docID, "soft_delete", path, size, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document soft-deleted", "tenant", tenantID, "doc", docID, "path", doc.Path)
	return doc, nil
}

// ConflictDetail is a conflict row plus both preserved payloads.
type ConflictDetail struct {
	Conflict      *model.Conflict
	LocalContent  []byte
	LocalSidecar  []byte
	RemoteContent []byte
	RemoteSidecar []byte
}

// GetConflict fetches a conflict row and both blob payloads for presentation.
func (s *Service) GetConflict(ctx context.Context, tenantID, conflictID string) (ConflictDetail, error) {
	c, err := s.conflicts.GetConflict(ctx, tenantID, conflictID)
	if err != nil {
		return ConflictDetail{}, fmt.Errorf("looking up conflict: %w", err)
	}
	if c == nil {
		return ConflictDetail{}, Errf(KindNotFound, "conflict %s not found", conflictID)
	}

	localContent, err := s.getBlob(ctx, c.LocalBlobKey)
	if err != nil {
		return ConflictDetail{}, err
	}
	localSidecar, err := s.getBlob(ctx, sidecarKeyFor(c.LocalBlobKey))
	if err != nil {
		return ConflictDetail{}, err
	}
	remoteContent, err := s.getBlob(ctx, c.RemoteBlobKey)
	if err != nil {
		return ConflictDetail{}, err
	}
	remoteSidecar, err := s.getBlob(ctx, sidecarKeyFor(c.RemoteBlobKey))
	if err != nil {
		return ConflictDetail{}, err
	}

	return ConflictDetail{
		Conflict:      c,
		LocalContent:  localContent,
		LocalSidecar:  localSidecar,
		RemoteContent: remoteContent,
		RemoteSidecar: remoteSidecar,
	}, nil
}

// ResolveResult reports a completed resolution.
type ResolveResult struct {
	Resolution model.Resolution
	ResolvedAt time.Time
	// BothDocument is the newly created document when the strategy was
	// "both", nil otherwise.
	BothDocument *model.Document
}

// ResolveConflict applies a client-chosen resolution exactly once. Blob copies
// happen outside the transaction; the resolution flag is set inside one. The
// preserved conflict blobs remain until the sweeper reclaims them.
func (s *Service) ResolveConflict(ctx context.Context, tenantID string, tier TierLimits, conflictID string, res model.Resolution) (ResolveResult, error) {
	out, err := s.resolveConflict(ctx, tenantID, tier, conflictID, res)
	// The path column holds only paths; the conflict id travels in the
	// error context instead.
	auditErr := err
	if err != nil {
		auditErr = fmt.Errorf("conflict %s: %w", conflictID, err)
	}
	s.logOperation(ctx, tenantID, "", "resolve_conflict", "", 0, auditErr)
	return out, err
}

func (s *Service) resolveConflict(ctx context.Context, tenantID string, tier TierLimits, conflictID string, res model.Resolution) (ResolveResult, error) {
	if !res.Valid() {
		return ResolveResult{}, fmt.Errorf("invalid resolution %q", res)
	}

	c, err := s.conflicts.GetConflict(ctx, tenantID, conflictID)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("looking up conflict: %w", err)
	}
	if c == nil {
		return ResolveResult{}, Errf(KindNotFound, "conflict %s not found", conflictID)
	}
	if c.Resolved() {
		return ResolveResult{}, Errf(KindAlreadyResolved, "conflict %s already resolved as %s", conflictID, c.Resolution)
	}

	doc, err := s.catalog.GetByID(ctx, tenantID, c.DocumentID)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("looking up document: %w", err)
	}

	var bothDoc *model.Document
	switch res {
	case model.ResolutionRemote:
		// The current revision stands. A purged document resolves as a
		// no-op.

	case model.ResolutionLocal:
		if doc == nil {
			return ResolveResult{}, Errf(KindStale, "document %s was purged; resolve as remote", c.DocumentID)
		}
		if err := s.promoteLocal(ctx, tenantID, tier, c, doc); err != nil {
			return ResolveResult{}, err
		}

	case model.ResolutionBoth:
		if doc == nil {
			return ResolveResult{}, Errf(KindStale, "document %s was purged; resolve as remote", c.DocumentID)
		}
		bothDoc, err = s.forkLocal(ctx, tenantID, tier, c, doc)
		if err != nil {
			return ResolveResult{}, err
		}
	}

	now := s.clock.Now()
	if err := s.conflicts.MarkResolved(ctx, tenantID, conflictID, res, now); err != nil {
		return ResolveResult{}, err
	}

	s.logger.Info("conflict resolved", "tenant", tenantID, "conflict", conflictID, "resolution", string(res))
	return ResolveResult{Resolution: res, ResolvedAt: now, BothDocument: bothDoc}, nil
}

// promoteLocal makes the preserved proposer revision current: its blobs are
// copied to the document's current keys and the version is bumped.
func (s *Service) promoteLocal(ctx context.Context, tenantID string, tier TierLimits, c *model.Conflict, doc *model.Document) error {
	content, serialized, err := s.loadPreserved(ctx, c)
	if err != nil {
		return err
	}

	contentHash := HashBytes(content)
	sidecarHash := HashBytes(serialized)

	if err := s.putBlob(ctx, doc.ContentKey, content, contentMIME, contentHash, tenantID, doc.ID); err != nil {
		return err
	}
	if err := s.putBlob(ctx, doc.SidecarKey, serialized, sidecarMIME, sidecarHash, tenantID, doc.ID); err != nil {
		return err
	}

	outcome, err := s.catalog.UpsertOnUpload(ctx, UpsertParams{
		TenantID:    tenantID,
		DocumentID:  doc.ID,
		Path:        doc.Path,
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		ContentKey:  doc.ContentKey,
		SidecarKey:  doc.SidecarKey,
		SizeBytes:   int64(len(content)) + int64(len(serialized)),
		Limits:      tier,
		Now:         s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if outcome.Conflict != nil {
		return fmt.Errorf("unexpected version conflict promoting resolution for document %s", doc.ID)
	}
	return nil
}

// forkLocal creates a sibling document for the preserved revision at a path
// derived from the current one, charging its size to the ledger.
func (s *Service) forkLocal(ctx context.Context, tenantID string, tier TierLimits, c *model.Conflict, doc *model.Document) (*model.Document, error) {
	content, serialized, err := s.loadPreserved(ctx, c)
	if err != nil {
		return nil, err
	}

	forkPath, err := s.freeConflictPath(ctx, tenantID, doc.Path)
	if err != nil {
		return nil, err
	}

	forkID := s.idgen.New()
	contentKey := DocumentKey(tenantID, forkID, RoleContent)
	sidecarKey := DocumentKey(tenantID, forkID, RoleSidecar)
	contentHash := HashBytes(content)
	sidecarHash := HashBytes(serialized)

	if err := s.putBlob(ctx, contentKey, content, contentMIME, contentHash, tenantID, forkID); err != nil {
		return nil, err
	}
	if err := s.putBlob(ctx, sidecarKey, serialized, sidecarMIME, sidecarHash, tenantID, forkID); err != nil {
		return nil, err
	}

	outcome, err := s.catalog.UpsertOnUpload(ctx, UpsertParams{
		TenantID:    tenantID,
		DocumentID:  forkID,
		Path:        forkPath,
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		ContentKey:  contentKey,
		SidecarKey:  sidecarKey,
		SizeBytes:   int64(len(content)) + int64(len(serialized)),
		Limits:      tier,
		Now:         s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if outcome.Conflict != nil {
		return nil, Errf(KindPathInUse, "path %s was taken concurrently", forkPath)
	}
	return outcome.Document, nil
}

// loadPreserved fetches the proposer's preserved content and sidecar blobs.
func (s *Service) loadPreserved(ctx context.Context, c *model.Conflict) ([]byte, []byte, error) {
	content, err := s.getBlob(ctx, c.LocalBlobKey)
	if err != nil {
		return nil, nil, err
	}
	serialized, err := s.getBlob(ctx, sidecarKeyFor(c.LocalBlobKey))
	if err != nil {
		return nil, nil, err
	}
	return content, serialized, nil
}

// freeConflictPath derives the alternate path for a "both" resolution by
// inserting " (conflict)" before the last extension, then tries numeric
// suffixes until a free path is found. It never overwrites an existing row.
func (s *Service) freeConflictPath(ctx context.Context, tenantID, basePath string) (string, error) {
	for attempt := 1; attempt <= 100; attempt++ {
		candidate := conflictPath(basePath, attempt)
		existing, err := s.catalog.GetByPath(ctx, tenantID, candidate)
		if err != nil {
			return "", fmt.Errorf("probing conflict path: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}
	}
	return "", Errf(KindPathInUse, "no free conflict path for %s", basePath)
}

// conflictPath inserts the conflict suffix before the last extension of the
// final segment; extensionless names get the suffix appended. attempt 1 yields
// "name (conflict).ext", attempt N "name (conflict N).ext".
func conflictPath(p string, attempt int) string {
	suffix := " (conflict)"
	if attempt > 1 {
		suffix = fmt.Sprintf(" (conflict %d)", attempt)
	}
	dir, name := "", p
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		dir, name = p[:i+1], p[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return dir + name[:i] + suffix + name[i:]
	}
	return dir + name + suffix
}

// UsageSnapshot projects the tenant ledger against its tier limits.
type UsageSnapshot struct {
	DocumentCount  int64
	TotalSizeBytes int64
	LimitBytes     int64
	LimitDocuments int64
	PercentUsed    float64
	LastSyncAt     *time.Time
}

// Usage returns the ledger projection for a tenant.
func (s *Service) Usage(ctx context.Context, tenantID string, tier TierLimits) (UsageSnapshot, error) {
	ledger, err := s.catalog.GetLedger(ctx, tenantID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("reading ledger: %w", err)
	}
	return usageFromLedger(ledger, tier), nil
}

func usageFromLedger(ledger model.Ledger, tier TierLimits) UsageSnapshot {
	snapshot := UsageSnapshot{
		DocumentCount:  ledger.DocumentCount,
		TotalSizeBytes: ledger.TotalSizeBytes,
		LimitBytes:     tier.MaxBytes,
		LimitDocuments: tier.MaxDocuments,
		LastSyncAt:     ledger.LastSyncAt,
	}
	if tier.MaxBytes > 0 {
		snapshot.PercentUsed = float64(ledger.TotalSizeBytes) / float64(tier.MaxBytes) * 100
	}
	return snapshot
}

// ListPage is the client's reconciliation view at session start: a page of
// documents, the usage snapshot, and every open conflict.
type ListPage struct {
	Documents  []model.Document
	Usage      UsageSnapshot
	Conflicts  []model.Conflict
	NextCursor string
}

// List pages a tenant's live documents by recency.
func (s *Service) List(ctx context.Context, tenantID string, tier TierLimits, limit int, cursor string) (ListPage, error) {
	if limit <= 0 {
		limit = 50
	}

	docs, next, err := s.catalog.List(ctx, tenantID, limit, cursor)
	if err != nil {
		return ListPage{}, fmt.Errorf("listing documents: %w", err)
	}
	ledger, err := s.catalog.GetLedger(ctx, tenantID)
	if err != nil {
		return ListPage{}, fmt.Errorf("reading ledger: %w", err)
	}
	conflicts, err := s.conflicts.ListOpenConflicts(ctx, tenantID)
	if err != nil {
		return ListPage{}, fmt.Errorf("listing conflicts: %w", err)
	}

	return ListPage{
		Documents:  docs,
		Usage:      usageFromLedger(ledger, tier),
		Conflicts:  conflicts,
		NextCursor: next,
	}, nil
}

// SignDownloadURL mints a time-limited URL for a document's content blob.
// Fails cleanly on backends without signing support.
func (s *Service) SignDownloadURL(ctx context.Context, tenantID, docID string, ttl time.Duration) (string, error) {
	doc, err := s.catalog.GetByID(ctx, tenantID, docID)
	if err != nil {
		return "", fmt.Errorf("looking up document: %w", err)
	}
	if doc == nil || !doc.Live() {
		return "", Errf(KindNotFound, "document %s not found", docID)
	}
	url, err := s.blobs.SignURL(ctx, doc.ContentKey, ttl)
	if err != nil {
		if errors.Is(err, ErrSignURLUnsupported) {
			return "", err
		}
		return "", WrapErr(KindStorageUnavailable, err, "signing URL")
	}
	return url, nil
}

func (s *Service) putBlob(ctx context.Context, key string, data []byte, mime, hash, tenantID, docID string) error {
	err := s.blobs.Put(ctx, key, data, BlobMeta{
		ContentType: mime,
		Hash:        hash,
		TenantID:    tenantID,
		DocumentID:  docID,
	})
	if err != nil {
		return WrapErr(KindStorageUnavailable, err, "writing blob")
	}
	return nil
}

func (s *Service) getBlob(ctx context.Context, key string) ([]byte, error) {
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, WrapErr(KindCorruptCatalog, err, "blob %s missing", key)
		}
		return nil, WrapErr(KindStorageUnavailable, err, "fetching blob")
	}
	return data, nil
}

// logOperation appends an audit row recording the outcome. Append failures
// are logged and never surfaced: the audit trail must not fail the operation
// it records.
func (s *Service) logOperation(ctx context.Context, tenantID, docID, operation, path string, size int64, opErr error) {
	op := model.Operation{
		ID:         s.idgen.New(),
		TenantID:   tenantID,
		DocumentID: docID,
		Operation:  operation,
		Path:       path,
		SizeBytes:  size,
		Success:    opErr == nil,
		CreatedAt:  s.clock.Now(),
	}
	if opErr != nil {
		op.ErrorMessage = opErr.Error()
	}
	if err := s.oplog.AppendOperation(ctx, op); err != nil {
		s.logger.Error("appending operation log", "tenant", tenantID, "operation", operation, "error", err)
	}
}

// sidecarKeyFor derives the sidecar key from a content key. Both key shapes
// end in the role segment.
func sidecarKeyFor(contentKey string) string {
	return strings.TrimSuffix(contentKey, "/"+RoleContent) + "/" + RoleSidecar
}

func derefVersion(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
