package syncer

import (
	"errors"
	"fmt"

	"docsync/internal/model"
)

// Kind classifies failures at the service boundary. Clients branch on the
// kind, never on the message text.
type Kind string

const (
	KindInvalidPath        Kind = "invalid_path"
	KindInvalidSidecar     Kind = "invalid_sidecar"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindNotFound           Kind = "not_found"
	KindPathInUse          Kind = "path_in_use"
	KindAlreadyResolved    Kind = "already_resolved"
	KindStale              Kind = "stale"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindCorruptCatalog     Kind = "corrupt_catalog"
	KindRateLimited        Kind = "rate_limited"
)

// QuotaDimension states which tier limit an admission decision tripped.
type QuotaDimension string

const (
	QuotaBytes     QuotaDimension = "bytes"
	QuotaDocuments QuotaDimension = "documents"
)

// Error is the typed failure returned from every public operation.
type Error struct {
	Kind    Kind
	Message string
	// Dimension and Usage are set for quota_exceeded so clients can show
	// the offending limit alongside the current ledger snapshot.
	Dimension QuotaDimension
	Usage     *model.Ledger
	cause     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Errf builds an Error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr builds an Error that wraps an underlying cause.
func WrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// QuotaErr builds a quota_exceeded Error carrying the violated dimension and
// the ledger snapshot observed at admission time.
func QuotaErr(dim QuotaDimension, usage model.Ledger) *Error {
	return &Error{
		Kind:      KindQuotaExceeded,
		Message:   fmt.Sprintf("tenant quota exceeded on %s", dim),
		Dimension: dim,
		Usage:     &usage,
	}
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrBlobNotFound is returned by blob store variants when a key does not
// exist. All other blob failures are surfaced unchanged.
var ErrBlobNotFound = errors.New("blob not found")

// ErrSignURLUnsupported is returned by variants that cannot mint signed URLs.
var ErrSignURLUnsupported = errors.New("signed URLs not supported by this backend")
