package syncer

import "docsync/internal/model"

// TierLimits are the per-tier quotas drawn from configuration.
type TierLimits struct {
	MaxBytes          int64
	MaxDocuments      int64
	RequestsPerMinute int
}

// Admit decides whether a proposal fits the tenant's quota. deltaBytes is the
// net ledger change the proposal would apply (negative for shrinking
// overwrites) and isNewDocument charges one slot against the document count.
// The first violated dimension wins: bytes, then documents.
//
// The decision is pure so the coordinator can pre-check before blob writes and
// the catalog can re-check inside the mutating transaction.
func Admit(ledger model.Ledger, limits TierLimits, deltaBytes int64, isNewDocument bool) *Error {
	if ledger.TotalSizeBytes+deltaBytes > limits.MaxBytes {
		return QuotaErr(QuotaBytes, ledger)
	}
	if isNewDocument && ledger.DocumentCount+1 > limits.MaxDocuments {
		return QuotaErr(QuotaDocuments, ledger)
	}
	return nil
}
