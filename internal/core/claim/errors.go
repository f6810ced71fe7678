package claim

import (
	"errors"

	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
)

var (
	ErrInvalidID               = errors.New("claim: invalid id")
	ErrInvalidStatus           = errors.New("claim: invalid status")
	ErrInvalidReason           = errors.New("claim: invalid claim reason")
	ErrInvalidReviewNotes      = errors.New("claim: invalid review notes")
	ErrInvalidPageSize         = errors.New("claim: invalid page size")
	ErrInvalidPageToken        = errors.New("claim: invalid page token")
	ErrClaimNotFound           = errors.New("claim: not found")
	ErrDuplicateClaim          = errors.New("claim: employee already has an active claim for this transaction")
	ErrEmployeeProfileRequired = errors.New("claim: employee profile required")
	ErrInvalidStateTransition  = errors.New("claim: invalid state transition")
)

// Kind は呼び出し側へ公開する安定したエラー種別です。
type Kind string

const (
	KindValidation              Kind = "VALIDATION_ERROR"
	KindNotFound                Kind = "NOT_FOUND"
	KindAccessDenied            Kind = "ACCESS_DENIED"
	KindDuplicateClaim          Kind = "DUPLICATE_CLAIM"
	KindCompanyContextMissing   Kind = "COMPANY_CONTEXT_MISSING"
	KindInvalidStateTransition  Kind = "INVALID_STATE_TRANSITION"
	KindEmployeeProfileRequired Kind = "EMPLOYEE_PROFILE_REQUIRED"
	KindInternal                Kind = "INTERNAL"
)

// KindOf はエラーを安定した種別に分類します。nil は空文字を返します。
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrInvalidReviewNotes),
		errors.Is(err, ErrInvalidPageSize),
		errors.Is(err, ErrInvalidPageToken),
		errors.Is(err, revenue.ErrMissingTarget),
		errors.Is(err, revenue.ErrInvalidAmount),
		errors.Is(err, report.ErrInvalidID),
		errors.Is(err, access.ErrInvalidRole):
		return KindValidation
	case errors.Is(err, ErrClaimNotFound),
		errors.Is(err, revenue.ErrTransactionNotFound),
		errors.Is(err, revenue.ErrPaymentNotFound),
		errors.Is(err, report.ErrWorkReportNotFound):
		return KindNotFound
	case errors.Is(err, access.ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrDuplicateClaim):
		return KindDuplicateClaim
	case errors.Is(err, revenue.ErrCompanyContextMissing):
		return KindCompanyContextMissing
	case errors.Is(err, ErrInvalidStateTransition):
		return KindInvalidStateTransition
	case errors.Is(err, ErrEmployeeProfileRequired):
		return KindEmployeeProfileRequired
	default:
		return KindInternal
	}
}
