package claim

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status は売上請求の審査状態です。PENDING が初期状態、APPROVED と REJECTED は終端です。
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus は大文字小文字を無視して Status に変換します。
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !isValidStatus(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// Terminal は以降の遷移が許されない状態かを返します。
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func isValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Claim は社員が売上トランザクションに対して行う帰属の申請です。物理削除はされません。
type Claim struct {
	ID                   string
	CompanyID            string
	EmployeeID           string
	RevenueTransactionID string
	WorkReportID         *string
	ClaimAmount          decimal.Decimal
	ClaimReason          *string
	Status               Status
	ReviewedBy           *string
	ReviewedAt           *time.Time
	ReviewNotes          *string
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
