package revenue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status は売上トランザクションの処理状態です。
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
)

// VerificationStatus は売上トランザクションの検証状態です。
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationVerified   VerificationStatus = "VERIFIED"
)

// Transaction は帰属対象となる会社単位の売上イベントです。CompanyID は設定後に変更されません。
type Transaction struct {
	ID                  string
	CompanyID           string
	PaymentID           *string
	Amount              decimal.Decimal
	Currency            string
	PaymentMethod       string
	TransactionDate     time.Time
	Status              Status
	VerificationStatus  VerificationStatus
	VerifiedAt          *time.Time
	ApprovedByManagerID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Payment は上流の入金台帳が保持する入金記録です。本サブシステムからは読み取り専用です。
type Payment struct {
	ID                string
	CompanyID         *string
	Amount            decimal.Decimal
	Currency          string
	PaymentMethod     string
	PaymentDate       time.Time
	ProviderReference *string
	Notes             *string
}

// Verification は承認時にトランザクションへ適用する検証情報です。
type Verification struct {
	TransactionID string
	ApprovedBy    string
	VerifiedAt    time.Time
}

// 金額は NUMERIC(18, 2) で保存されます。
const (
	AmountScale            = 2
	maxAmountIntegerDigits = 16
)

var maxAmountExclusive = decimal.New(1, maxAmountIntegerDigits)

// ValidateAmount は金額が正で、小数 2 桁・整数 16 桁以内に収まるかを検証します。
// 保存時の丸めや桁あふれを避けるため、境界で拒否します。
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, d)
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d, AmountScale)
	}
	if d.GreaterThanOrEqual(maxAmountExclusive) {
		return fmt.Errorf("%w: %s exceeds %d integer digits", ErrInvalidAmount, d, maxAmountIntegerDigits)
	}
	return nil
}
