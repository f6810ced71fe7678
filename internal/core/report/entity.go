package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkReport は業務報告です。本サブシステムは RevenueGenerated のみを書き込みます。
type WorkReport struct {
	ID               string
	CompanyID        string
	EmployeeID       string
	RevenueGenerated decimal.Decimal
	UpdatedAt        time.Time
}
