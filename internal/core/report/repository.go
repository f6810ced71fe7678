package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository は業務報告の永続化抽象です。
type Repository interface {
	FindByID(ctx context.Context, id string) (*WorkReport, error)
	// LockByID は報告行を排他ロックして返します。トランザクション内で呼び出します。
	LockByID(ctx context.Context, id string) (*WorkReport, error)
	// SumApprovedClaims は報告を参照する APPROVED 請求の claimAmount 合計を返します。
	SumApprovedClaims(ctx context.Context, reportID string) (decimal.Decimal, error)
	UpdateRevenueGenerated(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (*WorkReport, error)
}
