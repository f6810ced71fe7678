package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	pgdb "github.com/ogurasousui/revenue-claims/internal/platform/db/postgres"
	"github.com/shopspring/decimal"
)

const workReportColumns = `id, company_id, employee_id, revenue_generated::text, updated_at`

const (
	selectWorkReportSQL = `SELECT ` + workReportColumns + ` FROM work_reports WHERE id = $1`

	lockWorkReportSQL = `SELECT ` + workReportColumns + ` FROM work_reports WHERE id = $1 FOR UPDATE`

	sumApprovedClaimsSQL = `SELECT COALESCE(SUM(claim_amount), 0)::text FROM revenue_claims WHERE work_report_id = $1 AND status = 'APPROVED'`

	updateRevenueGeneratedSQL = `UPDATE work_reports SET revenue_generated = $1::numeric, updated_at = $2 WHERE id = $3
RETURNING ` + workReportColumns
)

// WorkReportRepository は業務報告の PostgreSQL 実装です。
type WorkReportRepository struct {
	pool pgdb.Queryer
}

// NewWorkReportRepository は WorkReportRepository を生成します。
func NewWorkReportRepository(pool pgdb.Queryer) *WorkReportRepository {
	return &WorkReportRepository{pool: pool}
}

// FindByID は ID で業務報告を取得します。
func (r *WorkReportRepository) FindByID(ctx context.Context, id string) (*report.WorkReport, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	return scanWorkReport(exec.QueryRow(ctx, selectWorkReportSQL, id))
}

// LockByID は業務報告行を FOR UPDATE でロックします。同一報告の再集計はここで直列化されます。
func (r *WorkReportRepository) LockByID(ctx context.Context, id string) (*report.WorkReport, error) {
	if !pgdb.InTransaction(ctx) {
		return nil, pgdb.ErrLockOutsideTransaction
	}
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	return scanWorkReport(exec.QueryRow(ctx, lockWorkReportSQL, id))
}

// SumApprovedClaims は報告を参照する APPROVED 請求の合計額を返します。
func (r *WorkReportRepository) SumApprovedClaims(ctx context.Context, reportID string) (decimal.Decimal, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)

	var raw string
	if err := exec.QueryRow(ctx, sumApprovedClaimsSQL, reportID).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return parseAmount(raw)
}

// UpdateRevenueGenerated は集計結果を書き込みます。
func (r *WorkReportRepository) UpdateRevenueGenerated(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (*report.WorkReport, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	return scanWorkReport(exec.QueryRow(ctx, updateRevenueGeneratedSQL, amount.String(), at, id))
}

func scanWorkReport(row pgx.Row) (*report.WorkReport, error) {
	var (
		w         report.WorkReport
		revenue   string
		updatedAt time.Time
	)
	if err := row.Scan(&w.ID, &w.CompanyID, &w.EmployeeID, &revenue, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, report.ErrWorkReportNotFound
		}
		return nil, err
	}

	parsed, err := parseAmount(revenue)
	if err != nil {
		return nil, err
	}
	w.RevenueGenerated = parsed
	w.UpdatedAt = updatedAt.UTC()
	return &w, nil
}
