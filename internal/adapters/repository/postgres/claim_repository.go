package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	pgdb "github.com/ogurasousui/revenue-claims/internal/platform/db/postgres"
)

const claimColumns = `id, company_id, employee_id, revenue_transaction_id, work_report_id, claim_amount::text, claim_reason, status, reviewed_by, reviewed_at, review_notes, created_by, created_at, updated_at`

const (
	insertClaimSQL = `INSERT INTO revenue_claims (company_id, employee_id, revenue_transaction_id, work_report_id, claim_amount, claim_reason, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
RETURNING ` + claimColumns

	selectClaimByIDSQL = `SELECT ` + claimColumns + ` FROM revenue_claims WHERE id = $1`

	selectClaimForUpdateSQL = `SELECT ` + claimColumns + ` FROM revenue_claims WHERE id = $1 FOR UPDATE`

	selectActiveClaimSQL = `SELECT ` + claimColumns + ` FROM revenue_claims
 WHERE employee_id = $1 AND revenue_transaction_id = $2 AND status <> 'REJECTED'
 ORDER BY created_at, id
 LIMIT 1`

	updateClaimReviewSQL = `UPDATE revenue_claims
   SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4, updated_at = $5
 WHERE id = $6 AND status = 'PENDING'
RETURNING ` + claimColumns
)

const activeClaimIndexName = "revenue_claims_active_employee_transaction_key"

// ClaimRepository は PostgreSQL を利用した売上請求永続化の実装です。
type ClaimRepository struct {
	pool pgdb.Queryer
}

// NewClaimRepository は ClaimRepository を生成します。
func NewClaimRepository(pool pgdb.Queryer) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

// Create は請求を登録します。有効な請求の重複は部分一意インデックスで拒否されます。
func (r *ClaimRepository) Create(ctx context.Context, c *claim.Claim) (*claim.Claim, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, insertClaimSQL,
		c.CompanyID,
		c.EmployeeID,
		c.RevenueTransactionID,
		nullableString(c.WorkReportID),
		c.ClaimAmount.String(),
		nullableString(c.ClaimReason),
		string(c.Status),
		c.CreatedBy,
		c.CreatedAt,
		c.UpdatedAt,
	)

	created, err := scanClaim(row)
	if err != nil {
		return nil, translateClaimPgError(err)
	}
	return created, nil
}

// FindByID は ID で請求を取得します。
func (r *ClaimRepository) FindByID(ctx context.Context, id string) (*claim.Claim, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanClaim(exec.QueryRow(ctx, selectClaimByIDSQL, id))
	if err != nil {
		return nil, translateClaimPgError(err)
	}
	return found, nil
}

// FindByIDForUpdate は請求行を FOR UPDATE でロックして取得します。
func (r *ClaimRepository) FindByIDForUpdate(ctx context.Context, id string) (*claim.Claim, error) {
	if !pgdb.InTransaction(ctx) {
		return nil, pgdb.ErrLockOutsideTransaction
	}
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanClaim(exec.QueryRow(ctx, selectClaimForUpdateSQL, id))
	if err != nil {
		return nil, translateClaimPgError(err)
	}
	return found, nil
}

// FindActiveByEmployeeAndTransaction は REJECTED 以外の請求を返します。無ければ ErrClaimNotFound です。
func (r *ClaimRepository) FindActiveByEmployeeAndTransaction(ctx context.Context, employeeID, transactionID string) (*claim.Claim, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanClaim(exec.QueryRow(ctx, selectActiveClaimSQL, employeeID, transactionID))
	if err != nil {
		return nil, translateClaimPgError(err)
	}
	return found, nil
}

// UpdateReview は PENDING の請求に審査結果を書き込みます。
// 対象が既に PENDING でない場合は ErrInvalidStateTransition を返します。
func (r *ClaimRepository) UpdateReview(ctx context.Context, c *claim.Claim) (*claim.Claim, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, updateClaimReviewSQL,
		string(c.Status),
		nullableString(c.ReviewedBy),
		nullableTime(c.ReviewedAt),
		nullableString(c.ReviewNotes),
		c.UpdatedAt,
		c.ID,
	)

	updated, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, claim.ErrClaimNotFound) {
			return nil, claim.ErrInvalidStateTransition
		}
		return nil, translateClaimPgError(err)
	}
	return updated, nil
}

// List は請求の一覧を新しい順に取得します。
func (r *ClaimRepository) List(ctx context.Context, filter claim.ListClaimsFilter) ([]*claim.Claim, string, error) {
	if filter.Limit <= 0 {
		return nil, "", claim.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", claim.ErrInvalidPageToken
	}

	limitWithBuffer := filter.Limit + 1

	args := make([]any, 0, 6)
	conditions := make([]string, 0, 4)

	if filter.CompanyID != nil {
		args = append(args, *filter.CompanyID)
		conditions = append(conditions, "company_id = "+placeholder(args))
	}
	if filter.EmployeeIDs != nil {
		args = append(args, filter.EmployeeIDs)
		conditions = append(conditions, "employee_id = ANY("+placeholder(args)+")")
	}
	if filter.EmployeeID != nil {
		args = append(args, *filter.EmployeeID)
		conditions = append(conditions, "employee_id = "+placeholder(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, "status = "+placeholder(args))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limitWithBuffer)
	limitPlaceholder := placeholder(args)
	args = append(args, filter.Offset)
	offsetPlaceholder := placeholder(args)

	query := `SELECT ` + claimColumns + ` FROM revenue_claims` + whereClause +
		` ORDER BY created_at DESC, id DESC LIMIT ` + limitPlaceholder + ` OFFSET ` + offsetPlaceholder

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, "", translateClaimPgError(err)
	}
	defer rows.Close()

	claims := make([]*claim.Claim, 0, filter.Limit)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, "", translateClaimPgError(err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", translateClaimPgError(err)
	}

	var nextToken string
	if len(claims) == limitWithBuffer {
		claims = claims[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}

	return claims, nextToken, nil
}

func scanClaim(row pgx.Row) (*claim.Claim, error) {
	var (
		c            claim.Claim
		workReportID sql.NullString
		amount       string
		reason       sql.NullString
		status       string
		reviewedBy   sql.NullString
		reviewedAt   sql.NullTime
		reviewNotes  sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
	)

	if err := row.Scan(
		&c.ID,
		&c.CompanyID,
		&c.EmployeeID,
		&c.RevenueTransactionID,
		&workReportID,
		&amount,
		&reason,
		&status,
		&reviewedBy,
		&reviewedAt,
		&reviewNotes,
		&c.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, claim.ErrClaimNotFound
		}
		return nil, err
	}

	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	c.WorkReportID = stringPtr(workReportID)
	c.ClaimAmount = parsed
	c.ClaimReason = stringPtr(reason)
	c.Status = claim.Status(status)
	c.ReviewedBy = stringPtr(reviewedBy)
	c.ReviewedAt = timePtr(reviewedAt)
	c.ReviewNotes = stringPtr(reviewNotes)
	c.CreatedAt = createdAt.UTC()
	c.UpdatedAt = updatedAt.UTC()
	return &c, nil
}

func translateClaimPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return claim.ErrClaimNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			if pgErr.ConstraintName == "" || pgErr.ConstraintName == activeClaimIndexName {
				return claim.ErrDuplicateClaim
			}
		case foreignKeyViolationCode:
			switch pgErr.ConstraintName {
			case "revenue_claims_employee_id_fkey":
				return claim.ErrEmployeeProfileRequired
			case "revenue_claims_revenue_transaction_id_fkey":
				return revenue.ErrTransactionNotFound
			case "revenue_claims_work_report_id_fkey":
				return report.ErrWorkReportNotFound
			}
		case checkViolationCode:
			if pgErr.ConstraintName == "revenue_claims_claim_amount_check" {
				return revenue.ErrInvalidAmount
			}
			return claim.ErrInvalidStatus
		case numericOverflowCode:
			return fmt.Errorf("%w: %s", revenue.ErrInvalidAmount, pgErr.Message)
		}
	}

	return err
}
