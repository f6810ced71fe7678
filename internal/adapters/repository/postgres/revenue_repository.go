package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	pgdb "github.com/ogurasousui/revenue-claims/internal/platform/db/postgres"
)

const transactionColumns = `id, company_id, payment_id, amount::text, currency, payment_method, transaction_date, status, verification_status, verified_at, approved_by_manager_id, created_at, updated_at`

const (
	insertTransactionSQL = `INSERT INTO revenue_transactions (company_id, payment_id, amount, currency, payment_method, transaction_date, status, verification_status, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + transactionColumns

	selectTransactionByIDSQL = `SELECT ` + transactionColumns + ` FROM revenue_transactions WHERE id = $1`

	selectFirstTransactionByPaymentSQL = `SELECT ` + transactionColumns + ` FROM revenue_transactions
 WHERE payment_id = $1
 ORDER BY created_at, id
 LIMIT 1`

	markTransactionVerifiedSQL = `UPDATE revenue_transactions
   SET status = 'VERIFIED', verification_status = 'VERIFIED', verified_at = $1, approved_by_manager_id = $2, updated_at = $1
 WHERE id = $3
RETURNING ` + transactionColumns

	selectPaymentByIDSQL = `SELECT id, company_id, amount::text, currency, payment_method, payment_date, provider_reference, notes FROM payments WHERE id = $1`
)

// paymentLockPrefix はアドバイザリロックのキー空間を入金用に区切ります。
const paymentLockPrefix = "payment:"

// RevenueTransactionRepository は売上トランザクションの PostgreSQL 実装です。
type RevenueTransactionRepository struct {
	pool pgdb.Queryer
}

// NewRevenueTransactionRepository は RevenueTransactionRepository を生成します。
func NewRevenueTransactionRepository(pool pgdb.Queryer) *RevenueTransactionRepository {
	return &RevenueTransactionRepository{pool: pool}
}

// Create はトランザクションを登録します。
func (r *RevenueTransactionRepository) Create(ctx context.Context, t *revenue.Transaction) (*revenue.Transaction, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, insertTransactionSQL,
		t.CompanyID,
		nullableString(t.PaymentID),
		t.Amount.String(),
		t.Currency,
		t.PaymentMethod,
		t.TransactionDate,
		string(t.Status),
		string(t.VerificationStatus),
		t.CreatedAt,
		t.UpdatedAt,
	)

	created, err := scanTransaction(row)
	if err != nil {
		return nil, translateRevenuePgError(err)
	}
	return created, nil
}

// FindByID は ID でトランザクションを取得します。
func (r *RevenueTransactionRepository) FindByID(ctx context.Context, id string) (*revenue.Transaction, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanTransaction(exec.QueryRow(ctx, selectTransactionByIDSQL, id))
	if err != nil {
		return nil, translateRevenuePgError(err)
	}
	return found, nil
}

// FindFirstByPaymentID は入金に紐づく最古のトランザクションを取得します。
func (r *RevenueTransactionRepository) FindFirstByPaymentID(ctx context.Context, paymentID string) (*revenue.Transaction, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanTransaction(exec.QueryRow(ctx, selectFirstTransactionByPaymentSQL, paymentID))
	if err != nil {
		return nil, translateRevenuePgError(err)
	}
	return found, nil
}

// MarkVerified はトランザクションを検証済みにします。
func (r *RevenueTransactionRepository) MarkVerified(ctx context.Context, v revenue.Verification) (*revenue.Transaction, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, markTransactionVerifiedSQL, v.VerifiedAt, v.ApprovedBy, v.TransactionID)

	updated, err := scanTransaction(row)
	if err != nil {
		return nil, translateRevenuePgError(err)
	}
	return updated, nil
}

func scanTransaction(row pgx.Row) (*revenue.Transaction, error) {
	var (
		t          revenue.Transaction
		paymentID  sql.NullString
		amount     string
		txnDate    time.Time
		status     string
		verStatus  string
		verifiedAt sql.NullTime
		approvedBy sql.NullString
		createdAt  time.Time
		updatedAt  time.Time
	)

	if err := row.Scan(
		&t.ID,
		&t.CompanyID,
		&paymentID,
		&amount,
		&t.Currency,
		&t.PaymentMethod,
		&txnDate,
		&status,
		&verStatus,
		&verifiedAt,
		&approvedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, revenue.ErrTransactionNotFound
		}
		return nil, err
	}

	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	t.PaymentID = stringPtr(paymentID)
	t.Amount = parsed
	t.TransactionDate = txnDate.UTC()
	t.Status = revenue.Status(status)
	t.VerificationStatus = revenue.VerificationStatus(verStatus)
	t.VerifiedAt = timePtr(verifiedAt)
	t.ApprovedByManagerID = stringPtr(approvedBy)
	t.CreatedAt = createdAt.UTC()
	t.UpdatedAt = updatedAt.UTC()
	return &t, nil
}

func translateRevenuePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return revenue.ErrTransactionNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case foreignKeyViolationCode:
			if pgErr.ConstraintName == "revenue_transactions_payment_id_fkey" {
				return revenue.ErrPaymentNotFound
			}
		case checkViolationCode:
			if pgErr.ConstraintName == "revenue_transactions_amount_check" {
				return revenue.ErrInvalidAmount
			}
		}
	}

	return err
}

// PaymentRepository は入金台帳を読み取る PostgreSQL 実装です。
// 入金単位の直列化に使うアドバイザリロックも提供します。
type PaymentRepository struct {
	pool pgdb.Queryer
}

// NewPaymentRepository は PaymentRepository を生成します。
func NewPaymentRepository(pool pgdb.Queryer) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// FindByID は ID で入金を取得します。
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*revenue.Payment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)

	var (
		p           revenue.Payment
		companyID   sql.NullString
		amount      string
		paymentDate time.Time
		providerRef sql.NullString
		notes       sql.NullString
	)
	if err := exec.QueryRow(ctx, selectPaymentByIDSQL, id).Scan(
		&p.ID,
		&companyID,
		&amount,
		&p.Currency,
		&p.PaymentMethod,
		&paymentDate,
		&providerRef,
		&notes,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, revenue.ErrPaymentNotFound
		}
		return nil, err
	}

	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	p.CompanyID = stringPtr(companyID)
	p.Amount = parsed
	p.PaymentDate = paymentDate.UTC()
	p.ProviderReference = stringPtr(providerRef)
	p.Notes = stringPtr(notes)
	return &p, nil
}

// LockPayment は入金 ID に対するトランザクションスコープのロックを取得します。
func (r *PaymentRepository) LockPayment(ctx context.Context, paymentID string) error {
	return pgdb.AdvisoryXactLock(ctx, paymentLockPrefix+paymentID)
}
