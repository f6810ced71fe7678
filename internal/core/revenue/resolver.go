package revenue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/revenue-claims/internal/core/access"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

type noopLocker struct{}

func (noopLocker) LockPayment(context.Context, string) error { return nil }

// Resolver は請求対象を売上トランザクションへ解決します。
//
// 入金指定の場合は一度だけ実体化します: 既に紐づくトランザクションがあれば最古のものを再利用し、
// 無ければ入金の金額・通貨・日付・支払方法から新規に作成します。
type Resolver struct {
	txns     TransactionRepository
	payments PaymentRepository
	locker   Locker
	clock    Clock
	tx       TransactionManager
}

// NewResolver は Resolver を生成します。
func NewResolver(txns TransactionRepository, payments PaymentRepository, locker Locker, clock Clock, tx TransactionManager) *Resolver {
	if locker == nil {
		locker = noopLocker{}
	}
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Resolver{txns: txns, payments: payments, locker: locker, clock: clock, tx: tx}
}

// Resolve は target に対応する売上トランザクションを返します。
func (r *Resolver) Resolve(ctx context.Context, target Target, actor access.Actor) (*Transaction, error) {
	switch t := target.(type) {
	case ByTransaction:
		id := strings.TrimSpace(t.TransactionID)
		if id == "" {
			return nil, ErrMissingTarget
		}
		return r.txns.FindByID(ctx, id)
	case ByPayment:
		id := strings.TrimSpace(t.PaymentID)
		if id == "" {
			return nil, ErrMissingTarget
		}
		return r.materialize(ctx, id, actor)
	default:
		return nil, ErrMissingTarget
	}
}

func (r *Resolver) materialize(ctx context.Context, paymentID string, actor access.Actor) (*Transaction, error) {
	var resolved *Transaction
	if err := r.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		payment, err := r.payments.FindByID(txCtx, paymentID)
		if err != nil {
			return err
		}

		if err := r.locker.LockPayment(txCtx, payment.ID); err != nil {
			return err
		}

		existing, err := r.txns.FindFirstByPaymentID(txCtx, payment.ID)
		switch {
		case err == nil:
			resolved = existing
			return nil
		case !errors.Is(err, ErrTransactionNotFound):
			return err
		}

		companyID := companyForPayment(payment, actor)
		if companyID == "" {
			return fmt.Errorf("payment %s: %w", payment.ID, ErrCompanyContextMissing)
		}
		if err := ValidateAmount(payment.Amount); err != nil {
			return fmt.Errorf("payment %s: %w", payment.ID, err)
		}

		now := r.clock.Now()
		paymentRef := payment.ID
		created, err := r.txns.Create(txCtx, &Transaction{
			CompanyID:          companyID,
			PaymentID:          &paymentRef,
			Amount:             payment.Amount,
			Currency:           payment.Currency,
			PaymentMethod:      payment.PaymentMethod,
			TransactionDate:    payment.PaymentDate,
			Status:             StatusPending,
			VerificationStatus: VerificationUnverified,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return err
		}
		resolved = created
		return nil
	}); err != nil {
		return nil, err
	}

	return resolved, nil
}

func companyForPayment(p *Payment, actor access.Actor) string {
	if p.CompanyID != nil && strings.TrimSpace(*p.CompanyID) != "" {
		return strings.TrimSpace(*p.CompanyID)
	}
	return strings.TrimSpace(actor.CompanyID)
}
