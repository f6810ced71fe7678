package revenue

import "context"

// TransactionRepository は売上トランザクション永続化の抽象です。
type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) (*Transaction, error)
	FindByID(ctx context.Context, id string) (*Transaction, error)
	// FindFirstByPaymentID は入金に紐づく最古のトランザクションを返します。無ければ ErrTransactionNotFound です。
	FindFirstByPaymentID(ctx context.Context, paymentID string) (*Transaction, error)
	MarkVerified(ctx context.Context, v Verification) (*Transaction, error)
}

// PaymentRepository は入金台帳の読み取り抽象です。
type PaymentRepository interface {
	FindByID(ctx context.Context, id string) (*Payment, error)
}

// Locker は入金単位の実体化を直列化します。
type Locker interface {
	LockPayment(ctx context.Context, paymentID string) error
}
