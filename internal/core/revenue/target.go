package revenue

// Target は請求対象の指定方法です。ByTransaction か ByPayment のいずれかです。
type Target interface {
	isTarget()
}

// ByTransaction は既存の売上トランザクションを直接指定します。
type ByTransaction struct {
	TransactionID string
}

// ByPayment は入金を指定し、対応する売上トランザクションを解決させます。
type ByPayment struct {
	PaymentID string
}

func (ByTransaction) isTarget() {}
func (ByPayment) isTarget()     {}
