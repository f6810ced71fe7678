package revenue

import "errors"

var (
	ErrMissingTarget         = errors.New("revenue: transaction or payment reference is required")
	ErrTransactionNotFound   = errors.New("revenue: transaction not found")
	ErrPaymentNotFound       = errors.New("revenue: payment not found")
	ErrCompanyContextMissing = errors.New("revenue: company context missing")
	ErrInvalidAmount         = errors.New("revenue: invalid amount")
)
