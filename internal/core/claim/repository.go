package claim

import "context"

// Repository は売上請求の永続化抽象です。
//
// Create は (employeeID, revenueTransactionID) が REJECTED 以外で重複する場合 ErrDuplicateClaim を返します。
// この制約はストレージ側で保証されなければなりません。
type Repository interface {
	Create(ctx context.Context, c *Claim) (*Claim, error)
	FindByID(ctx context.Context, id string) (*Claim, error)
	// FindByIDForUpdate は請求行を排他ロックして返します。トランザクション内で呼び出します。
	FindByIDForUpdate(ctx context.Context, id string) (*Claim, error)
	FindActiveByEmployeeAndTransaction(ctx context.Context, employeeID, transactionID string) (*Claim, error)
	UpdateReview(ctx context.Context, c *Claim) (*Claim, error)
	List(ctx context.Context, filter ListClaimsFilter) ([]*Claim, string, error)
}

// ListClaimsFilter は一覧取得用フィルタです。CompanyID が nil の場合は会社で絞り込みません。
type ListClaimsFilter struct {
	CompanyID   *string
	EmployeeIDs []string
	EmployeeID  *string
	Status      *Status
	Limit       int
	Offset      int
}
