package access

import (
	"fmt"
	"strings"
	"time"
)

// Actor は操作を要求した認証済みの主体です。ID はユーザー ID です。
type Actor struct {
	ID        string
	Role      Role
	CompanyID string
}

// Can はアクターが指定の権限を持つかを返します。
func (a Actor) Can(c Capability) bool {
	return a.Role.Can(c)
}

// Authorize は権限が無い場合に ErrAccessDenied を返します。
func (a Actor) Authorize(c Capability) error {
	if a.ID == "" || !a.Can(c) {
		return fmt.Errorf("%w: role %q lacks %s", ErrAccessDenied, a.Role, c)
	}
	return nil
}

// Profile は社員プロファイルです。ManagerID は上長のプロファイル ID です。
type Profile struct {
	ID        string
	UserID    string
	CompanyID string
	ManagerID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewActor は上流ゲートウェイから渡された値でアクターを組み立てます。
// ロールが空のアクターは何の権限も持ちません。未知のロールは ErrInvalidRole です。
func NewActor(id, role, companyID string) (Actor, error) {
	actor := Actor{
		ID:        strings.TrimSpace(id),
		CompanyID: strings.TrimSpace(companyID),
	}
	if strings.TrimSpace(role) == "" {
		return actor, nil
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return Actor{}, err
	}
	actor.Role = parsed
	return actor, nil
}
