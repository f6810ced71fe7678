package access

import (
	"fmt"
	"strings"
)

// Role は組織内でのアクターの役割です。
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleFinanceAdmin Role = "finance_admin"
	RoleHR           Role = "hr"
	RoleManager      Role = "manager"
	RoleTeamLeader   Role = "team_leader"
	RoleEmployee     Role = "employee"
)

// Capability は操作単位の権限です。ロール名ではなく操作に対して判定します。
type Capability string

const (
	CapabilityListClaims          Capability = "claims:list"
	CapabilityCreateClaim         Capability = "claims:create"
	CapabilityCreateClaimOnBehalf Capability = "claims:create_on_behalf"
	CapabilityReviewClaim         Capability = "claims:review"
	CapabilityRecomputeReport     Capability = "reports:recompute"
)

// Tier は可視範囲の広さを表します。
type Tier int

const (
	TierNone Tier = iota
	TierSelf
	TierDownline
	TierCompany
	TierGlobal
)

func (t Tier) String() string {
	switch t {
	case TierSelf:
		return "self"
	case TierDownline:
		return "downline"
	case TierCompany:
		return "company"
	case TierGlobal:
		return "global"
	default:
		return "none"
	}
}

type rolePolicy struct {
	tier         Tier
	capabilities []Capability
}

var reviewerCapabilities = []Capability{
	CapabilityListClaims,
	CapabilityCreateClaim,
	CapabilityCreateClaimOnBehalf,
	CapabilityReviewClaim,
	CapabilityRecomputeReport,
}

var policies = map[Role]rolePolicy{
	RoleSuperAdmin:   {tier: TierGlobal, capabilities: reviewerCapabilities},
	RoleCompanyAdmin: {tier: TierCompany, capabilities: reviewerCapabilities},
	RoleFinanceAdmin: {tier: TierCompany, capabilities: reviewerCapabilities},
	RoleHR: {tier: TierCompany, capabilities: []Capability{
		CapabilityListClaims,
		CapabilityCreateClaim,
		CapabilityCreateClaimOnBehalf,
	}},
	RoleManager: {tier: TierDownline, capabilities: reviewerCapabilities},
	RoleTeamLeader: {tier: TierDownline, capabilities: []Capability{
		CapabilityListClaims,
		CapabilityCreateClaim,
		CapabilityCreateClaimOnBehalf,
	}},
	RoleEmployee: {tier: TierSelf, capabilities: []Capability{CapabilityCreateClaim}},
}

// ParseRole は文字列をロールに変換します。
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := policies[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return role, nil
}

// Can はロールが指定の権限を持つかを返します。
func (r Role) Can(c Capability) bool {
	policy, ok := policies[r]
	if !ok {
		return false
	}
	for _, granted := range policy.capabilities {
		if granted == c {
			return true
		}
	}
	return false
}

// Tier はロールの可視範囲を返します。未知のロールは TierNone です。
func (r Role) Tier() Tier {
	return policies[r].tier
}
