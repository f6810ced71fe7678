package access

import "sort"

// Scope はアクターに適用する可視範囲です。
type Scope struct {
	Tier      Tier
	CompanyID string
	// ProfileID はアクター自身のプロファイル ID です。プロファイルが無い場合は空です。
	ProfileID string
	members   map[string]struct{}
}

// IsGlobal は会社を跨いだ操作が許可されているかを返します。
func (s Scope) IsGlobal() bool {
	return s.Tier == TierGlobal
}

// CoversCompany は companyID の資源に触れられるかを返します。
func (s Scope) CoversCompany(companyID string) bool {
	switch s.Tier {
	case TierGlobal:
		return true
	case TierNone:
		return false
	default:
		return companyID != "" && companyID == s.CompanyID
	}
}

// CoversProfile は指定の社員プロファイルが範囲内かを返します。
func (s Scope) CoversProfile(p *Profile) bool {
	if p == nil {
		return false
	}
	switch s.Tier {
	case TierGlobal:
		return true
	case TierCompany:
		return p.CompanyID == s.CompanyID
	case TierSelf, TierDownline:
		if p.CompanyID != s.CompanyID {
			return false
		}
		_, ok := s.members[p.ID]
		return ok
	default:
		return false
	}
}

// Restricted は社員単位に絞り込まれた範囲かを返します。
func (s Scope) Restricted() bool {
	return s.Tier == TierSelf || s.Tier == TierDownline || s.Tier == TierNone
}

// ProfileIDs は範囲内のプロファイル ID を昇順で返します。Restricted でない場合は nil です。
func (s Scope) ProfileIDs() []string {
	if !s.Restricted() {
		return nil
	}
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
