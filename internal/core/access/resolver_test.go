package access

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeDirectory struct {
	profiles  map[string]*Profile
	listCalls int
}

func newFakeDirectory(profiles ...*Profile) *fakeDirectory {
	d := &fakeDirectory{profiles: make(map[string]*Profile)}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *fakeDirectory) FindProfileByID(_ context.Context, id string) (*Profile, error) {
	p, ok := d.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (d *fakeDirectory) FindProfileByUserID(_ context.Context, userID string) (*Profile, error) {
	for _, p := range d.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (d *fakeDirectory) ListDirectReports(_ context.Context, companyID string, managerIDs []string) ([]*Profile, error) {
	d.listCalls++
	managers := make(map[string]struct{}, len(managerIDs))
	for _, id := range managerIDs {
		managers[id] = struct{}{}
	}
	var out []*Profile
	for _, p := range d.profiles {
		if p.ManagerID == nil || p.CompanyID != companyID {
			continue
		}
		if _, ok := managers[*p.ManagerID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeDirectory) CreateProfile(_ context.Context, p *Profile) (*Profile, error) {
	d.profiles[p.ID] = p
	return p, nil
}

type mapCache struct {
	entries map[string][]string
	sets    int
}

func (c *mapCache) GetDownline(_ context.Context, companyID, profileID string) ([]string, bool, error) {
	ids, ok := c.entries[companyID+"/"+profileID]
	return ids, ok, nil
}

func (c *mapCache) SetDownline(_ context.Context, companyID, profileID string, ids []string) error {
	c.sets++
	c.entries[companyID+"/"+profileID] = ids
	return nil
}

func strPtr(s string) *string { return &s }

func profile(id, company string, manager string) *Profile {
	p := &Profile{ID: id, UserID: "user-" + id, CompanyID: company}
	if manager != "" {
		p.ManagerID = strPtr(manager)
	}
	return p
}

// boss -> mid -> leaf, boss -> peer, plus an unrelated profile in another company.
func orgChart() *fakeDirectory {
	return newFakeDirectory(
		profile("boss", "c1", ""),
		profile("mid", "c1", "boss"),
		profile("leaf", "c1", "mid"),
		profile("peer", "c1", "boss"),
		profile("other", "c1", ""),
		profile("foreign", "c2", "boss"),
	)
}

func TestResolver_ManagerGetsTransitiveDownline(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart())
	scope, err := r.Resolve(context.Background(), Actor{ID: "user-boss", Role: RoleManager, CompanyID: "c1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if scope.Tier != TierDownline {
		t.Fatalf("expected downline tier, got %s", scope.Tier)
	}
	want := []string{"boss", "leaf", "mid", "peer"}
	if got := scope.ProfileIDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected members: want %v got %v", want, got)
	}
	if scope.CoversProfile(profile("other", "c1", "")) {
		t.Fatalf("profile outside the downline must not be covered")
	}
	if scope.CoversProfile(profile("foreign", "c2", "boss")) {
		t.Fatalf("profile from another company must not be covered")
	}
}

func TestResolver_IndividualContributorSeesSelfOnly(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart())
	scope, err := r.Resolve(context.Background(), Actor{ID: "user-mid", Role: RoleEmployee, CompanyID: "c1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if got := scope.ProfileIDs(); !reflect.DeepEqual(got, []string{"mid"}) {
		t.Fatalf("expected self only, got %v", got)
	}
	if scope.ProfileID != "mid" {
		t.Fatalf("expected own profile id, got %s", scope.ProfileID)
	}
}

func TestResolver_CompanyAdminCoversWholeCompany(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart())
	scope, err := r.Resolve(context.Background(), Actor{ID: "admin", Role: RoleCompanyAdmin, CompanyID: "c1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if !scope.CoversCompany("c1") || scope.CoversCompany("c2") {
		t.Fatalf("company admin must be bound to own company: %+v", scope)
	}
	if !scope.CoversProfile(profile("other", "c1", "")) {
		t.Fatalf("company admin must cover every profile of the company")
	}
	if scope.ProfileIDs() != nil {
		t.Fatalf("company scope must not enumerate profiles")
	}
}

func TestResolver_SuperAdminIsGlobal(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart())
	scope, err := r.Resolve(context.Background(), Actor{ID: "root", Role: RoleSuperAdmin})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !scope.IsGlobal() || !scope.CoversCompany("c2") {
		t.Fatalf("expected global scope, got %+v", scope)
	}
}

func TestResolver_NoProfileYieldsEmptyScope(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart())
	scope, err := r.Resolve(context.Background(), Actor{ID: "ghost", Role: RoleManager, CompanyID: "c1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if scope.Tier != TierNone {
		t.Fatalf("expected empty scope, got %s", scope.Tier)
	}
	if scope.CoversCompany("c1") {
		t.Fatalf("empty scope must not cover any company")
	}
	if len(scope.ProfileIDs()) != 0 {
		t.Fatalf("empty scope must not contain profiles")
	}
}

func TestResolver_ProfileFromOtherCompanyYieldsEmptyScope(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart())
	scope, err := r.Resolve(context.Background(), Actor{ID: "user-boss", Role: RoleManager, CompanyID: "c2"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if scope.Tier != TierNone {
		t.Fatalf("expected empty scope, got %s", scope.Tier)
	}
}

func TestResolver_RejectsCycle(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory(
		profile("a", "c1", "c"),
		profile("b", "c1", "a"),
		profile("c", "c1", "b"),
	)
	r := NewResolver(dir)

	_, err := r.Resolve(context.Background(), Actor{ID: "user-a", Role: RoleManager, CompanyID: "c1"})
	if !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("expected ErrHierarchyCycle, got %v", err)
	}
	if dir.listCalls > 3 {
		t.Fatalf("cycle detection must stop traversal early, got %d calls", dir.listCalls)
	}
}

func TestResolver_RejectsTooDeepHierarchy(t *testing.T) {
	t.Parallel()

	dir := newFakeDirectory(
		profile("l0", "c1", ""),
		profile("l1", "c1", "l0"),
		profile("l2", "c1", "l1"),
		profile("l3", "c1", "l2"),
	)

	shallow := NewResolver(dir, WithMaxDepth(2))
	if _, err := shallow.Resolve(context.Background(), Actor{ID: "user-l0", Role: RoleTeamLeader, CompanyID: "c1"}); !errors.Is(err, ErrHierarchyTooDeep) {
		t.Fatalf("expected ErrHierarchyTooDeep, got %v", err)
	}

	exact := NewResolver(dir, WithMaxDepth(3))
	scope, err := exact.Resolve(context.Background(), Actor{ID: "user-l0", Role: RoleTeamLeader, CompanyID: "c1"})
	if err != nil {
		t.Fatalf("depth equal to the limit must be accepted: %v", err)
	}
	if len(scope.ProfileIDs()) != 4 {
		t.Fatalf("expected 4 members, got %v", scope.ProfileIDs())
	}
}

func TestResolver_UsesDownlineCache(t *testing.T) {
	t.Parallel()

	dir := orgChart()
	cache := &mapCache{entries: make(map[string][]string)}
	r := NewResolver(dir, WithCache(cache))
	actor := Actor{ID: "user-boss", Role: RoleManager, CompanyID: "c1"}

	if _, err := r.Resolve(context.Background(), actor); err != nil {
		t.Fatalf("first Resolve returned error: %v", err)
	}
	calls := dir.listCalls

	scope, err := r.Resolve(context.Background(), actor)
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if dir.listCalls != calls {
		t.Fatalf("expected cached downline, directory queried %d more times", dir.listCalls-calls)
	}
	if cache.sets != 1 {
		t.Fatalf("expected a single cache write, got %d", cache.sets)
	}
	if len(scope.ProfileIDs()) != 4 {
		t.Fatalf("unexpected cached members: %v", scope.ProfileIDs())
	}
}

func TestResolver_NilCacheOptionIsIgnored(t *testing.T) {
	t.Parallel()

	r := NewResolver(orgChart(), WithCache(nil))
	if r.cache != nil {
		t.Fatalf("expected no cache, got %T", r.cache)
	}

	scope, err := r.Resolve(context.Background(), Actor{ID: "user-boss", Role: RoleManager, CompanyID: "c1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(scope.ProfileIDs()) != 4 {
		t.Fatalf("unexpected members: %v", scope.ProfileIDs())
	}
}

func TestRoleCapabilities(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role   Role
		review bool
		list   bool
		create bool
	}{
		{RoleSuperAdmin, true, true, true},
		{RoleCompanyAdmin, true, true, true},
		{RoleFinanceAdmin, true, true, true},
		{RoleManager, true, true, true},
		{RoleTeamLeader, false, true, true},
		{RoleHR, false, true, true},
		{RoleEmployee, false, false, true},
		{Role("intern"), false, false, false},
	}

	for _, tc := range cases {
		if got := tc.role.Can(CapabilityReviewClaim); got != tc.review {
			t.Errorf("%s review: want %t got %t", tc.role, tc.review, got)
		}
		if got := tc.role.Can(CapabilityListClaims); got != tc.list {
			t.Errorf("%s list: want %t got %t", tc.role, tc.list, got)
		}
		if got := tc.role.Can(CapabilityCreateClaim); got != tc.create {
			t.Errorf("%s create: want %t got %t", tc.role, tc.create, got)
		}
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := ParseRole(" Manager ")
	if err != nil || role != RoleManager {
		t.Fatalf("expected manager, got %q (%v)", role, err)
	}
	if _, err := ParseRole("wizard"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestActorAuthorize(t *testing.T) {
	t.Parallel()

	if err := (Actor{ID: "u1", Role: RoleEmployee}).Authorize(CapabilityReviewClaim); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if err := (Actor{Role: RoleCompanyAdmin}).Authorize(CapabilityReviewClaim); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("anonymous actor must be denied, got %v", err)
	}
	if err := (Actor{ID: "u1", Role: RoleFinanceAdmin}).Authorize(CapabilityReviewClaim); err != nil {
		t.Fatalf("finance admin must be allowed: %v", err)
	}
}

func TestNewActor(t *testing.T) {
	t.Parallel()

	actor, err := NewActor(" user-1 ", "Finance_Admin", " company-1 ")
	if err != nil {
		t.Fatalf("NewActor returned error: %v", err)
	}
	if actor.ID != "user-1" || actor.Role != RoleFinanceAdmin || actor.CompanyID != "company-1" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	anonymous, err := NewActor("user-2", "", "")
	if err != nil {
		t.Fatalf("NewActor without role returned error: %v", err)
	}
	if anonymous.Can(CapabilityCreateClaim) {
		t.Fatalf("actor without role must not have capabilities")
	}

	if _, err := NewActor("user-3", "wizard", ""); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
