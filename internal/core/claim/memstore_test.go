package claim

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	"github.com/shopspring/decimal"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

// memStore is an in-memory implementation of every repository the service touches.
// Its transaction manager snapshots state and restores it when fn fails.
type memStore struct {
	claims   map[string]*Claim
	order    []string
	txns     map[string]*revenue.Transaction
	txnOrder []string
	payments map[string]*revenue.Payment
	reports  map[string]*report.WorkReport
	profiles map[string]*access.Profile
	seq      int

	failMarkVerified error
	failSum          error
	depth            int
	commits          int
	rollbacks        int
}

func newMemStore() *memStore {
	return &memStore{
		claims:   make(map[string]*Claim),
		txns:     make(map[string]*revenue.Transaction),
		payments: make(map[string]*revenue.Payment),
		reports:  make(map[string]*report.WorkReport),
		profiles: make(map[string]*access.Profile),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

type memSnapshot struct {
	claims   map[string]Claim
	order    []string
	txns     map[string]revenue.Transaction
	txnOrder []string
	reports  map[string]report.WorkReport
	profiles map[string]access.Profile
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		claims:   make(map[string]Claim, len(m.claims)),
		order:    append([]string(nil), m.order...),
		txns:     make(map[string]revenue.Transaction, len(m.txns)),
		txnOrder: append([]string(nil), m.txnOrder...),
		reports:  make(map[string]report.WorkReport, len(m.reports)),
		profiles: make(map[string]access.Profile, len(m.profiles)),
	}
	for k, v := range m.claims {
		s.claims[k] = *v
	}
	for k, v := range m.txns {
		s.txns[k] = *v
	}
	for k, v := range m.reports {
		s.reports[k] = *v
	}
	for k, v := range m.profiles {
		s.profiles[k] = *v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.claims = make(map[string]*Claim, len(s.claims))
	for k, v := range s.claims {
		c := v
		m.claims[k] = &c
	}
	m.order = s.order
	m.txns = make(map[string]*revenue.Transaction, len(s.txns))
	for k, v := range s.txns {
		t := v
		m.txns[k] = &t
	}
	m.txnOrder = s.txnOrder
	m.reports = make(map[string]*report.WorkReport, len(s.reports))
	for k, v := range s.reports {
		r := v
		m.reports[k] = &r
	}
	m.profiles = make(map[string]*access.Profile, len(s.profiles))
	for k, v := range s.profiles {
		p := v
		m.profiles[k] = &p
	}
}

// TransactionManager

func (m *memStore) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	return m.WithinReadWrite(ctx, fn)
}

func (m *memStore) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if m.depth > 0 {
		return fn(ctx)
	}
	snap := m.snapshot()
	m.depth++
	err := fn(ctx)
	m.depth--
	if err != nil {
		m.restore(snap)
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

// claim.Repository

func cloneClaim(c *Claim) *Claim {
	out := *c
	return &out
}

func (m *memStore) Create(_ context.Context, c *Claim) (*Claim, error) {
	for _, existing := range m.claims {
		if existing.Status != StatusRejected && existing.EmployeeID == c.EmployeeID && existing.RevenueTransactionID == c.RevenueTransactionID {
			return nil, ErrDuplicateClaim
		}
	}
	clone := cloneClaim(c)
	clone.ID = m.nextID("claim")
	m.claims[clone.ID] = clone
	m.order = append(m.order, clone.ID)
	return cloneClaim(clone), nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	return cloneClaim(c), nil
}

func (m *memStore) FindByIDForUpdate(ctx context.Context, id string) (*Claim, error) {
	return m.FindByID(ctx, id)
}

func (m *memStore) FindActiveByEmployeeAndTransaction(_ context.Context, employeeID, transactionID string) (*Claim, error) {
	for _, id := range m.order {
		c := m.claims[id]
		if c.Status != StatusRejected && c.EmployeeID == employeeID && c.RevenueTransactionID == transactionID {
			return cloneClaim(c), nil
		}
	}
	return nil, ErrClaimNotFound
}

func (m *memStore) UpdateReview(_ context.Context, c *Claim) (*Claim, error) {
	if _, ok := m.claims[c.ID]; !ok {
		return nil, ErrClaimNotFound
	}
	m.claims[c.ID] = cloneClaim(c)
	return cloneClaim(c), nil
}

func (m *memStore) List(_ context.Context, filter ListClaimsFilter) ([]*Claim, string, error) {
	allowed := make(map[string]struct{}, len(filter.EmployeeIDs))
	for _, id := range filter.EmployeeIDs {
		allowed[id] = struct{}{}
	}

	var filtered []*Claim
	for _, id := range m.order {
		c := m.claims[id]
		if filter.CompanyID != nil && c.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.EmployeeIDs != nil {
			if _, ok := allowed[c.EmployeeID]; !ok {
				continue
			}
		}
		if filter.EmployeeID != nil && c.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		filtered = append(filtered, cloneClaim(c))
	}

	if filter.Offset > len(filtered) {
		return []*Claim{}, "", nil
	}
	end := filter.Offset + filter.Limit
	if end > len(filtered) {
		end = len(filtered)
	}
	next := ""
	if end < len(filtered) {
		next = strconv.Itoa(end)
	}
	return filtered[filter.Offset:end], next, nil
}

// revenue repositories, exposed through adapters so method names do not clash.

type memTxns struct{ m *memStore }

func (r memTxns) Create(_ context.Context, t *revenue.Transaction) (*revenue.Transaction, error) {
	clone := *t
	clone.ID = r.m.nextID("txn")
	r.m.txns[clone.ID] = &clone
	r.m.txnOrder = append(r.m.txnOrder, clone.ID)
	out := clone
	return &out, nil
}

func (r memTxns) FindByID(_ context.Context, id string) (*revenue.Transaction, error) {
	t, ok := r.m.txns[id]
	if !ok {
		return nil, revenue.ErrTransactionNotFound
	}
	out := *t
	return &out, nil
}

func (r memTxns) FindFirstByPaymentID(_ context.Context, paymentID string) (*revenue.Transaction, error) {
	for _, id := range r.m.txnOrder {
		t := r.m.txns[id]
		if t.PaymentID != nil && *t.PaymentID == paymentID {
			out := *t
			return &out, nil
		}
	}
	return nil, revenue.ErrTransactionNotFound
}

func (r memTxns) MarkVerified(_ context.Context, v revenue.Verification) (*revenue.Transaction, error) {
	if r.m.failMarkVerified != nil {
		return nil, r.m.failMarkVerified
	}
	t, ok := r.m.txns[v.TransactionID]
	if !ok {
		return nil, revenue.ErrTransactionNotFound
	}
	at := v.VerifiedAt
	by := v.ApprovedBy
	t.Status = revenue.StatusVerified
	t.VerificationStatus = revenue.VerificationVerified
	t.VerifiedAt = &at
	t.ApprovedByManagerID = &by
	t.UpdatedAt = at
	out := *t
	return &out, nil
}

type memPayments struct{ m *memStore }

func (r memPayments) FindByID(_ context.Context, id string) (*revenue.Payment, error) {
	p, ok := r.m.payments[id]
	if !ok {
		return nil, revenue.ErrPaymentNotFound
	}
	return p, nil
}

type memReports struct{ m *memStore }

func (r memReports) FindByID(_ context.Context, id string) (*report.WorkReport, error) {
	rep, ok := r.m.reports[id]
	if !ok {
		return nil, report.ErrWorkReportNotFound
	}
	out := *rep
	return &out, nil
}

func (r memReports) LockByID(ctx context.Context, id string) (*report.WorkReport, error) {
	return r.FindByID(ctx, id)
}

func (r memReports) SumApprovedClaims(_ context.Context, reportID string) (decimal.Decimal, error) {
	if r.m.failSum != nil {
		return decimal.Zero, r.m.failSum
	}
	total := decimal.Zero
	for _, c := range r.m.claims {
		if c.Status == StatusApproved && c.WorkReportID != nil && *c.WorkReportID == reportID {
			total = total.Add(c.ClaimAmount)
		}
	}
	return total, nil
}

func (r memReports) UpdateRevenueGenerated(_ context.Context, id string, amount decimal.Decimal, at time.Time) (*report.WorkReport, error) {
	rep, ok := r.m.reports[id]
	if !ok {
		return nil, report.ErrWorkReportNotFound
	}
	rep.RevenueGenerated = amount
	rep.UpdatedAt = at
	out := *rep
	return &out, nil
}

type memDirectory struct{ m *memStore }

func (d memDirectory) FindProfileByID(_ context.Context, id string) (*access.Profile, error) {
	p, ok := d.m.profiles[id]
	if !ok {
		return nil, access.ErrProfileNotFound
	}
	out := *p
	return &out, nil
}

func (d memDirectory) FindProfileByUserID(_ context.Context, userID string) (*access.Profile, error) {
	ids := make([]string, 0, len(d.m.profiles))
	for id := range d.m.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p := d.m.profiles[id]; p.UserID == userID {
			out := *p
			return &out, nil
		}
	}
	return nil, access.ErrProfileNotFound
}

func (d memDirectory) ListDirectReports(_ context.Context, companyID string, managerIDs []string) ([]*access.Profile, error) {
	managers := make(map[string]struct{}, len(managerIDs))
	for _, id := range managerIDs {
		managers[id] = struct{}{}
	}
	var out []*access.Profile
	for _, p := range d.m.profiles {
		if p.ManagerID == nil || p.CompanyID != companyID {
			continue
		}
		if _, ok := managers[*p.ManagerID]; ok {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (d memDirectory) CreateProfile(_ context.Context, p *access.Profile) (*access.Profile, error) {
	for _, existing := range d.m.profiles {
		if existing.UserID == p.UserID {
			return nil, fmt.Errorf("profile for user %s already exists", p.UserID)
		}
	}
	clone := *p
	clone.ID = d.m.nextID("emp")
	d.m.profiles[clone.ID] = &clone
	out := clone
	return &out, nil
}

// fixture wiring

type fixture struct {
	store *memStore
	svc   *Service
	now   time.Time
}

func newFixture(opts ...func(*Dependencies)) *fixture {
	store := newMemStore()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := &stubClock{now: now}
	dir := memDirectory{m: store}

	deps := Dependencies{
		Claims:       store,
		Transactions: memTxns{m: store},
		Reports:      memReports{m: store},
		Directory:    dir,
		Scopes:       access.NewResolver(dir),
		Resolver:     revenue.NewResolver(memTxns{m: store}, memPayments{m: store}, nil, clock, store),
		Reconciler:   report.NewAggregator(memReports{m: store}, clock, store, nil),
		Clock:        clock,
		TX:           store,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc := NewService(deps)
	return &fixture{store: store, svc: svc, now: now}
}

func (f *fixture) addProfile(id, userID, companyID, managerID string) *access.Profile {
	p := &access.Profile{ID: id, UserID: userID, CompanyID: companyID}
	if managerID != "" {
		p.ManagerID = &managerID
	}
	f.store.profiles[id] = p
	return p
}

func (f *fixture) addTransaction(id, companyID string, amount int64) *revenue.Transaction {
	t := &revenue.Transaction{
		ID:                 id,
		CompanyID:          companyID,
		Amount:             decimal.NewFromInt(amount),
		Currency:           "JPY",
		Status:             revenue.StatusPending,
		VerificationStatus: revenue.VerificationUnverified,
	}
	f.store.txns[id] = t
	f.store.txnOrder = append(f.store.txnOrder, id)
	return t
}

func (f *fixture) addReport(id, companyID string) *report.WorkReport {
	r := &report.WorkReport{ID: id, CompanyID: companyID}
	f.store.reports[id] = r
	return r
}

func (f *fixture) addApprovedClaim(employeeID, txnID, reportID string, amount int64) *Claim {
	c := &Claim{
		ID:                   f.store.nextID("claim"),
		CompanyID:            f.store.txns[txnID].CompanyID,
		EmployeeID:           employeeID,
		RevenueTransactionID: txnID,
		WorkReportID:         &reportID,
		ClaimAmount:          decimal.NewFromInt(amount),
		Status:               StatusApproved,
	}
	f.store.claims[c.ID] = c
	f.store.order = append(f.store.order, c.ID)
	return c
}
