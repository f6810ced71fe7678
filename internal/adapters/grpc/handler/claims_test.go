package handler

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	testClaimID       = "6b1f3c8e-2a43-4a8e-9d0f-4c1b5e7a9f01"
	testTransactionID = "0d9c7b2a-5e6f-4a1b-8c3d-2e4f6a8b0c12"
	testPaymentID     = "9a8b7c6d-5e4f-4a3b-9c1d-0e2f4a6b8c23"
	testReportID      = "3c2b1a09-8f7e-4d6c-8b5a-493827160534"
	testCompanyID     = "c0ffee00-1111-4222-8333-444455556666"
)

type stubClaimUseCase struct {
	createInput claim.CreateClaimInput
	createActor access.Actor
	createOut   *claim.Claim
	createErr   error

	getInput claim.GetClaimInput
	getOut   *claim.Claim
	getErr   error

	listInput claim.ListClaimsInput
	listOut   *claim.ListClaimsResult
	listErr   error

	transitionInput claim.TransitionClaimInput
	transitionOut   *claim.Claim
	transitionErr   error

	recomputeInput claim.RecomputeWorkReportInput
	recomputeOut   *report.WorkReport
	recomputeErr   error
}

func (s *stubClaimUseCase) CreateClaim(ctx context.Context, in claim.CreateClaimInput, actor access.Actor) (*claim.Claim, error) {
	s.createInput = in
	s.createActor = actor
	return s.createOut, s.createErr
}

func (s *stubClaimUseCase) GetClaim(ctx context.Context, in claim.GetClaimInput, actor access.Actor) (*claim.Claim, error) {
	s.getInput = in
	return s.getOut, s.getErr
}

func (s *stubClaimUseCase) ListClaims(ctx context.Context, in claim.ListClaimsInput, actor access.Actor) (*claim.ListClaimsResult, error) {
	s.listInput = in
	return s.listOut, s.listErr
}

func (s *stubClaimUseCase) TransitionClaim(ctx context.Context, in claim.TransitionClaimInput, reviewer access.Actor) (*claim.Claim, error) {
	s.transitionInput = in
	return s.transitionOut, s.transitionErr
}

func (s *stubClaimUseCase) RecomputeWorkReport(ctx context.Context, in claim.RecomputeWorkReportInput, actor access.Actor) (*report.WorkReport, error) {
	s.recomputeInput = in
	return s.recomputeOut, s.recomputeErr
}

func sampleClaim(st claim.Status) *claim.Claim {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return &claim.Claim{
		ID:                   testClaimID,
		CompanyID:            testCompanyID,
		EmployeeID:           "emp-1",
		RevenueTransactionID: testTransactionID,
		ClaimAmount:          decimal.RequireFromString("5000"),
		Status:               st,
		CreatedBy:            "user-1",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func actorContext(role string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		MetadataActorID, "user-1",
		MetadataActorRole, role,
		MetadataCompanyID, testCompanyID,
	))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	return s
}

func assertCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != want {
		t.Fatalf("expected code %v, got %v (%s)", want, st.Code(), st.Message())
	}
}

func TestClaimsGrpcHandler_CreateClaim(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{createOut: sampleClaim(claim.StatusPending)}
	h := NewClaimsGrpcHandler(stub, nil)

	resp, err := h.CreateClaim(actorContext("employee"), mustStruct(t, map[string]any{
		"revenueTransactionId": testTransactionID,
		"paymentId":            testPaymentID,
		"claimAmount":          "1250.50",
		"claimReason":          "closed the deal",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, ok := stub.createInput.Target.(revenue.ByTransaction)
	if !ok || target.TransactionID != testTransactionID {
		t.Fatalf("expected transaction target, got %#v", stub.createInput.Target)
	}
	if stub.createInput.ClaimAmount == nil || !stub.createInput.ClaimAmount.Equal(decimal.RequireFromString("1250.5")) {
		t.Fatalf("unexpected claim amount: %v", stub.createInput.ClaimAmount)
	}
	if stub.createActor.Role != access.RoleEmployee || stub.createActor.CompanyID != testCompanyID {
		t.Fatalf("unexpected actor: %+v", stub.createActor)
	}

	fields := resp.GetFields()
	if got := fields["status"].GetStringValue(); got != "PENDING" {
		t.Fatalf("expected PENDING, got %q", got)
	}
	if got := fields["claimAmount"].GetStringValue(); got != "5000" {
		t.Fatalf("expected claimAmount 5000, got %q", got)
	}
	if _, ok := fields["reviewedAt"]; ok {
		t.Fatalf("reviewedAt should be omitted for pending claims")
	}
}

func TestClaimsGrpcHandler_CreateClaimByPayment(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{createOut: sampleClaim(claim.StatusPending)}
	h := NewClaimsGrpcHandler(stub, nil)

	_, err := h.CreateClaim(actorContext("manager"), mustStruct(t, map[string]any{
		"paymentId":   testPaymentID,
		"claimAmount": 300,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target, ok := stub.createInput.Target.(revenue.ByPayment)
	if !ok || target.PaymentID != testPaymentID {
		t.Fatalf("expected payment target, got %#v", stub.createInput.Target)
	}
	if !stub.createInput.ClaimAmount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected claim amount: %v", stub.createInput.ClaimAmount)
	}
}

func TestClaimsGrpcHandler_CreateClaimInvalidArgument(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		fields map[string]any
	}{
		{name: "non uuid transaction", fields: map[string]any{"revenueTransactionId": "txn-1"}},
		{name: "numeric reason", fields: map[string]any{"paymentId": testPaymentID, "claimReason": 12}},
		{name: "bad amount", fields: map[string]any{"paymentId": testPaymentID, "claimAmount": "abc"}},
	}

	nonFinite := map[string]float64{
		"nan amount":          math.NaN(),
		"positive inf amount": math.Inf(1),
		"negative inf amount": math.Inf(-1),
	}
	for name, v := range nonFinite {
		cases = append(cases, struct {
			name   string
			fields map[string]any
		}{name: name, fields: map[string]any{"paymentId": testPaymentID, "claimAmount": v}})
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubClaimUseCase{}
			h := NewClaimsGrpcHandler(stub, nil)
			_, err := h.CreateClaim(actorContext("employee"), mustStruct(t, tc.fields))
			assertCode(t, err, codes.InvalidArgument)
		})
	}
}

func TestClaimsGrpcHandler_ErrorKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "duplicate", err: claim.ErrDuplicateClaim, want: codes.AlreadyExists},
		{name: "not found", err: revenue.ErrTransactionNotFound, want: codes.NotFound},
		{name: "denied", err: access.ErrAccessDenied, want: codes.PermissionDenied},
		{name: "company", err: revenue.ErrCompanyContextMissing, want: codes.FailedPrecondition},
		{name: "profile", err: claim.ErrEmployeeProfileRequired, want: codes.FailedPrecondition},
		{name: "internal", err: errors.New("connection reset"), want: codes.Internal},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubClaimUseCase{createErr: tc.err}
			h := NewClaimsGrpcHandler(stub, nil)
			_, err := h.CreateClaim(actorContext("employee"), mustStruct(t, map[string]any{"paymentId": testPaymentID}))
			assertCode(t, err, tc.want)
		})
	}
}

func TestClaimsGrpcHandler_InternalErrorHidesDetail(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{getErr: errors.New("pq: password authentication failed")}
	h := NewClaimsGrpcHandler(stub, nil)

	_, err := h.GetClaim(actorContext("employee"), mustStruct(t, map[string]any{"id": testClaimID}))
	assertCode(t, err, codes.Internal)
	if got := status.Convert(err).Message(); got != "INTERNAL: internal error" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestClaimsGrpcHandler_TransitionClaim(t *testing.T) {
	t.Parallel()

	approved := sampleClaim(claim.StatusApproved)
	reviewedAt := approved.CreatedAt.Add(time.Hour)
	reviewer := "user-2"
	approved.ReviewedAt = &reviewedAt
	approved.ReviewedBy = &reviewer

	stub := &stubClaimUseCase{transitionOut: approved}
	h := NewClaimsGrpcHandler(stub, nil)

	resp, err := h.TransitionClaim(actorContext("finance_admin"), mustStruct(t, map[string]any{
		"id":          testClaimID,
		"status":      "approved",
		"reviewNotes": "ok",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.transitionInput.Status != claim.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", stub.transitionInput.Status)
	}
	if stub.transitionInput.ReviewNotes == nil || *stub.transitionInput.ReviewNotes != "ok" {
		t.Fatalf("unexpected review notes: %v", stub.transitionInput.ReviewNotes)
	}
	if got := resp.GetFields()["reviewedAt"].GetStringValue(); got != "2025-05-01T11:00:00Z" {
		t.Fatalf("unexpected reviewedAt: %q", got)
	}
}

func TestClaimsGrpcHandler_TransitionClaimRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{}
	h := NewClaimsGrpcHandler(stub, nil)

	_, err := h.TransitionClaim(actorContext("finance_admin"), mustStruct(t, map[string]any{
		"id":     testClaimID,
		"status": "ARCHIVED",
	}))
	assertCode(t, err, codes.InvalidArgument)

	_, err = h.TransitionClaim(actorContext("finance_admin"), mustStruct(t, map[string]any{"id": testClaimID}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestClaimsGrpcHandler_ListClaims(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{listOut: &claim.ListClaimsResult{
		Claims:        []*claim.Claim{sampleClaim(claim.StatusPending)},
		NextPageToken: "50",
	}}
	h := NewClaimsGrpcHandler(stub, nil)

	resp, err := h.ListClaims(actorContext("manager"), mustStruct(t, map[string]any{
		"status":    "pending",
		"pageSize":  50,
		"pageToken": "0",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.listInput.Status == nil || *stub.listInput.Status != claim.StatusPending {
		t.Fatalf("unexpected status filter: %v", stub.listInput.Status)
	}
	if stub.listInput.PageSize != 50 || stub.listInput.PageToken != "0" {
		t.Fatalf("unexpected paging: %+v", stub.listInput)
	}
	if n := len(resp.GetFields()["claims"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected 1 claim, got %d", n)
	}
	if got := resp.GetFields()["nextPageToken"].GetStringValue(); got != "50" {
		t.Fatalf("unexpected next page token: %q", got)
	}

	_, err = h.ListClaims(actorContext("manager"), mustStruct(t, map[string]any{"pageSize": 1.5}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestClaimsGrpcHandler_InvalidRole(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{}
	h := NewClaimsGrpcHandler(stub, nil)

	_, err := h.GetClaim(actorContext("root"), mustStruct(t, map[string]any{"id": testClaimID}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestClaimsGrpcHandler_RecomputeWorkReport(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{recomputeOut: &report.WorkReport{
		ID:               testReportID,
		CompanyID:        testCompanyID,
		EmployeeID:       "emp-1",
		RevenueGenerated: decimal.RequireFromString("7000"),
		UpdatedAt:        time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}}
	h := NewClaimsGrpcHandler(stub, nil)

	resp, err := h.RecomputeWorkReport(actorContext("finance_admin"), mustStruct(t, map[string]any{"workReportId": testReportID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.recomputeInput.WorkReportID != testReportID {
		t.Fatalf("unexpected work report id: %q", stub.recomputeInput.WorkReportID)
	}
	if got := resp.GetFields()["revenueGenerated"].GetStringValue(); got != "7000" {
		t.Fatalf("unexpected revenueGenerated: %q", got)
	}
}

func TestClaimsServiceDesc_OverBufconn(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	stub := &stubClaimUseCase{getOut: sampleClaim(claim.StatusRejected)}
	RegisterClaimsServiceServer(srv, NewClaimsGrpcHandler(stub, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client := NewClaimsServiceClient(conn)
	ctx := metadata.AppendToOutgoingContext(context.Background(),
		MetadataActorID, "user-1",
		MetadataActorRole, "company_admin",
		MetadataCompanyID, testCompanyID,
	)

	resp, err := client.Call(ctx, "GetClaim", mustStruct(t, map[string]any{"id": testClaimID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.GetFields()["status"].GetStringValue(); got != "REJECTED" {
		t.Fatalf("expected REJECTED, got %q", got)
	}
	if stub.getInput.ID != testClaimID {
		t.Fatalf("unexpected id: %q", stub.getInput.ID)
	}

	_, err = client.Call(ctx, "GetClaim", mustStruct(t, map[string]any{"id": "nope"}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestClaimsGrpcHandler_NonFiniteNumbersWithoutActor(t *testing.T) {
	t.Parallel()

	stub := &stubClaimUseCase{}
	h := NewClaimsGrpcHandler(stub, nil)

	_, err := h.CreateClaim(context.Background(), &structpb.Struct{Fields: map[string]*structpb.Value{
		"paymentId":   structpb.NewStringValue(testPaymentID),
		"claimAmount": structpb.NewNumberValue(math.NaN()),
	}})
	assertCode(t, err, codes.InvalidArgument)
	if stub.createInput.ClaimAmount != nil {
		t.Fatalf("use case should not be called")
	}

	_, err = h.ListClaims(actorContext("manager"), &structpb.Struct{Fields: map[string]*structpb.Value{
		"pageSize": structpb.NewNumberValue(math.Inf(1)),
	}})
	assertCode(t, err, codes.InvalidArgument)
}
