package handler

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	"github.com/ogurasousui/revenue-claims/internal/platform/logging"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// 上流ゲートウェイが付与するメタデータキーです。
const (
	MetadataActorID   = "x-actor-id"
	MetadataActorRole = "x-actor-role"
	MetadataCompanyID = "x-company-id"
)

// ClaimsGrpcHandler は ClaimsService の gRPC 実装です。
type ClaimsGrpcHandler struct {
	uc     claim.UseCase
	logger *zap.Logger
}

var _ ClaimsServiceServer = (*ClaimsGrpcHandler)(nil)

// NewClaimsGrpcHandler は ClaimsGrpcHandler を生成します。
func NewClaimsGrpcHandler(uc claim.UseCase, logger *zap.Logger) *ClaimsGrpcHandler {
	return &ClaimsGrpcHandler{uc: uc, logger: logging.OrNop(logger)}
}

// ListClaims は可視範囲内の請求を一覧します。
func (h *ClaimsGrpcHandler) ListClaims(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, h.fail(err)
	}

	fields := req.GetFields()
	in := claim.ListClaimsInput{}

	rawStatus, err := optionalString(fields, "status")
	if err != nil {
		return nil, err
	}
	if rawStatus != nil {
		parsed, err := claim.ParseStatus(*rawStatus)
		if err != nil {
			return nil, h.fail(err)
		}
		in.Status = &parsed
	}

	if in.EmployeeID, err = optionalUUID(fields, "employeeId"); err != nil {
		return nil, err
	}
	if in.PageSize, err = optionalInt(fields, "pageSize"); err != nil {
		return nil, err
	}
	token, err := optionalString(fields, "pageToken")
	if err != nil {
		return nil, err
	}
	if token != nil {
		in.PageToken = *token
	}

	res, err := h.uc.ListClaims(ctx, in, actor)
	if err != nil {
		return nil, h.fail(err)
	}

	items := make([]any, 0, len(res.Claims))
	for _, c := range res.Claims {
		items = append(items, claimToMap(c))
	}
	out := map[string]any{"claims": items}
	if res.NextPageToken != "" {
		out["nextPageToken"] = res.NextPageToken
	}
	return newStruct(out)
}

// GetClaim は請求を 1 件取得します。
func (h *ClaimsGrpcHandler) GetClaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, h.fail(err)
	}

	id, err := requiredUUID(req.GetFields(), "id")
	if err != nil {
		return nil, err
	}

	found, err := h.uc.GetClaim(ctx, claim.GetClaimInput{ID: id}, actor)
	if err != nil {
		return nil, h.fail(err)
	}
	return newStruct(claimToMap(found))
}

// CreateClaim は請求を登録します。revenueTransactionId が paymentId より優先されます。
func (h *ClaimsGrpcHandler) CreateClaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, h.fail(err)
	}

	fields := req.GetFields()
	txnID, err := optionalUUID(fields, "revenueTransactionId")
	if err != nil {
		return nil, err
	}
	paymentID, err := optionalUUID(fields, "paymentId")
	if err != nil {
		return nil, err
	}

	in := claim.CreateClaimInput{}
	switch {
	case txnID != nil:
		in.Target = revenue.ByTransaction{TransactionID: *txnID}
	case paymentID != nil:
		in.Target = revenue.ByPayment{PaymentID: *paymentID}
	}

	if in.EmployeeID, err = optionalUUID(fields, "employeeId"); err != nil {
		return nil, err
	}
	if in.WorkReportID, err = optionalUUID(fields, "workReportId"); err != nil {
		return nil, err
	}
	if in.ClaimAmount, err = optionalDecimal(fields, "claimAmount"); err != nil {
		return nil, err
	}
	if in.ClaimReason, err = optionalString(fields, "claimReason"); err != nil {
		return nil, err
	}

	created, err := h.uc.CreateClaim(ctx, in, actor)
	if err != nil {
		return nil, h.fail(err)
	}
	return newStruct(claimToMap(created))
}

// TransitionClaim は請求を審査します。
func (h *ClaimsGrpcHandler) TransitionClaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, h.fail(err)
	}

	fields := req.GetFields()
	id, err := requiredUUID(fields, "id")
	if err != nil {
		return nil, err
	}
	rawStatus, err := optionalString(fields, "status")
	if err != nil {
		return nil, err
	}
	if rawStatus == nil {
		return nil, status.Error(codes.InvalidArgument, "status is required")
	}
	target, err := claim.ParseStatus(*rawStatus)
	if err != nil {
		return nil, h.fail(err)
	}
	notes, err := optionalString(fields, "reviewNotes")
	if err != nil {
		return nil, err
	}

	updated, err := h.uc.TransitionClaim(ctx, claim.TransitionClaimInput{
		ID:          id,
		Status:      target,
		ReviewNotes: notes,
	}, actor)
	if err != nil {
		return nil, h.fail(err)
	}
	return newStruct(claimToMap(updated))
}

// RecomputeWorkReport は業務報告の売上集計を再実行します。
func (h *ClaimsGrpcHandler) RecomputeWorkReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromMetadata(ctx)
	if err != nil {
		return nil, h.fail(err)
	}

	id, err := requiredUUID(req.GetFields(), "workReportId")
	if err != nil {
		return nil, err
	}

	rep, err := h.uc.RecomputeWorkReport(ctx, claim.RecomputeWorkReportInput{WorkReportID: id}, actor)
	if err != nil {
		return nil, h.fail(err)
	}
	return newStruct(workReportToMap(rep))
}

func (h *ClaimsGrpcHandler) fail(err error) error {
	if claim.KindOf(err) == claim.KindInternal {
		h.logger.Error("claims rpc failed", zap.Error(err))
	}
	return toStatusError(err)
}

func actorFromMetadata(ctx context.Context) (access.Actor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	first := func(key string) string {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
		return ""
	}
	return access.NewActor(first(MetadataActorID), first(MetadataActorRole), first(MetadataCompanyID))
}

func optionalString(fields map[string]*structpb.Value, key string) (*string, error) {
	v, ok := fields[key]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		s := kind.StringValue
		return &s, nil
	default:
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a string", key)
	}
}

func optionalUUID(fields map[string]*structpb.Value, key string) (*string, error) {
	raw, err := optionalString(fields, key)
	if err != nil || raw == nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(trimmed); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a UUID", key)
	}
	return &trimmed, nil
}

func requiredUUID(fields map[string]*structpb.Value, key string) (string, error) {
	id, err := optionalUUID(fields, key)
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return *id, nil
}

func optionalInt(fields map[string]*structpb.Value, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
}

// optionalDecimal は数値または数値文字列を受け付けます。精度を保つには文字列で渡します。
func optionalDecimal(fields map[string]*structpb.Value, key string) (*decimal.Decimal, error) {
	v, ok := fields[key]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, status.Errorf(codes.InvalidArgument, "%s must be a finite decimal", key)
		}
		d := decimal.NewFromFloat(n)
		return &d, nil
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(strings.TrimSpace(kind.StringValue))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "%s must be a decimal", key)
		}
		return &d, nil
	default:
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a decimal", key)
	}
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return s, nil
}

func claimToMap(c *claim.Claim) map[string]any {
	m := map[string]any{
		"id":                   c.ID,
		"companyId":            c.CompanyID,
		"employeeId":           c.EmployeeID,
		"revenueTransactionId": c.RevenueTransactionID,
		"claimAmount":          c.ClaimAmount.String(),
		"status":               string(c.Status),
		"createdBy":            c.CreatedBy,
		"createdAt":            formatTime(c.CreatedAt),
		"updatedAt":            formatTime(c.UpdatedAt),
	}
	putOptional(m, "workReportId", c.WorkReportID)
	putOptional(m, "claimReason", c.ClaimReason)
	putOptional(m, "reviewedBy", c.ReviewedBy)
	putOptional(m, "reviewNotes", c.ReviewNotes)
	if c.ReviewedAt != nil {
		m["reviewedAt"] = formatTime(*c.ReviewedAt)
	}
	return m
}

func workReportToMap(r *report.WorkReport) map[string]any {
	return map[string]any{
		"id":               r.ID,
		"companyId":        r.CompanyID,
		"employeeId":       r.EmployeeID,
		"revenueGenerated": r.RevenueGenerated.String(),
		"updatedAt":        formatTime(r.UpdatedAt),
	}
}

func putOptional(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
