package claim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ScopeResolver はアクターの可視範囲を計算します。
type ScopeResolver interface {
	Resolve(ctx context.Context, actor access.Actor) (access.Scope, error)
}

// TransactionResolver は請求対象を売上トランザクションへ解決します。
type TransactionResolver interface {
	Resolve(ctx context.Context, target revenue.Target, actor access.Actor) (*revenue.Transaction, error)
}

// Reconciler は業務報告の売上集計を再計算します。
type Reconciler interface {
	Recompute(ctx context.Context, reportID string) (*report.WorkReport, error)
}

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
	maxReasonLength     = 2000
	maxNotesLength      = 2000
)

const tracerName = "github.com/ogurasousui/revenue-claims/internal/core/claim"

// Dependencies は Service の依存関係です。Clock, TX, Logger, TracerProvider は省略できます。
// TracerProvider を省略するとグローバルのプロバイダを使います。
type Dependencies struct {
	Claims         Repository
	Transactions   revenue.TransactionRepository
	Reports        report.Repository
	Directory      access.Directory
	Scopes         ScopeResolver
	Resolver       TransactionResolver
	Reconciler     Reconciler
	Clock          Clock
	TX             TransactionManager
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

// Service は売上請求の登録と承認ワークフローをまとめます。
type Service struct {
	claims     Repository
	txns       revenue.TransactionRepository
	reports    report.Repository
	directory  access.Directory
	scopes     ScopeResolver
	resolver   TransactionResolver
	reconciler Reconciler
	clock      Clock
	tx         TransactionManager
	logger     *zap.Logger
	tracer     trace.Tracer
}

// UseCase は売上請求ユースケースの公開インターフェースです。
type UseCase interface {
	CreateClaim(ctx context.Context, in CreateClaimInput, actor access.Actor) (*Claim, error)
	GetClaim(ctx context.Context, in GetClaimInput, actor access.Actor) (*Claim, error)
	ListClaims(ctx context.Context, in ListClaimsInput, actor access.Actor) (*ListClaimsResult, error)
	TransitionClaim(ctx context.Context, in TransitionClaimInput, reviewer access.Actor) (*Claim, error)
	RecomputeWorkReport(ctx context.Context, in RecomputeWorkReportInput, actor access.Actor) (*report.WorkReport, error)
}

// NewService は Service を生成します。
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.TX == nil {
		deps.TX = noopTransactionManager{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = otel.GetTracerProvider()
	}
	return &Service{
		claims:     deps.Claims,
		txns:       deps.Transactions,
		reports:    deps.Reports,
		directory:  deps.Directory,
		scopes:     deps.Scopes,
		resolver:   deps.Resolver,
		reconciler: deps.Reconciler,
		clock:      deps.Clock,
		tx:         deps.TX,
		logger:     deps.Logger,
		tracer:     deps.TracerProvider.Tracer(tracerName),
	}
}

// CreateClaimInput は請求作成時の入力です。
type CreateClaimInput struct {
	Target       revenue.Target
	EmployeeID   *string
	WorkReportID *string
	ClaimAmount  *decimal.Decimal
	ClaimReason  *string
}

// GetClaimInput は請求取得時の入力です。
type GetClaimInput struct {
	ID string
}

// ListClaimsInput は一覧取得時の入力です。
type ListClaimsInput struct {
	Status     *Status
	EmployeeID *string
	PageSize   int
	PageToken  string
}

// ListClaimsResult は一覧取得結果を表します。
type ListClaimsResult struct {
	Claims        []*Claim
	NextPageToken string
}

// TransitionClaimInput は審査時の入力です。
type TransitionClaimInput struct {
	ID          string
	Status      Status
	ReviewNotes *string
}

// RecomputeWorkReportInput は業務報告の再集計要求です。
type RecomputeWorkReportInput struct {
	WorkReportID string
}

// CreateClaim は PENDING の請求を登録します。
//
// 社員の指定が無ければアクター自身のプロファイル（無ければ作成）を使い、
// 請求額が無いか 0 以下ならトランザクション金額の全額を請求します。
func (s *Service) CreateClaim(ctx context.Context, in CreateClaimInput, actor access.Actor) (result *Claim, err error) {
	ctx, finish := s.startSpan(ctx, "claim.CreateClaim", actor)
	defer func() { finish(err) }()

	if in.Target == nil {
		return nil, revenue.ErrMissingTarget
	}
	if in.ClaimAmount != nil && in.ClaimAmount.IsPositive() {
		if err := revenue.ValidateAmount(*in.ClaimAmount); err != nil {
			return nil, fmt.Errorf("claim_amount: %w", err)
		}
	}
	if err := actor.Authorize(access.CapabilityCreateClaim); err != nil {
		return nil, err
	}

	reason, err := normalizeText(in.ClaimReason, maxReasonLength)
	if err != nil {
		return nil, fmt.Errorf("claim_reason: %w", ErrInvalidReason)
	}

	employeeID := trimmedPtr(in.EmployeeID)
	workReportID := trimmedPtr(in.WorkReportID)

	var created *Claim
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		scope, err := s.scopes.Resolve(txCtx, actor)
		if err != nil {
			return err
		}

		txn, err := s.resolver.Resolve(txCtx, in.Target, actor)
		if err != nil {
			return err
		}

		if !scope.IsGlobal() && (actor.CompanyID == "" || txn.CompanyID != actor.CompanyID) {
			return fmt.Errorf("%w: transaction %s belongs to another company", access.ErrAccessDenied, txn.ID)
		}

		employee, err := s.resolveEmployee(txCtx, employeeID, txn, actor, scope)
		if err != nil {
			return err
		}

		if workReportID != nil {
			rep, err := s.reports.FindByID(txCtx, *workReportID)
			if err != nil {
				return err
			}
			if rep.CompanyID != txn.CompanyID {
				return fmt.Errorf("%w: work report %s belongs to another company", access.ErrAccessDenied, rep.ID)
			}
		}

		amount := txn.Amount
		if in.ClaimAmount != nil && in.ClaimAmount.IsPositive() {
			amount = *in.ClaimAmount
		}

		existing, err := s.claims.FindActiveByEmployeeAndTransaction(txCtx, employee.ID, txn.ID)
		if err != nil && !errors.Is(err, ErrClaimNotFound) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: claim %s is %s", ErrDuplicateClaim, existing.ID, existing.Status)
		}

		now := s.clock.Now()
		c, err := s.claims.Create(txCtx, &Claim{
			CompanyID:            txn.CompanyID,
			EmployeeID:           employee.ID,
			RevenueTransactionID: txn.ID,
			WorkReportID:         workReportID,
			ClaimAmount:          amount,
			ClaimReason:          reason,
			Status:               StatusPending,
			CreatedBy:            actor.ID,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
		if err != nil {
			return err
		}
		created = c
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info("revenue claim created",
		zap.String("claim_id", created.ID),
		zap.String("employee_id", created.EmployeeID),
		zap.String("revenue_transaction_id", created.RevenueTransactionID),
		zap.String("claim_amount", created.ClaimAmount.String()),
		zap.String("actor_id", actor.ID),
	)
	return created, nil
}

// resolveEmployee は請求対象の社員プロファイルを決定します。
func (s *Service) resolveEmployee(ctx context.Context, employeeID *string, txn *revenue.Transaction, actor access.Actor, scope access.Scope) (*access.Profile, error) {
	if employeeID == nil {
		return s.ownProfile(ctx, txn, actor)
	}

	profile, err := s.directory.FindProfileByID(ctx, *employeeID)
	if err != nil {
		if errors.Is(err, access.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: employee %s", ErrEmployeeProfileRequired, *employeeID)
		}
		return nil, err
	}

	if profile.UserID != actor.ID {
		if err := actor.Authorize(access.CapabilityCreateClaimOnBehalf); err != nil {
			return nil, err
		}
		if !scope.CoversProfile(profile) {
			return nil, fmt.Errorf("%w: employee %s is outside the actor's scope", access.ErrAccessDenied, profile.ID)
		}
	}
	if profile.CompanyID != txn.CompanyID {
		return nil, fmt.Errorf("%w: employee %s belongs to another company", access.ErrAccessDenied, profile.ID)
	}
	return profile, nil
}

// ownProfile はアクター自身のプロファイルを返し、存在しなければ作成します。
func (s *Service) ownProfile(ctx context.Context, txn *revenue.Transaction, actor access.Actor) (*access.Profile, error) {
	profile, err := s.directory.FindProfileByUserID(ctx, actor.ID)
	switch {
	case err == nil:
	case errors.Is(err, access.ErrProfileNotFound):
		companyID := actor.CompanyID
		if companyID == "" {
			companyID = txn.CompanyID
		}
		now := s.clock.Now()
		profile, err = s.directory.CreateProfile(ctx, &access.Profile{
			UserID:    actor.ID,
			CompanyID: companyID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("provision employee profile: %w", err)
		}
		s.logger.Info("employee profile provisioned",
			zap.String("profile_id", profile.ID),
			zap.String("user_id", actor.ID),
			zap.String("company_id", companyID),
		)
	default:
		return nil, err
	}

	if profile.CompanyID != txn.CompanyID {
		return nil, fmt.Errorf("%w: no profile in company %s", ErrEmployeeProfileRequired, txn.CompanyID)
	}
	return profile, nil
}

// GetClaim は可視範囲内の請求を取得します。自分自身の請求は一覧権限が無くても参照できます。
func (s *Service) GetClaim(ctx context.Context, in GetClaimInput, actor access.Actor) (result *Claim, err error) {
	ctx, finish := s.startSpan(ctx, "claim.GetClaim", actor)
	defer func() { finish(err) }()

	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var found *Claim
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		scope, err := s.scopes.Resolve(txCtx, actor)
		if err != nil {
			return err
		}

		c, err := s.claims.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		own := scope.ProfileID != "" && c.EmployeeID == scope.ProfileID
		if !own && (!actor.Can(access.CapabilityListClaims) || !scope.CoversProfile(claimOwner(c))) {
			return fmt.Errorf("%w: claim %s", access.ErrAccessDenied, c.ID)
		}
		found = c
		return nil
	}); err != nil {
		return nil, err
	}

	return found, nil
}

// ListClaims は可視範囲内の請求を一覧します。
// 全社権限を持たないロールでは会社に加えて部下集合でも絞り込みます。
func (s *Service) ListClaims(ctx context.Context, in ListClaimsInput, actor access.Actor) (result *ListClaimsResult, err error) {
	ctx, finish := s.startSpan(ctx, "claim.ListClaims", actor)
	defer func() { finish(err) }()

	if err := actor.Authorize(access.CapabilityListClaims); err != nil {
		return nil, err
	}

	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	var statusPtr *Status
	if in.Status != nil {
		if !isValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		status := *in.Status
		statusPtr = &status
	}

	var (
		claims    []*Claim
		nextToken string
	)

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		scope, err := s.scopes.Resolve(txCtx, actor)
		if err != nil {
			return err
		}
		if scope.Tier == access.TierNone {
			return fmt.Errorf("%w: actor %s has no visibility scope", access.ErrAccessDenied, actor.ID)
		}

		filter := ListClaimsFilter{
			EmployeeID: trimmedPtr(in.EmployeeID),
			Status:     statusPtr,
			Limit:      limit,
			Offset:     offset,
		}
		if !scope.IsGlobal() {
			companyID := scope.CompanyID
			filter.CompanyID = &companyID
		}
		if scope.Restricted() {
			filter.EmployeeIDs = scope.ProfileIDs()
		}

		found, token, err := s.claims.List(txCtx, filter)
		if err != nil {
			return err
		}
		claims = found
		nextToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &ListClaimsResult{Claims: claims, NextPageToken: nextToken}, nil
}

// TransitionClaim は PENDING の請求を APPROVED または REJECTED に遷移させます。
//
// APPROVED の場合、請求の更新、売上トランザクションの検証済み化、関連する業務報告の再集計を
// 一つのトランザクションで行います。途中で失敗した場合は全体がロールバックされ、請求は PENDING のままです。
// REJECTED はトランザクションにも業務報告にも触れません。
func (s *Service) TransitionClaim(ctx context.Context, in TransitionClaimInput, reviewer access.Actor) (result *Claim, err error) {
	ctx, finish := s.startSpan(ctx, "claim.TransitionClaim", reviewer,
		attribute.String("claim.id", in.ID),
		attribute.String("claim.target_status", string(in.Status)),
	)
	defer func() { finish(err) }()

	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}
	if in.Status != StatusApproved && in.Status != StatusRejected {
		return nil, fmt.Errorf("status %q: %w", in.Status, ErrInvalidStatus)
	}
	notes, err := normalizeText(in.ReviewNotes, maxNotesLength)
	if err != nil {
		return nil, fmt.Errorf("review_notes: %w", ErrInvalidReviewNotes)
	}
	if err := reviewer.Authorize(access.CapabilityReviewClaim); err != nil {
		return nil, err
	}

	var (
		updated    *Claim
		reconciled *report.WorkReport
	)
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		scope, err := s.scopes.Resolve(txCtx, reviewer)
		if err != nil {
			return err
		}

		c, err := s.claims.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}

		if !scope.CoversProfile(claimOwner(c)) {
			return fmt.Errorf("%w: claim %s is outside the reviewer's scope", access.ErrAccessDenied, c.ID)
		}
		if c.Status != StatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, c.Status, in.Status)
		}

		now := s.clock.Now()
		reviewerID := reviewer.ID
		c.Status = in.Status
		c.ReviewedBy = &reviewerID
		c.ReviewedAt = &now
		c.ReviewNotes = notes
		c.UpdatedAt = now

		saved, err := s.claims.UpdateReview(txCtx, c)
		if err != nil {
			return err
		}
		updated = saved

		if in.Status != StatusApproved {
			return nil
		}

		if _, err := s.txns.MarkVerified(txCtx, revenue.Verification{
			TransactionID: c.RevenueTransactionID,
			ApprovedBy:    reviewerID,
			VerifiedAt:    now,
		}); err != nil {
			return fmt.Errorf("verify transaction %s: %w", c.RevenueTransactionID, err)
		}

		if c.WorkReportID != nil {
			rep, err := s.reconciler.Recompute(txCtx, *c.WorkReportID)
			if err != nil {
				return fmt.Errorf("recompute work report %s: %w", *c.WorkReportID, err)
			}
			reconciled = rep
		}
		return nil
	}); err != nil {
		logFn := s.logger.Warn
		if KindOf(err) == KindInternal {
			logFn = s.logger.Error
		}
		logFn("revenue claim transition failed",
			zap.String("claim_id", id),
			zap.String("target_status", string(in.Status)),
			zap.String("reviewer_id", reviewer.ID),
			zap.Error(err),
		)
		return nil, err
	}

	fields := []zap.Field{
		zap.String("claim_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("reviewer_id", reviewer.ID),
	}
	if reconciled != nil {
		fields = append(fields,
			zap.String("work_report_id", reconciled.ID),
			zap.String("revenue_generated", reconciled.RevenueGenerated.String()),
		)
	}
	s.logger.Info("revenue claim reviewed", fields...)

	return updated, nil
}

// RecomputeWorkReport は業務報告の売上集計を再実行します。結果は何度実行しても同じです。
func (s *Service) RecomputeWorkReport(ctx context.Context, in RecomputeWorkReportInput, actor access.Actor) (result *report.WorkReport, err error) {
	ctx, finish := s.startSpan(ctx, "claim.RecomputeWorkReport", actor)
	defer func() { finish(err) }()

	id := strings.TrimSpace(in.WorkReportID)
	if id == "" {
		return nil, fmt.Errorf("work_report_id: %w", report.ErrInvalidID)
	}
	if err := actor.Authorize(access.CapabilityRecomputeReport); err != nil {
		return nil, err
	}

	var recomputed *report.WorkReport
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		scope, err := s.scopes.Resolve(txCtx, actor)
		if err != nil {
			return err
		}

		rep, err := s.reports.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if !scope.CoversCompany(rep.CompanyID) {
			return fmt.Errorf("%w: work report %s", access.ErrAccessDenied, rep.ID)
		}

		out, err := s.reconciler.Recompute(txCtx, rep.ID)
		if err != nil {
			return err
		}
		recomputed = out
		return nil
	}); err != nil {
		return nil, err
	}

	return recomputed, nil
}

func claimOwner(c *Claim) *access.Profile {
	return &access.Profile{ID: c.EmployeeID, CompanyID: c.CompanyID}
}

func (s *Service) startSpan(ctx context.Context, name string, actor access.Actor, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs,
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	)
	ctx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func trimmedPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

var errTextTooLong = errors.New("text too long")

func normalizeText(raw *string, maxLen int) (*string, error) {
	value := trimmedPtr(raw)
	if value == nil {
		return nil, nil
	}
	if utf8.RuneCountInString(*value) > maxLen {
		return nil, errTextTooLong
	}
	return value, nil
}

func normalizePageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return defaultListPageSize, nil
	}
	if pageSize > maxListPageSize {
		return 0, ErrInvalidPageSize
	}
	return pageSize, nil
}

func parsePageToken(token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, ErrInvalidPageToken
	}
	return offset, nil
}
