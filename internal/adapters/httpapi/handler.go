package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
)

// ClaimsHandler は /claims 系エンドポイントを提供します。
type ClaimsHandler struct {
	uc claim.UseCase
}

// NewClaimsHandler は ClaimsHandler を生成します。
func NewClaimsHandler(uc claim.UseCase) *ClaimsHandler {
	return &ClaimsHandler{uc: uc}
}

// ListClaims は GET /claims を処理します。
func (h *ClaimsHandler) ListClaims(c *gin.Context) {
	var q listClaimsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindingError(c, err)
		return
	}

	in := claim.ListClaimsInput{
		PageSize:  q.PageSize,
		PageToken: q.PageToken,
	}
	if q.Status != "" {
		status, err := claim.ParseStatus(q.Status)
		if err != nil {
			writeError(c, err)
			return
		}
		in.Status = &status
	}
	if q.EmployeeID != "" {
		employeeID := q.EmployeeID
		in.EmployeeID = &employeeID
	}

	res, err := h.uc.ListClaims(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	out := listClaimsResponse{
		Claims:        make([]claimResponse, 0, len(res.Claims)),
		NextPageToken: res.NextPageToken,
	}
	for _, item := range res.Claims {
		out.Claims = append(out.Claims, toClaimResponse(item))
	}
	c.JSON(http.StatusOK, out)
}

// GetClaim は GET /claims/:id を処理します。
func (h *ClaimsHandler) GetClaim(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	found, err := h.uc.GetClaim(c.Request.Context(), claim.GetClaimInput{ID: id}, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(found))
}

// CreateClaim は POST /claims を処理します。トランザクション ID が入金 ID より優先されます。
func (h *ClaimsHandler) CreateClaim(c *gin.Context) {
	var req createClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	in := claim.CreateClaimInput{
		EmployeeID:   req.EmployeeID,
		WorkReportID: req.WorkReportID,
		ClaimAmount:  req.ClaimAmount,
		ClaimReason:  req.ClaimReason,
	}
	switch {
	case req.RevenueTransactionID != nil && *req.RevenueTransactionID != "":
		in.Target = revenue.ByTransaction{TransactionID: *req.RevenueTransactionID}
	case req.PaymentID != nil && *req.PaymentID != "":
		in.Target = revenue.ByPayment{PaymentID: *req.PaymentID}
	}

	created, err := h.uc.CreateClaim(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClaimResponse(created))
}

// TransitionClaim は PUT /claims を処理します。
func (h *ClaimsHandler) TransitionClaim(c *gin.Context) {
	var req transitionClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	status, err := claim.ParseStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	updated, err := h.uc.TransitionClaim(c.Request.Context(), claim.TransitionClaimInput{
		ID:          req.ID,
		Status:      status,
		ReviewNotes: req.ReviewNotes,
	}, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(updated))
}

// RecomputeWorkReport は POST /work-reports/:id/recompute を処理します。
func (h *ClaimsHandler) RecomputeWorkReport(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	rep, err := h.uc.RecomputeWorkReport(c.Request.Context(), claim.RecomputeWorkReportInput{WorkReportID: id}, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWorkReportResponse(rep))
}

func pathUUID(c *gin.Context) (string, bool) {
	raw := c.Param("id")
	if _, err := uuid.Parse(raw); err != nil {
		writeError(c, fmt.Errorf("id %q: %w", raw, claim.ErrInvalidID))
		return "", false
	}
	return raw, true
}
