package httpapi

import (
	"time"

	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/shopspring/decimal"
)

type createClaimRequest struct {
	RevenueTransactionID *string          `json:"revenueTransactionId" binding:"omitempty,uuid"`
	PaymentID            *string          `json:"paymentId" binding:"omitempty,uuid"`
	EmployeeID           *string          `json:"employeeId" binding:"omitempty,uuid"`
	WorkReportID         *string          `json:"workReportId" binding:"omitempty,uuid"`
	ClaimAmount          *decimal.Decimal `json:"claimAmount"`
	ClaimReason          *string          `json:"claimReason" binding:"omitempty,max=2000"`
}

type transitionClaimRequest struct {
	ID          string  `json:"id" binding:"required,uuid"`
	Status      string  `json:"status" binding:"required"`
	ReviewNotes *string `json:"reviewNotes" binding:"omitempty,max=2000"`
}

type listClaimsQuery struct {
	Status     string `form:"status"`
	EmployeeID string `form:"employeeId" binding:"omitempty,uuid"`
	PageSize   int    `form:"pageSize" binding:"omitempty,min=1,max=200"`
	PageToken  string `form:"pageToken"`
}

type claimResponse struct {
	ID                   string          `json:"id"`
	CompanyID            string          `json:"companyId"`
	EmployeeID           string          `json:"employeeId"`
	RevenueTransactionID string          `json:"revenueTransactionId"`
	WorkReportID         *string         `json:"workReportId,omitempty"`
	ClaimAmount          decimal.Decimal `json:"claimAmount"`
	ClaimReason          *string         `json:"claimReason,omitempty"`
	Status               string          `json:"status"`
	ReviewedBy           *string         `json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time      `json:"reviewedAt,omitempty"`
	ReviewNotes          *string         `json:"reviewNotes,omitempty"`
	CreatedBy            string          `json:"createdBy"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type listClaimsResponse struct {
	Claims        []claimResponse `json:"claims"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

type workReportResponse struct {
	ID               string          `json:"id"`
	CompanyID        string          `json:"companyId"`
	EmployeeID       string          `json:"employeeId"`
	RevenueGenerated decimal.Decimal `json:"revenueGenerated"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func toClaimResponse(c *claim.Claim) claimResponse {
	return claimResponse{
		ID:                   c.ID,
		CompanyID:            c.CompanyID,
		EmployeeID:           c.EmployeeID,
		RevenueTransactionID: c.RevenueTransactionID,
		WorkReportID:         c.WorkReportID,
		ClaimAmount:          c.ClaimAmount,
		ClaimReason:          c.ClaimReason,
		Status:               string(c.Status),
		ReviewedBy:           c.ReviewedBy,
		ReviewedAt:           c.ReviewedAt,
		ReviewNotes:          c.ReviewNotes,
		CreatedBy:            c.CreatedBy,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

func toWorkReportResponse(r *report.WorkReport) workReportResponse {
	return workReportResponse{
		ID:               r.ID,
		CompanyID:        r.CompanyID,
		EmployeeID:       r.EmployeeID,
		RevenueGenerated: r.RevenueGenerated,
		UpdatedAt:        r.UpdatedAt,
	}
}
