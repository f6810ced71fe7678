package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
)

const errorKindKey = "error_kind"

// statusForKind はエラー種別を HTTP ステータスに変換します。
func statusForKind(kind claim.Kind) int {
	switch kind {
	case claim.KindValidation:
		return http.StatusBadRequest
	case claim.KindNotFound:
		return http.StatusNotFound
	case claim.KindAccessDenied:
		return http.StatusForbidden
	case claim.KindDuplicateClaim, claim.KindInvalidStateTransition:
		return http.StatusConflict
	case claim.KindCompanyContextMissing, claim.KindEmployeeProfileRequired:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := claim.KindOf(err)
	message := err.Error()
	if kind == claim.KindInternal {
		message = "internal error"
		_ = c.Error(err)
	}
	c.Set(errorKindKey, string(kind))
	c.AbortWithStatusJSON(statusForKind(kind), errorResponse{Error: errorBody{
		Kind:    string(kind),
		Message: message,
	}})
}

// writeBindingError は入力の束縛・検証エラーを VALIDATION_ERROR として返します。
func writeBindingError(c *gin.Context, err error) {
	body := errorBody{Kind: string(claim.KindValidation), Message: "invalid request"}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			body.Fields[fe.Field()] = fe.Tag()
		}
	} else {
		body.Message = err.Error()
	}

	c.Set(errorKindKey, body.Kind)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: body})
}
