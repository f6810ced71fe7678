package handler

import (
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func codeForKind(kind claim.Kind) codes.Code {
	switch kind {
	case claim.KindValidation:
		return codes.InvalidArgument
	case claim.KindNotFound:
		return codes.NotFound
	case claim.KindAccessDenied:
		return codes.PermissionDenied
	case claim.KindDuplicateClaim:
		return codes.AlreadyExists
	case claim.KindCompanyContextMissing,
		claim.KindInvalidStateTransition,
		claim.KindEmployeeProfileRequired:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// toStatusError はドメインエラーを gRPC ステータスに変換します。
// 種別は "kind" として詳細メッセージの先頭に付与されます。
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	kind := claim.KindOf(err)
	if kind == claim.KindInternal {
		return status.Error(codes.Internal, string(kind)+": internal error")
	}
	return status.Error(codeForKind(kind), string(kind)+": "+err.Error())
}
