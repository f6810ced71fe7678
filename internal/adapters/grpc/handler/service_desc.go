package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ClaimsServiceName は gRPC のサービス名です。
const ClaimsServiceName = "revenue.claims.v1.ClaimsService"

// ClaimsServiceServer は ClaimsService のサーバー側インターフェースです。
// メッセージは google.protobuf.Struct で、フィールド名は REST API の JSON と同じです。
type ClaimsServiceServer interface {
	ListClaims(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecomputeWorkReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type claimsMethod func(ClaimsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call claimsMethod) grpc.MethodDesc {
	fullMethod := "/" + ClaimsServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ClaimsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ClaimsServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ClaimsServiceDesc は ClaimsService の grpc.ServiceDesc です。
var ClaimsServiceDesc = grpc.ServiceDesc{
	ServiceName: ClaimsServiceName,
	HandlerType: (*ClaimsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListClaims", ClaimsServiceServer.ListClaims),
		unaryHandler("GetClaim", ClaimsServiceServer.GetClaim),
		unaryHandler("CreateClaim", ClaimsServiceServer.CreateClaim),
		unaryHandler("TransitionClaim", ClaimsServiceServer.TransitionClaim),
		unaryHandler("RecomputeWorkReport", ClaimsServiceServer.RecomputeWorkReport),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "revenue/claims/v1/claims.proto",
}

// RegisterClaimsServiceServer は ClaimsService をサーバーに登録します。
func RegisterClaimsServiceServer(s grpc.ServiceRegistrar, srv ClaimsServiceServer) {
	s.RegisterService(&ClaimsServiceDesc, srv)
}

// ClaimsServiceClient は ClaimsService のクライアントです。
type ClaimsServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewClaimsServiceClient は ClaimsServiceClient を生成します。
func NewClaimsServiceClient(cc grpc.ClientConnInterface) *ClaimsServiceClient {
	return &ClaimsServiceClient{cc: cc}
}

// Call は method を呼び出します。method は "CreateClaim" のようなメソッド名です。
func (c *ClaimsServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ClaimsServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
