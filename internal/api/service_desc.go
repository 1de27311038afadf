package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type unaryMethod func(s *StorageService, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// storageServer is the handler type checked by grpc.Server.RegisterService.
type storageServer interface {
	QueryMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InsertMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// StorageServiceDesc describes the storage service for grpc.Server.
var StorageServiceDesc = grpc.ServiceDesc{
	ServiceName: rpc.ServiceName,
	HandlerType: (*storageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(rpc.MethodQueryMessages, (*StorageService).QueryMessages),
		unary(rpc.MethodInsertMessage, (*StorageService).InsertMessage),
		unary(rpc.MethodIngestBatch, (*StorageService).IngestBatch),
		unary(rpc.MethodUpsertParticipant, (*StorageService).UpsertParticipant),
		unary(rpc.MethodGetParticipant, (*StorageService).GetParticipant),
		unary(rpc.MethodFindParticipant, (*StorageService).FindParticipant),
		unary(rpc.MethodListParticipants, (*StorageService).ListParticipants),
		unary(rpc.MethodListInbox, (*StorageService).ListInbox),
		unary(rpc.MethodInsertGroup, (*StorageService).InsertGroup),
		unary(rpc.MethodGetGroup, (*StorageService).GetGroup),
		unary(rpc.MethodListGroups, (*StorageService).ListGroups),
		unary(rpc.MethodInsertReaction, (*StorageService).InsertReaction),
		unary(rpc.MethodDeleteReaction, (*StorageService).DeleteReaction),
		unary(rpc.MethodReactionState, (*StorageService).ReactionState),
		unary(rpc.MethodStatus, (*StorageService).Status),
	},
	Metadata: "chatsync/v1/storage.proto",
}

// Register adds svc to srv.
func Register(srv *grpc.Server, svc *StorageService) {
	srv.RegisterService(&StorageServiceDesc, svc)
}

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(*StorageService)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpc.FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*structpb.Struct))
			})
		},
	}
}
