// Package rpc defines the storage service shared by the daemon and its
// clients: method names, the structpb payload shapes and the mapping
// between domain errors and gRPC status codes.
//
// Payloads are google.protobuf.Struct values, so the service needs no
// generated code and uses the default proto codec. The contract, with the
// fields of every payload, is proto/chatsync/v1/storage.proto.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatsync.v1.StorageService"

// Method names of the storage service.
const (
	MethodQueryMessages     = "QueryMessages"
	MethodInsertMessage     = "InsertMessage"
	MethodIngestBatch       = "IngestBatch"
	MethodUpsertParticipant = "UpsertParticipant"
	MethodGetParticipant    = "GetParticipant"
	MethodFindParticipant   = "FindParticipant"
	MethodListParticipants  = "ListParticipants"
	MethodListInbox         = "ListInbox"
	MethodInsertGroup       = "InsertGroup"
	MethodGetGroup          = "GetGroup"
	MethodListGroups        = "ListGroups"
	MethodInsertReaction    = "InsertReaction"
	MethodDeleteReaction    = "DeleteReaction"
	MethodReactionState     = "ReactionState"
	MethodStatus            = "Status"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ToStatus converts a storage error into a gRPC status error.
func ToStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return grpcstatus.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	case errors.Is(err, chat.ErrDuplicate):
		return grpcstatus.Errorf(codes.AlreadyExists, "%s: %v", op, err)
	case errors.Is(err, chat.ErrRejected):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, chat.ErrNotFound):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// FromStatus converts a gRPC error back into the storage sentinels, so
// callers classify remote and local failures the same way. Transport
// failures stay unclassified and count as transient.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", chat.ErrDuplicate, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", chat.ErrRejected, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", chat.ErrNotFound, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	default:
		return err
	}
}
