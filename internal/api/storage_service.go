package api

import (
	"context"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// StorageService implements the storage gRPC service over the daemon's
// write path.
type StorageService struct {
	sessionName string
	startedAt   time.Time
	engine      *intsync.Engine
	bus         *bus.Bus
}

// NewStorageService creates a new storage service.
func NewStorageService(sessionName string, engine *intsync.Engine, b *bus.Bus) *StorageService {
	return &StorageService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		engine:      engine,
		bus:         b,
	}
}

func reply(f rpc.Fields) (*structpb.Struct, error) {
	s, err := f.Struct()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return s, nil
}

func (s *StorageService) QueryMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key := rpc.KeyFrom(rpc.Read(req))
	if key == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query messages: conversation key required")
	}
	rows, err := s.engine.QueryMessages(ctx, chat.Filter{Key: key})
	if err != nil {
		return nil, rpc.ToStatus("query messages", err)
	}
	return reply(rpc.Fields{"rows": rpc.List(rows, rpc.Row)})
}

func (s *StorageService) InsertMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d := rpc.DraftFrom(rpc.Read(req))
	if d.SenderID == "" || d.Key == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "insert message: exactly one of receiver_id and group_id is required")
	}
	row, err := s.engine.InsertMessage(ctx, d)
	if err != nil {
		return nil, rpc.ToStatus("insert message", err)
	}
	return reply(rpc.Row(row))
}

func (s *StorageService) IngestBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var rows []chat.Row
	for _, a := range rpc.Read(req).List("rows") {
		rows = append(rows, rpc.RowFrom(a))
	}
	n, err := s.engine.IngestBatch(ctx, rows)
	if err != nil {
		return nil, rpc.ToStatus("ingest batch", err)
	}
	return reply(rpc.Fields{"inserted": n})
}

func (s *StorageService) UpsertParticipant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p := rpc.ParticipantFrom(rpc.Read(req))
	if p.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "upsert participant: id required")
	}
	if err := s.engine.UpsertParticipant(ctx, p); err != nil {
		return nil, rpc.ToStatus("upsert participant", err)
	}
	return reply(rpc.Fields{})
}

func (s *StorageService) GetParticipant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := rpc.Read(req).String("id")
	p, err := s.engine.GetParticipant(ctx, id)
	if err != nil {
		return nil, rpc.ToStatus("get participant", err)
	}
	if p == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "participant %q not found", id)
	}
	return reply(rpc.Participant(*p))
}

func (s *StorageService) FindParticipant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := rpc.Read(req).String("display_name")
	p, err := s.engine.FindParticipant(ctx, name)
	if err != nil {
		return nil, rpc.ToStatus("find participant", err)
	}
	if p == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "no participant named %q", name)
	}
	return reply(rpc.Participant(*p))
}

func (s *StorageService) ListParticipants(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := rpc.Read(req)
	ps, err := s.engine.ListParticipants(ctx, a.String("excluding_id"), a.Int("limit"))
	if err != nil {
		return nil, rpc.ToStatus("list participants", err)
	}
	return reply(rpc.Fields{"participants": rpc.List(ps, rpc.Participant)})
}

func (s *StorageService) ListInbox(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	self := rpc.Read(req).String("self_id")
	if self == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "list inbox: self_id required")
	}
	ps, err := s.engine.ListInbox(ctx, self)
	if err != nil {
		return nil, rpc.ToStatus("list inbox", err)
	}
	return reply(rpc.Fields{"participants": rpc.List(ps, rpc.Participant)})
}

func (s *StorageService) InsertGroup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g := rpc.GroupFrom(rpc.Read(req))
	if g.Name == "" || g.CreatorID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "insert group: name and creator_id required")
	}
	g, err := s.engine.InsertGroup(ctx, g)
	if err != nil {
		return nil, rpc.ToStatus("insert group", err)
	}
	return reply(rpc.Group(g))
}

func (s *StorageService) GetGroup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := rpc.Read(req).String("id")
	g, err := s.engine.GetGroup(ctx, id)
	if err != nil {
		return nil, rpc.ToStatus("get group", err)
	}
	if g == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "group %q not found", id)
	}
	return reply(rpc.Group(*g))
}

func (s *StorageService) ListGroups(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	groups, err := s.engine.ListGroups(ctx, rpc.Read(req).Int("limit"))
	if err != nil {
		return nil, rpc.ToStatus("list groups", err)
	}
	return reply(rpc.Fields{"groups": rpc.List(groups, rpc.Group)})
}

func (s *StorageService) InsertReaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := rpc.Read(req)
	if err := s.engine.InsertReaction(ctx, a.String("subject_id"), a.String("participant_id")); err != nil {
		return nil, rpc.ToStatus("insert reaction", err)
	}
	return reply(rpc.Fields{})
}

func (s *StorageService) DeleteReaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := rpc.Read(req)
	if err := s.engine.DeleteReaction(ctx, a.String("subject_id"), a.String("participant_id")); err != nil {
		return nil, rpc.ToStatus("delete reaction", err)
	}
	return reply(rpc.Fields{})
}

func (s *StorageService) ReactionState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := rpc.Read(req)
	st, err := s.engine.ReactionState(ctx, a.String("subject_id"), a.String("participant_id"))
	if err != nil {
		return nil, rpc.ToStatus("reaction state", err)
	}
	return reply(rpc.Reaction(st))
}

func (s *StorageService) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp := rpc.Fields{
		"session":     s.sessionName,
		"pid":         os.Getpid(),
		"uptime_ms":   time.Since(s.startedAt).Milliseconds(),
		"subscribers": s.bus.Subscribers(),
		"dropped":     int64(s.bus.Dropped()),
	}
	if n, err := s.engine.ParticipantCount(ctx); err == nil {
		resp["participants"] = n
	}
	if n, err := s.engine.MessageCount(ctx); err == nil {
		resp["messages"] = n
	}
	return reply(resp)
}
