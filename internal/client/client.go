// Package client is the gRPC client for the daemon's storage service. It
// satisfies the storage interfaces the engine consumes, so a session can
// run in another process than the database.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps a gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewFromConn wraps an existing connection. The caller keeps ownership
// unless it calls Close.
func NewFromConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req rpc.Fields) (rpc.Args, error) {
	in, err := req.Struct()
	if err != nil {
		return rpc.Args{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rpc.FullMethod(method), in, out); err != nil {
		return rpc.Args{}, rpc.FromStatus(err)
	}
	return rpc.Read(out), nil
}

// QueryMessages returns the stored rows of one conversation.
func (c *Client) QueryMessages(ctx context.Context, f chat.Filter) ([]chat.Row, error) {
	out, err := c.invoke(ctx, rpc.MethodQueryMessages, rpc.Key(f.Key))
	if err != nil {
		return nil, err
	}
	var rows []chat.Row
	for _, a := range out.List("rows") {
		rows = append(rows, rpc.RowFrom(a))
	}
	return rows, nil
}

// InsertMessage stores a draft; the daemon assigns id and timestamp.
func (c *Client) InsertMessage(ctx context.Context, d chat.Draft) (chat.Row, error) {
	out, err := c.invoke(ctx, rpc.MethodInsertMessage, rpc.Draft(d))
	if err != nil {
		return chat.Row{}, err
	}
	return rpc.RowFrom(out), nil
}

// IngestBatch stores rows that already carry ids and returns how many
// were new.
func (c *Client) IngestBatch(ctx context.Context, rows []chat.Row) (int, error) {
	out, err := c.invoke(ctx, rpc.MethodIngestBatch, rpc.Fields{"rows": rpc.List(rows, rpc.Row)})
	if err != nil {
		return 0, err
	}
	return out.Int("inserted"), nil
}

func (c *Client) UpsertParticipant(ctx context.Context, p chat.Participant) error {
	_, err := c.invoke(ctx, rpc.MethodUpsertParticipant, rpc.Participant(p))
	return err
}

// GetParticipant returns nil, nil when id is unknown.
func (c *Client) GetParticipant(ctx context.Context, id string) (*chat.Participant, error) {
	out, err := c.invoke(ctx, rpc.MethodGetParticipant, rpc.Fields{"id": id})
	if errors.Is(err, chat.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := rpc.ParticipantFrom(out)
	return &p, nil
}

// FindParticipant looks a participant up by display name; nil, nil when
// nobody matches.
func (c *Client) FindParticipant(ctx context.Context, displayName string) (*chat.Participant, error) {
	out, err := c.invoke(ctx, rpc.MethodFindParticipant, rpc.Fields{"display_name": displayName})
	if errors.Is(err, chat.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := rpc.ParticipantFrom(out)
	return &p, nil
}

func (c *Client) ListParticipants(ctx context.Context, excludingID string, limit int) ([]chat.Participant, error) {
	out, err := c.invoke(ctx, rpc.MethodListParticipants, rpc.Fields{"excluding_id": excludingID, "limit": limit})
	if err != nil {
		return nil, err
	}
	return participants(out), nil
}

// ListInbox returns everyone selfID has exchanged direct messages with.
func (c *Client) ListInbox(ctx context.Context, selfID string) ([]chat.Participant, error) {
	out, err := c.invoke(ctx, rpc.MethodListInbox, rpc.Fields{"self_id": selfID})
	if err != nil {
		return nil, err
	}
	return participants(out), nil
}

func participants(out rpc.Args) []chat.Participant {
	var ps []chat.Participant
	for _, a := range out.List("participants") {
		ps = append(ps, rpc.ParticipantFrom(a))
	}
	return ps
}

func (c *Client) InsertGroup(ctx context.Context, g chat.Group) (chat.Group, error) {
	out, err := c.invoke(ctx, rpc.MethodInsertGroup, rpc.Group(g))
	if err != nil {
		return chat.Group{}, err
	}
	return rpc.GroupFrom(out), nil
}

// GetGroup returns nil, nil when id is unknown.
func (c *Client) GetGroup(ctx context.Context, id string) (*chat.Group, error) {
	out, err := c.invoke(ctx, rpc.MethodGetGroup, rpc.Fields{"id": id})
	if errors.Is(err, chat.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g := rpc.GroupFrom(out)
	return &g, nil
}

func (c *Client) ListGroups(ctx context.Context, limit int) ([]chat.Group, error) {
	out, err := c.invoke(ctx, rpc.MethodListGroups, rpc.Fields{"limit": limit})
	if err != nil {
		return nil, err
	}
	var gs []chat.Group
	for _, a := range out.List("groups") {
		gs = append(gs, rpc.GroupFrom(a))
	}
	return gs, nil
}

func reactionReq(subjectID, participantID string) rpc.Fields {
	return rpc.Fields{"subject_id": subjectID, "participant_id": participantID}
}

func (c *Client) InsertReaction(ctx context.Context, subjectID, participantID string) error {
	_, err := c.invoke(ctx, rpc.MethodInsertReaction, reactionReq(subjectID, participantID))
	return err
}

func (c *Client) DeleteReaction(ctx context.Context, subjectID, participantID string) error {
	_, err := c.invoke(ctx, rpc.MethodDeleteReaction, reactionReq(subjectID, participantID))
	return err
}

func (c *Client) ReactionState(ctx context.Context, subjectID, participantID string) (chat.ReactionState, error) {
	out, err := c.invoke(ctx, rpc.MethodReactionState, reactionReq(subjectID, participantID))
	if err != nil {
		return chat.ReactionState{}, err
	}
	return rpc.ReactionFrom(out), nil
}

// DaemonStatus is the daemon's self-report.
type DaemonStatus struct {
	Session      string        `json:"session"`
	PID          int           `json:"pid"`
	Uptime       time.Duration `json:"uptime_ns"`
	Participants int64         `json:"participants"`
	Messages     int64         `json:"messages"`
	Subscribers  int           `json:"subscribers"`
	Dropped      int64         `json:"dropped"`
}

// Status asks the daemon for its status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	out, err := c.invoke(ctx, rpc.MethodStatus, rpc.Fields{})
	if err != nil {
		return DaemonStatus{}, err
	}
	return DaemonStatus{
		Session:      out.String("session"),
		PID:          out.Int("pid"),
		Uptime:       time.Duration(out.Int64("uptime_ms")) * time.Millisecond,
		Participants: out.Int64("participants"),
		Messages:     out.Int64("messages"),
		Subscribers:  out.Int("subscribers"),
		Dropped:      out.Int64("dropped"),
	}, nil
}
