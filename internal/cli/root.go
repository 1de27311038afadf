// Package cli implements chatctl, the command-line client of a chatsync
// daemon.
package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/engine"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Backend is the daemon as seen by chatctl.
type Backend interface {
	engine.Store
	UpsertParticipant(ctx context.Context, p chat.Participant) error
	GetParticipant(ctx context.Context, id string) (*chat.Participant, error)
	FindParticipant(ctx context.Context, displayName string) (*chat.Participant, error)
	ListParticipants(ctx context.Context, excludingID string, limit int) ([]chat.Participant, error)
	ListInbox(ctx context.Context, selfID string) ([]chat.Participant, error)
	InsertGroup(ctx context.Context, g chat.Group) (chat.Group, error)
	GetGroup(ctx context.Context, id string) (*chat.Group, error)
	ListGroups(ctx context.Context, limit int) ([]chat.Group, error)
	IngestBatch(ctx context.Context, rows []chat.Row) (int, error)
	Status(ctx context.Context) (client.DaemonStatus, error)
	Close() error
}

// Dialer connects to the daemon of a session.
type Dialer func(sessionName string, log *zap.Logger) (Backend, realtime.Feed, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Session string
	As      string
	Format  string // "json" | "text"
	Verbose bool
	Timeout time.Duration

	dial Dialer
	cfg  *config.Config
	log  *zap.Logger
	name string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for chatctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{dial: dialDaemon})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatctl",
		Short: "chatctl - talk to a chatsync daemon",
		Long:  "Register participants, browse conversations, send and watch messages through a running chatsyncd.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.init()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Session, "session", "", "session name (overrides config default)")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "participant id to act as (overrides [identity] id)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to the session log")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "deadline for one-shot commands")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewParticipantsCommand(opts))
	cmd.AddCommand(NewInboxCommand(opts))
	cmd.AddCommand(NewGroupsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewReactCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

func (o *RootOptions) init() error {
	name, err := session.Resolve(o.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve session", err)
	}
	o.name = name
	if o.cfg == nil {
		cfg, err := config.LoadOrDefault(session.ConfigPath())
		if err != nil {
			return WrapExitError(ExitCommandError, "load config", err)
		}
		o.cfg = cfg
	}
	if o.log == nil {
		level := zapcore.InfoLevel
		if o.Verbose {
			level = zapcore.DebugLevel
		}
		log, err := logging.NewFileOnly(session.ClientLogPath(name, "chatctl"), name, level)
		if err != nil {
			return WrapExitError(ExitCommandError, "open log", err)
		}
		o.log = log
	}
	return nil
}

func dialDaemon(name string, log *zap.Logger) (Backend, realtime.Feed, error) {
	c, err := client.New(session.SocketPath(name))
	if err != nil {
		return nil, nil, err
	}
	return c, realtime.UnixFeed(session.RealtimeSocketPath(name), log.Named("feed")), nil
}

func (o *RootOptions) connect() (Backend, realtime.Feed, error) {
	b, f, err := o.dial(o.name, o.log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("cannot connect to daemon for session %q", o.name), err)
	}
	return b, f, nil
}

// self returns the acting participant id.
func (o *RootOptions) self() (string, error) {
	if o.As != "" {
		return o.As, nil
	}
	if o.cfg.Identity.ID != "" {
		return o.cfg.Identity.ID, nil
	}
	return "", NewExitError(ExitCommandError, "no identity: run chatctl register --save or pass --as")
}

// newSession builds an engine session over the daemon connection.
func (o *RootOptions) newSession(b Backend, f realtime.Feed) (*engine.Session, error) {
	self, err := o.self()
	if err != nil {
		return nil, err
	}
	return engine.New(b, f, nil, engine.OptionsFrom(self, o.cfg.Sync), o.log.Named("engine")), nil
}

func (o *RootOptions) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}
