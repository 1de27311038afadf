package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/engine"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/spf13/cobra"
)

// conversation is an engine session with one selected target.
type conversation struct {
	backend Backend
	sess    *engine.Session
	target  chat.Target
	names   Names
}

// open connects, resolves arg and selects it. The history is loaded when
// open returns.
func (o *RootOptions) open(ctx context.Context, arg string) (*conversation, error) {
	b, feed, err := o.connect()
	if err != nil {
		return nil, err
	}
	target, err := resolveTarget(ctx, b, arg)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	sess, err := o.newSession(b, feed)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := sess.SelectConversation(ctx, target); err != nil {
		sess.Close()
		_ = b.Close()
		return nil, err
	}
	return &conversation{
		backend: b,
		sess:    sess,
		target:  target,
		names:   names(ctx, b, sess.Self(), target),
	}, nil
}

func (c *conversation) close() {
	c.sess.Close()
	_ = c.backend.Close()
}

func (c *conversation) render(w io.Writer) {
	st, _ := c.sess.Status()
	renderThread(w, titleOf(c.target), st, c.sess.Visible(), c.sess.Self(), c.names)
}

// NewHistoryCommand prints a conversation.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <participant|group:id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			conv, err := rootOpts.open(ctx, args[0])
			if err != nil {
				return failOpen(out, err)
			}
			defer conv.close()

			return out.Success(messagesJSON(conv.sess.Visible()), conv.render)
		},
	}
}

// NewSendCommand sends one message.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <participant|group:id> <text>...",
		Short: "Send a message and wait for the daemon to store it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			conv, err := rootOpts.open(ctx, args[0])
			if err != nil {
				return failOpen(out, err)
			}
			defer conv.close()

			m, err := conv.sess.Submit(ctx, strings.Join(args[1:], " "))
			if err != nil {
				return out.Fail("send", err)
			}
			return out.Success(messagesJSON([]chat.Message{m})[0], func(w io.Writer) {
				fmt.Fprintf(w, "sent %s\n", m.ID)
			})
		},
	}
}

// NewWatchCommand follows a conversation until interrupted.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch <participant|group:id>",
		Short: "Print a conversation and follow new messages",
		Long: `Print the conversation, then every message stored after it, until
interrupted. Connection changes are reported on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := formatter(rootOpts, cmd)

			openCtx, cancel := rootOpts.timeout(ctx)
			conv, err := rootOpts.open(openCtx, args[0])
			cancel()
			if err != nil {
				return failOpen(out, err)
			}
			defer conv.close()

			views, stop := conv.sess.Watch(64)
			defer stop()
			changes, unsub := conv.sess.Bus().Subscribe(bus.KindStatusChanged, 8)
			defer unsub()

			seen := map[string]bool{}
			initial := conv.sess.Visible()
			for _, m := range initial {
				seen[m.ID] = true
			}
			if err := out.Success(messagesJSON(initial), conv.render); err != nil {
				return err
			}

			printed := 0
			for count <= 0 || printed < count {
				select {
				case <-ctx.Done():
					return nil
				case evt := <-changes:
					if sc, ok := evt.Payload.(status.StatusChange); ok {
						fmt.Fprintf(cmd.ErrOrStderr(), "-- %s %s\n", sc.To, sc.Detail)
					}
				case v, ok := <-views:
					if !ok {
						return nil
					}
					for _, m := range v.Messages {
						if m.State != chat.Confirmed || seen[m.ID] {
							continue
						}
						seen[m.ID] = true
						printed++
						if err := out.Success(messagesJSON([]chat.Message{m})[0], func(w io.Writer) {
							renderMessage(w, m, conv.sess.Self(), conv.names)
						}); err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many new messages (0 = never)")
	return cmd
}

// NewReactCommand toggles your like on a message or participant.
func NewReactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "react <subject-id>",
		Short: "Toggle your like on a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			b, feed, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()
			sess, err := rootOpts.newSession(b, feed)
			if err != nil {
				return err
			}
			defer sess.Close()

			cur, err := sess.Reaction(ctx, args[0])
			if err != nil {
				return out.Fail("react", err)
			}
			st, err := sess.ToggleReaction(ctx, args[0], cur.Present)
			if err != nil {
				return out.Fail("react", err)
			}
			return out.Success(st, func(w io.Writer) {
				verb := "unliked"
				if st.Present {
					verb = "liked"
				}
				fmt.Fprintf(w, "%s %s (%d likes)\n", verb, st.SubjectID, st.Count)
			})
		},
	}
}

func failOpen(out *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return out.Fail("open conversation", err)
}
