package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
)

// DefaultListLimit is how many entries the discover lists show.
const DefaultListLimit = 8

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		id, name, category string
		save               bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create or update the local participant",
		Long: `Upsert the local participant. Flags default to the [identity] section
of config.toml; a missing id is generated. With --save the identity is
written back to config.toml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ident := rootOpts.cfg.Identity
			if id != "" {
				ident.ID = id
			}
			if name != "" {
				ident.DisplayName = name
			}
			if category != "" {
				ident.Category = category
			}
			if ident.ID == "" {
				ident.ID = uuid.NewString()
			}
			if ident.DisplayName == "" {
				return NewExitError(ExitCommandError, "display name required: pass --name or set [identity] display_name")
			}

			b, _, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			p := chat.Participant{ID: ident.ID, DisplayName: ident.DisplayName, Category: ident.Category}
			if err := b.UpsertParticipant(ctx, p); err != nil {
				return out.Fail("register", chat.Classify("register", err))
			}
			if save {
				rootOpts.cfg.Identity = ident
				if err := config.Save(session.ConfigPath(), rootOpts.cfg); err != nil {
					return WrapExitError(ExitFailure, "save identity", err)
				}
			}
			return out.Success(p, func(w io.Writer) {
				fmt.Fprintf(w, "registered %s (%s)\n", p.DisplayName, p.ID)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "participant id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&category, "category", "", "free-form category")
	cmd.Flags().BoolVar(&save, "save", false, "store the identity in config.toml")
	return cmd
}

// NewParticipantsCommand lists other participants.
func NewParticipantsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "participants",
		Short: "List participants other than yourself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			self, _ := rootOpts.self()
			b, _, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			ps, err := b.ListParticipants(ctx, self, limit)
			if err != nil {
				return out.Fail("participants", chat.Classify("participants", err))
			}
			return out.Success(ps, func(w io.Writer) { renderParticipants(w, ps) })
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", DefaultListLimit, "maximum entries")
	return cmd
}

// NewInboxCommand lists the people you have direct conversations with.
func NewInboxCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "List your direct conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			self, err := rootOpts.self()
			if err != nil {
				return err
			}
			b, _, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			ps, err := b.ListInbox(ctx, self)
			if err != nil {
				return out.Fail("inbox", chat.Classify("inbox", err))
			}
			return out.Success(ps, func(w io.Writer) { renderParticipants(w, ps) })
		},
	}
}

// NewGroupsCommand groups the group subcommands.
func NewGroupsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List or create groups",
	}
	cmd.AddCommand(newGroupsListCommand(rootOpts))
	cmd.AddCommand(newGroupsCreateCommand(rootOpts))
	return cmd
}

func newGroupsListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			gs, err := b.ListGroups(ctx, limit)
			if err != nil {
				return out.Fail("groups", chat.Classify("groups", err))
			}
			return out.Success(gs, func(w io.Writer) { renderGroups(w, gs) })
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", DefaultListLimit, "maximum entries")
	return cmd
}

func newGroupsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group owned by you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			self, err := rootOpts.self()
			if err != nil {
				return err
			}
			b, _, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			g, err := b.InsertGroup(ctx, chat.Group{Name: args[0], Description: description, CreatorID: self})
			if err != nil {
				return out.Fail("create group", chat.Classify("create group", err))
			}
			return out.Success(g, func(w io.Writer) {
				fmt.Fprintf(w, "created group:%s %s\n", g.ID, g.Name)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "group description")
	return cmd
}

func formatter(rootOpts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
}
