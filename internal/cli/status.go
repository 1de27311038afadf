package cli

import (
	"fmt"
	"io"

	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
)

// NewStatusCommand reports on the session daemon.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
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
			st, err := b.Status(ctx)
			if err == nil {
				return out.Success(st, func(w io.Writer) { renderStatus(w, st) })
			}

			// Tell a stopped daemon apart from a wedged one.
			msg := fmt.Sprintf("daemon for session %q is not running", rootOpts.name)
			if pid, held, _ := lock.Probe(session.Dir(rootOpts.name)); held {
				msg = fmt.Sprintf("daemon for session %q (PID %d) holds the lock but does not answer", rootOpts.name, pid)
			}
			return WrapExitError(ExitFailure, msg, err)
		},
	}
}
