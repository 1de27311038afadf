package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Archive is the YAML document accepted by chatctl import.
type Archive struct {
	Participants []ArchiveParticipant `yaml:"participants"`
	Groups       []ArchiveGroup       `yaml:"groups"`
	Messages     []ArchiveMessage     `yaml:"messages"`
}

type ArchiveParticipant struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Category    string `yaml:"category"`
}

type ArchiveGroup struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Creator     string `yaml:"creator"`
}

// ArchiveMessage names exactly one of To and Group.
type ArchiveMessage struct {
	ID    string    `yaml:"id"`
	From  string    `yaml:"from"`
	To    string    `yaml:"to"`
	Group string    `yaml:"group"`
	Text  string    `yaml:"text"`
	At    time.Time `yaml:"at"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Participants int `json:"participants"`
	Groups       int `json:"groups"`
	Messages     int `json:"messages"`
	Skipped      int `json:"skipped"`
}

// ParseArchive decodes and validates an archive.
func ParseArchive(r io.Reader) (*Archive, error) {
	var a Archive
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	for i, m := range a.Messages {
		switch {
		case m.ID == "":
			return nil, fmt.Errorf("message %d: id required", i)
		case m.From == "":
			return nil, fmt.Errorf("message %s: from required", m.ID)
		case (m.To == "") == (m.Group == ""):
			return nil, fmt.Errorf("message %s: exactly one of to and group is required", m.ID)
		case chat.Blank(m.Text):
			return nil, fmt.Errorf("message %s: text is blank", m.ID)
		case m.At.IsZero():
			return nil, fmt.Errorf("message %s: at required", m.ID)
		}
	}
	return &a, nil
}

// Rows converts the archive messages to storage rows.
func (a *Archive) Rows() []chat.Row {
	rows := make([]chat.Row, 0, len(a.Messages))
	for _, m := range a.Messages {
		rows = append(rows, chat.Row{
			ID:         m.ID,
			SenderID:   m.From,
			ReceiverID: m.To,
			GroupID:    m.Group,
			Text:       chat.NormalizeText(m.Text),
			CreatedAt:  m.At,
		})
	}
	return rows
}

func importArchive(ctx context.Context, b Backend, a *Archive) (ImportResult, error) {
	var res ImportResult
	for _, p := range a.Participants {
		if err := b.UpsertParticipant(ctx, chat.Participant{ID: p.ID, DisplayName: p.DisplayName, Category: p.Category}); err != nil {
			return res, fmt.Errorf("participant %s: %w", p.ID, err)
		}
		res.Participants++
	}
	for _, g := range a.Groups {
		_, err := b.InsertGroup(ctx, chat.Group{ID: g.ID, Name: g.Name, Description: g.Description, CreatorID: g.Creator})
		if errors.Is(err, chat.ErrDuplicate) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("group %s: %w", g.ID, err)
		}
		res.Groups++
	}
	n, err := b.IngestBatch(ctx, a.Rows())
	if err != nil {
		return res, fmt.Errorf("messages: %w", err)
	}
	res.Messages = n
	res.Skipped = len(a.Messages) - n
	return res, nil
}

// NewImportCommand loads a YAML archive into the daemon.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.yaml>",
		Short: "Import participants, groups and messages from YAML",
		Long: `Import a YAML archive. Participants are upserted, existing groups and
messages are skipped, so importing the same archive twice is harmless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "open archive", err)
			}
			defer f.Close()
			archive, err := ParseArchive(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid archive", err)
			}

			b, _, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := rootOpts.timeout(cmd.Context())
			defer cancel()

			out := formatter(rootOpts, cmd)
			res, err := importArchive(ctx, b, archive)
			if err != nil {
				return out.Fail("import", chat.Classify("import", err))
			}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d participants, %d groups, %d messages (%d already present)\n",
					res.Participants, res.Groups, res.Messages, res.Skipped)
			})
		},
	}
}
