package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// Command names accepted in command mode, with their aliases.
const (
	CmdOpen    = "open"
	CmdRetry   = "retry"
	CmdDiscard = "discard"
	CmdLike    = "like"
	CmdReload  = "reload"
	CmdHelp    = "help"
	CmdQuit    = "quit"
)

var aliases = map[string]string{
	"o":    CmdOpen,
	"chat": CmdOpen,
	"h":    CmdHelp,
	"q":    CmdQuit,
	"q!":   CmdQuit,
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if canonical, ok := aliases[cmd.Name]; ok {
		cmd.Name = canonical
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}
