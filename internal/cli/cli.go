// Package cli parses parley's command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandDaemon  Command = "daemon"
	CommandToggle  Command = "toggle"
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandStatus  Command = "status"
	CommandUse     Command = "use"
	CommandUndo    Command = "undo"
	CommandRedo    Command = "redo"
	CommandText    Command = "text"
	CommandQuit    Command = "quit"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandDaemon:  {},
	CommandToggle:  {},
	CommandStart:   {},
	CommandStop:    {},
	CommandStatus:  {},
	CommandUse:     {},
	CommandUndo:    {},
	CommandRedo:    {},
	CommandText:    {},
	CommandQuit:    {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// Index is the 1-based alternative for use.
	Index int
	// Text is the utterance for text, joined from the remaining arguments.
	Text string
	// Metrics asks status to include the daemon's counters.
	Metrics bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandArgs(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandArgs(parsed *Parsed, rest []string) error {
	switch parsed.Command {
	case CommandUse:
		if len(rest) != 1 {
			return errors.New("use requires exactly one alternative number")
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid alternative number %q", rest[0])
		}
		parsed.Index = n
	case CommandText:
		text := strings.TrimSpace(strings.Join(rest, " "))
		if text == "" {
			return errors.New("text requires an utterance")
		}
		parsed.Text = text
	case CommandStatus:
		for _, arg := range rest {
			if arg != "--metrics" {
				return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}
			parsed.Metrics = true
		}
	default:
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Commands:
  daemon              Run the daemon in the foreground without listening
  toggle              Start or stop listening; starts the daemon when none is running
  start               Start listening
  stop                Stop listening
  status [--metrics]  Print current state, optionally with counters
  use N               Execute pending alternative N
  undo                Undo the last executed command
  redo                Redo the last undone command
  text UTTERANCE      Interpret typed text as if it were spoken
  quit                Stop the running daemon
  devices             List available input devices
  doctor              Run configuration and environment checks
  version             Print version information
  help                Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/parley/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
