package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/wire"
)

const (
	stateListening = "listening"
	statePaused    = "paused"
)

func (o *Orchestrator) state() string {
	if o.Listening() {
		return stateListening
	}
	return statePaused
}

// Handle serves presentation intents arriving over IPC.
func (o *Orchestrator) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: o.state(), Message: "status"}
	case "toggle":
		next := statePaused
		if !o.Listening() {
			next = stateListening
		}
		o.Toggle()
		return ipc.Response{OK: true, State: next, Message: "toggle requested"}
	case "start":
		o.SetListening(true)
		return ipc.Response{OK: true, State: stateListening, Message: "start requested"}
	case "stop":
		o.SetListening(false)
		return ipc.Response{OK: true, State: statePaused, Message: "stop requested"}
	case "use":
		if req.Index < 1 {
			return ipc.Response{OK: false, State: o.state(), Error: fmt.Sprintf("invalid alternative index %d", req.Index)}
		}
		o.post(intentEvent{resp: intent(fmt.Sprintf("use %d", req.Index), wire.Command{Type: wire.CommandUse, Index: req.Index})})
		return ipc.Response{OK: true, State: o.state(), Message: fmt.Sprintf("use %d requested", req.Index)}
	case "undo":
		o.post(intentEvent{resp: intent("undo", wire.Command{Type: wire.CommandUndo})})
		return ipc.Response{OK: true, State: o.state(), Message: "undo requested"}
	case "redo":
		o.post(intentEvent{resp: intent("redo", wire.Command{Type: wire.CommandRedo})})
		return ipc.Response{OK: true, State: o.state(), Message: "redo requested"}
	case "text":
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return ipc.Response{OK: false, State: o.state(), Error: "text is empty"}
		}
		if !o.Listening() {
			return ipc.Response{OK: false, State: o.state(), Error: "not listening"}
		}
		o.out.Text(ctx, text, true)
		return ipc.Response{OK: true, State: o.state(), Message: "text sent"}
	default:
		return ipc.Response{OK: false, State: o.state(), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// intent wraps a locally issued command as an execute-only response.
func intent(transcript string, cmd wire.Command) *wire.CommandsResponse {
	return &wire.CommandsResponse{
		Final: true,
		Execute: &wire.Alternative{
			Transcript: transcript,
			Commands:   []wire.Command{cmd},
		},
	}
}
