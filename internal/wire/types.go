// Package wire models engine requests and responses and their binary envelope.
package wire

// CallbackType tags a callback request.
type CallbackType int32

const (
	CallbackNone CallbackType = iota
	CallbackAddToHistory
	CallbackPaste
	CallbackChain
	CallbackOpenFile
	CallbackCustom
)

// Change is one disjoint substitution over an editor source, measured in runes.
type Change struct {
	Start        int
	Stop         int
	Substitution string
}

// Command is one typed instruction inside an Alternative.
type Command struct {
	Type      CommandType
	Text      string
	Source    string
	Cursor    int
	Changes   []Change
	Key       string
	Modifiers []string
	Index     int
	Path      string
	Direction string
	CustomID  string
}

// Alternative is one ranked interpretation of a chunk.
type Alternative struct {
	AlternativeID string
	Transcript    string
	Description   string
	Commands      []Command
	Remaining     string
}

// Valid reports whether no command in the alternative is the invalid sentinel.
func (a Alternative) Valid() bool {
	for _, c := range a.Commands {
		if c.Type == CommandInvalid {
			return false
		}
	}
	return true
}

// Invalidate marks every command invalid.
func (a *Alternative) Invalidate() {
	for i := range a.Commands {
		a.Commands[i].Type = CommandInvalid
	}
}

// CommandsResponse is the engine's interpretation set for a chunk or a text request.
type CommandsResponse struct {
	Alternatives     []Alternative
	Execute          *Alternative
	Final            bool
	SilenceThreshold float64
	ChunkID          string
	TextResponse     bool
}

// IsMeta reports whether the top alternative selects or cancels a pending prompt.
func (r *CommandsResponse) IsMeta() bool {
	if r == nil || len(r.Alternatives) == 0 || len(r.Alternatives[0].Commands) == 0 {
		return false
	}
	switch r.Alternatives[0].Commands[0].Type {
	case CommandUse, CommandCancel:
		return true
	default:
		return false
	}
}

// ValidAlternatives returns the alternatives that carry no invalid command.
func (r *CommandsResponse) ValidAlternatives() []Alternative {
	if r == nil {
		return nil
	}
	out := make([]Alternative, 0, len(r.Alternatives))
	for _, a := range r.Alternatives {
		if a.Valid() {
			out = append(out, a)
		}
	}
	return out
}

// Clone deep-copies the response so sanitizing never aliases engine data.
func (r *CommandsResponse) Clone() *CommandsResponse {
	if r == nil {
		return nil
	}
	out := *r
	if r.Alternatives != nil {
		out.Alternatives = make([]Alternative, len(r.Alternatives))
		for i, a := range r.Alternatives {
			out.Alternatives[i] = cloneAlternative(a)
		}
	}
	if r.Execute != nil {
		exec := cloneAlternative(*r.Execute)
		out.Execute = &exec
	}
	return &out
}

func cloneAlternative(a Alternative) Alternative {
	out := a
	if a.Commands != nil {
		out.Commands = make([]Command, len(a.Commands))
		for i, c := range a.Commands {
			cc := c
			if c.Changes != nil {
				cc.Changes = append([]Change(nil), c.Changes...)
			}
			if c.Modifiers != nil {
				cc.Modifiers = append([]string(nil), c.Modifiers...)
			}
			out.Commands[i] = cc
		}
	}
	return out
}

// EditorState is the snapshot of the focused application sent to the engine.
type EditorState struct {
	Source           string
	Cursor           int
	Filename         string
	Application      string
	CanGetState      bool
	CanSetState      bool
	Clipboard        string
	ClientIdentifier string
}

// Request is one outbound message variant.
type Request interface {
	requestKind() string
}

type InitializeRequest struct {
	EditorState EditorState
}

type AudioRequest struct {
	Audio   []byte
	ChunkID string
}

type EndpointRequest struct {
	ChunkID    string
	Finalize   bool
	EndpointID string
}

type EditorStateRequest struct {
	EditorState EditorState
}

type CallbackRequest struct {
	Type CallbackType
	Text string
}

type DisableRequest struct{}

type AppendToPreviousRequest struct{}

type TextRequest struct {
	Text                string
	IncludeAlternatives bool
}

type KeepAliveRequest struct{}

func (InitializeRequest) requestKind() string       { return "initialize" }
func (AudioRequest) requestKind() string            { return "audio" }
func (EndpointRequest) requestKind() string         { return "endpoint" }
func (EditorStateRequest) requestKind() string      { return "editor_state" }
func (CallbackRequest) requestKind() string         { return "callback" }
func (DisableRequest) requestKind() string          { return "disable" }
func (AppendToPreviousRequest) requestKind() string { return "append_to_previous" }
func (TextRequest) requestKind() string             { return "text" }
func (KeepAliveRequest) requestKind() string        { return "keep_alive" }

// Kind names a request variant for logs and metrics.
func Kind(req Request) string {
	if req == nil {
		return "nil"
	}
	return req.requestKind()
}

// Response is one inbound message: either *CommandsResponse or KeepAliveResponse.
type Response interface {
	responseKind() string
}

type KeepAliveResponse struct{}

func (*CommandsResponse) responseKind() string { return "commands" }
func (KeepAliveResponse) responseKind() string { return "keep_alive" }

// PressedKey returns the key a PRESS command names.
func (c Command) PressedKey() string {
	if c.Key != "" {
		return c.Key
	}
	return c.Text
}
