package plugin

import (
	"encoding/json"

	"github.com/rbright/parley/internal/wire"
)

// Envelope is one JSON frame exchanged with a plugin.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type identity struct {
	ID    string `json:"id"`
	App   string `json:"app"`
	Match string `json:"match,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type callbackData struct {
	Callback string          `json:"callback"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type textData struct {
	Text string `json:"text"`
}

type responseData struct {
	Callback string       `json:"callback"`
	Response jsonResponse `json:"response"`
}

type jsonChange struct {
	Start        int    `json:"start"`
	Stop         int    `json:"stop"`
	Substitution string `json:"substitution"`
}

type jsonCommand struct {
	Type      string       `json:"type"`
	Text      string       `json:"text,omitempty"`
	Source    string       `json:"source,omitempty"`
	Cursor    int          `json:"cursor"`
	Changes   []jsonChange `json:"changes,omitempty"`
	Key       string       `json:"key,omitempty"`
	Modifiers []string     `json:"modifiers,omitempty"`
	Index     int          `json:"index,omitempty"`
	Path      string       `json:"path,omitempty"`
	Direction string       `json:"direction,omitempty"`
	CustomID  string       `json:"customCommandId,omitempty"`
}

type jsonAlternative struct {
	AlternativeID string        `json:"alternativeId,omitempty"`
	Transcript    string        `json:"transcript,omitempty"`
	Description   string        `json:"description,omitempty"`
	Commands      []jsonCommand `json:"commands"`
	CommandsList  []jsonCommand `json:"commandsList"`
	Remaining     string        `json:"remaining,omitempty"`
}

type jsonResponse struct {
	Alternatives     []jsonAlternative `json:"alternatives,omitempty"`
	AlternativesList []jsonAlternative `json:"alternativesList,omitempty"`
	Execute          *jsonAlternative  `json:"execute,omitempty"`
	Final            bool              `json:"final,omitempty"`
	ChunkID          string            `json:"chunkId,omitempty"`
	TextResponse     bool              `json:"textResponse,omitempty"`
}

// commandTypeName spells command types the way plugins expect them.
func commandTypeName(t wire.CommandType) string {
	return "COMMAND_TYPE_" + t.String()
}

func encodeResponse(resp *wire.CommandsResponse) jsonResponse {
	out := jsonResponse{
		Final:        resp.Final,
		ChunkID:      resp.ChunkID,
		TextResponse: resp.TextResponse,
	}
	for _, alt := range resp.Alternatives {
		out.Alternatives = append(out.Alternatives, encodeAlternative(alt))
	}
	out.AlternativesList = out.Alternatives
	if resp.Execute != nil {
		exec := encodeAlternative(*resp.Execute)
		out.Execute = &exec
	}
	return out
}

func encodeAlternative(alt wire.Alternative) jsonAlternative {
	commands := make([]jsonCommand, 0, len(alt.Commands))
	for _, c := range alt.Commands {
		cmd := jsonCommand{
			Type:      commandTypeName(c.Type),
			Text:      c.Text,
			Source:    c.Source,
			Cursor:    c.Cursor,
			Key:       c.Key,
			Modifiers: c.Modifiers,
			Index:     c.Index,
			Path:      c.Path,
			Direction: c.Direction,
			CustomID:  c.CustomID,
		}
		for _, ch := range c.Changes {
			cmd.Changes = append(cmd.Changes, jsonChange(ch))
		}
		commands = append(commands, cmd)
	}
	return jsonAlternative{
		AlternativeID: alt.AlternativeID,
		Transcript:    alt.Transcript,
		Description:   alt.Description,
		Commands:      commands,
		CommandsList:  commands,
		Remaining:     alt.Remaining,
	}
}
