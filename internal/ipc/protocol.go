package ipc

import "encoding/json"

// Request is one control intent sent to the running daemon.
type Request struct {
	Command string `json:"command"`
	Index   int    `json:"index,omitempty"`
	Text    string `json:"text,omitempty"`
	Metrics bool   `json:"metrics,omitempty"`
}

type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
