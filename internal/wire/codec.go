package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrUnknownRequest is returned for envelopes that carry no known request variant.
	ErrUnknownRequest = errors.New("unknown request variant")
	// ErrUnknownResponse is returned for envelopes that carry no known response variant.
	ErrUnknownResponse = errors.New("unknown response variant")
)

// Request envelope field numbers.
const (
	reqInitialize       protowire.Number = 1
	reqAudio            protowire.Number = 2
	reqEndpoint         protowire.Number = 3
	reqEditorState      protowire.Number = 4
	reqCallback         protowire.Number = 5
	reqDisable          protowire.Number = 6
	reqAppendToPrevious protowire.Number = 7
	reqText             protowire.Number = 8
	reqKeepAlive        protowire.Number = 9
)

// Response envelope field numbers.
const (
	respCommands  protowire.Number = 1
	respKeepAlive protowire.Number = 2
)

// EncodeRequest serializes one request into its binary envelope.
func EncodeRequest(req Request) ([]byte, error) {
	var b []byte
	switch r := req.(type) {
	case InitializeRequest:
		b = appendMessage(b, reqInitialize, appendMessage(nil, 1, encodeEditorState(r.EditorState)))
	case AudioRequest:
		var body []byte
		body = appendBytes(body, 1, r.Audio)
		body = appendString(body, 2, r.ChunkID)
		b = appendMessage(b, reqAudio, body)
	case EndpointRequest:
		var body []byte
		body = appendString(body, 1, r.ChunkID)
		body = appendBool(body, 2, r.Finalize)
		body = appendString(body, 3, r.EndpointID)
		b = appendMessage(b, reqEndpoint, body)
	case EditorStateRequest:
		b = appendMessage(b, reqEditorState, appendMessage(nil, 1, encodeEditorState(r.EditorState)))
	case CallbackRequest:
		var body []byte
		body = appendInt(body, 1, int64(r.Type))
		body = appendString(body, 2, r.Text)
		b = appendMessage(b, reqCallback, body)
	case DisableRequest:
		b = appendMessage(b, reqDisable, nil)
	case AppendToPreviousRequest:
		b = appendMessage(b, reqAppendToPrevious, nil)
	case TextRequest:
		var body []byte
		body = appendString(body, 1, r.Text)
		body = appendBool(body, 2, r.IncludeAlternatives)
		b = appendMessage(b, reqText, body)
	case KeepAliveRequest:
		b = appendMessage(b, reqKeepAlive, nil)
	default:
		return nil, fmt.Errorf("encode %T: %w", req, ErrUnknownRequest)
	}
	return b, nil
}

// DecodeRequest parses a request envelope. The last known variant wins.
func DecodeRequest(b []byte) (Request, error) {
	var out Request
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		body, err := bytesOf(value)
		if err != nil {
			return err
		}
		switch num {
		case reqInitialize:
			state, err := decodeStateWrapper(body)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			out = InitializeRequest{EditorState: state}
		case reqAudio:
			var r AudioRequest
			err := walk(body, func(num protowire.Number, typ protowire.Type, value []byte) error {
				switch num {
				case 1:
					v, err := bytesOf(value)
					r.Audio = append([]byte(nil), v...)
					return err
				case 2:
					return stringInto(&r.ChunkID, value)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("audio: %w", err)
			}
			out = r
		case reqEndpoint:
			var r EndpointRequest
			err := walk(body, func(num protowire.Number, typ protowire.Type, value []byte) error {
				switch num {
				case 1:
					return stringInto(&r.ChunkID, value)
				case 2:
					return boolInto(&r.Finalize, value)
				case 3:
					return stringInto(&r.EndpointID, value)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("endpoint: %w", err)
			}
			out = r
		case reqEditorState:
			state, err := decodeStateWrapper(body)
			if err != nil {
				return fmt.Errorf("editor state: %w", err)
			}
			out = EditorStateRequest{EditorState: state}
		case reqCallback:
			var r CallbackRequest
			err := walk(body, func(num protowire.Number, typ protowire.Type, value []byte) error {
				switch num {
				case 1:
					v, err := varintOf(value)
					r.Type = CallbackType(int32(v))
					return err
				case 2:
					return stringInto(&r.Text, value)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("callback: %w", err)
			}
			out = r
		case reqDisable:
			out = DisableRequest{}
		case reqAppendToPrevious:
			out = AppendToPreviousRequest{}
		case reqText:
			var r TextRequest
			err := walk(body, func(num protowire.Number, typ protowire.Type, value []byte) error {
				switch num {
				case 1:
					return stringInto(&r.Text, value)
				case 2:
					return boolInto(&r.IncludeAlternatives, value)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("text: %w", err)
			}
			out = r
		case reqKeepAlive:
			out = KeepAliveRequest{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if out == nil {
		return nil, ErrUnknownRequest
	}
	return out, nil
}

// EncodeResponse serializes one response into its binary envelope.
func EncodeResponse(resp Response) ([]byte, error) {
	switch r := resp.(type) {
	case *CommandsResponse:
		if r == nil {
			return nil, fmt.Errorf("encode nil commands response: %w", ErrUnknownResponse)
		}
		return appendMessage(nil, respCommands, encodeCommandsResponse(r)), nil
	case KeepAliveResponse:
		return appendMessage(nil, respKeepAlive, nil), nil
	default:
		return nil, fmt.Errorf("encode %T: %w", resp, ErrUnknownResponse)
	}
}

// DecodeResponse parses a response envelope.
func DecodeResponse(b []byte) (Response, error) {
	var out Response
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		body, err := bytesOf(value)
		if err != nil {
			return err
		}
		switch num {
		case respCommands:
			r, err := decodeCommandsResponse(body)
			if err != nil {
				return fmt.Errorf("commands response: %w", err)
			}
			out = r
		case respKeepAlive:
			out = KeepAliveResponse{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		return nil, ErrUnknownResponse
	}
	return out, nil
}

func encodeCommandsResponse(r *CommandsResponse) []byte {
	var b []byte
	for _, a := range r.Alternatives {
		b = appendMessage(b, 1, encodeAlternative(a))
	}
	if r.Execute != nil {
		b = appendMessage(b, 2, encodeAlternative(*r.Execute))
	}
	b = appendBool(b, 3, r.Final)
	if r.SilenceThreshold != 0 {
		b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(r.SilenceThreshold))
	}
	b = appendString(b, 5, r.ChunkID)
	b = appendBool(b, 6, r.TextResponse)
	return b
}

func decodeCommandsResponse(b []byte) (*CommandsResponse, error) {
	r := &CommandsResponse{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1, 2:
			body, err := bytesOf(value)
			if err != nil {
				return err
			}
			a, err := decodeAlternative(body)
			if err != nil {
				return err
			}
			if num == 1 {
				r.Alternatives = append(r.Alternatives, a)
			} else {
				r.Execute = &a
			}
		case 3:
			return boolInto(&r.Final, value)
		case 4:
			if typ != protowire.Fixed64Type {
				return nil
			}
			v, n := protowire.ConsumeFixed64(value)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.SilenceThreshold = math.Float64frombits(v)
		case 5:
			return stringInto(&r.ChunkID, value)
		case 6:
			return boolInto(&r.TextResponse, value)
		}
		return nil
	})
	return r, err
}

func encodeAlternative(a Alternative) []byte {
	var b []byte
	b = appendString(b, 1, a.AlternativeID)
	b = appendString(b, 2, a.Transcript)
	b = appendString(b, 3, a.Description)
	for _, c := range a.Commands {
		b = appendMessage(b, 4, encodeCommand(c))
	}
	b = appendString(b, 5, a.Remaining)
	return b
}

func decodeAlternative(b []byte) (Alternative, error) {
	var a Alternative
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			return stringInto(&a.AlternativeID, value)
		case 2:
			return stringInto(&a.Transcript, value)
		case 3:
			return stringInto(&a.Description, value)
		case 4:
			body, err := bytesOf(value)
			if err != nil {
				return err
			}
			c, err := decodeCommand(body)
			if err != nil {
				return err
			}
			a.Commands = append(a.Commands, c)
		case 5:
			return stringInto(&a.Remaining, value)
		}
		return nil
	})
	return a, err
}

func encodeCommand(c Command) []byte {
	var b []byte
	b = appendInt(b, 1, int64(c.Type))
	b = appendString(b, 2, c.Text)
	b = appendString(b, 3, c.Source)
	b = appendInt(b, 4, int64(c.Cursor))
	for _, ch := range c.Changes {
		var body []byte
		body = appendInt(body, 1, int64(ch.Start))
		body = appendInt(body, 2, int64(ch.Stop))
		body = appendString(body, 3, ch.Substitution)
		b = appendMessage(b, 5, body)
	}
	b = appendString(b, 6, c.Key)
	for _, m := range c.Modifiers {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendString(b, m)
	}
	b = appendInt(b, 8, int64(c.Index))
	b = appendString(b, 9, c.Path)
	b = appendString(b, 10, c.CustomID)
	b = appendString(b, 11, c.Direction)
	return b
}

func decodeCommand(b []byte) (Command, error) {
	var c Command
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			v, err := varintOf(value)
			c.Type = CommandType(int32(v))
			return err
		case 2:
			return stringInto(&c.Text, value)
		case 3:
			return stringInto(&c.Source, value)
		case 4:
			return intInto(&c.Cursor, value)
		case 5:
			body, err := bytesOf(value)
			if err != nil {
				return err
			}
			var ch Change
			err = walk(body, func(num protowire.Number, typ protowire.Type, value []byte) error {
				switch num {
				case 1:
					return intInto(&ch.Start, value)
				case 2:
					return intInto(&ch.Stop, value)
				case 3:
					return stringInto(&ch.Substitution, value)
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.Changes = append(c.Changes, ch)
		case 6:
			return stringInto(&c.Key, value)
		case 7:
			var m string
			if err := stringInto(&m, value); err != nil {
				return err
			}
			c.Modifiers = append(c.Modifiers, m)
		case 8:
			return intInto(&c.Index, value)
		case 9:
			return stringInto(&c.Path, value)
		case 10:
			return stringInto(&c.CustomID, value)
		case 11:
			return stringInto(&c.Direction, value)
		}
		return nil
	})
	return c, err
}

func encodeEditorState(s EditorState) []byte {
	var b []byte
	b = appendString(b, 1, s.Source)
	b = appendInt(b, 2, int64(s.Cursor))
	b = appendString(b, 3, s.Filename)
	b = appendString(b, 4, s.Application)
	b = appendBool(b, 5, s.CanGetState)
	b = appendBool(b, 6, s.CanSetState)
	b = appendString(b, 7, s.Clipboard)
	b = appendString(b, 8, s.ClientIdentifier)
	return b
}

func decodeStateWrapper(b []byte) (EditorState, error) {
	var s EditorState
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if num != 1 {
			return nil
		}
		body, err := bytesOf(value)
		if err != nil {
			return err
		}
		s, err = decodeEditorState(body)
		return err
	})
	return s, err
}

func decodeEditorState(b []byte) (EditorState, error) {
	var s EditorState
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			return stringInto(&s.Source, value)
		case 2:
			return intInto(&s.Cursor, value)
		case 3:
			return stringInto(&s.Filename, value)
		case 4:
			return stringInto(&s.Application, value)
		case 5:
			return boolInto(&s.CanGetState, value)
		case 6:
			return boolInto(&s.CanSetState, value)
		case 7:
			return stringInto(&s.Clipboard, value)
		case 8:
			return stringInto(&s.ClientIdentifier, value)
		}
		return nil
	})
	return s, err
}

// walk visits each top-level field of one message with its raw value bytes.
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := visit(num, typ, b[:m]); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	return appendMessage(b, num, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func bytesOf(value []byte) ([]byte, error) {
	v, n := protowire.ConsumeBytes(value)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return v, nil
}

func varintOf(value []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(value)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return v, nil
}

func stringInto(dst *string, value []byte) error {
	v, err := bytesOf(value)
	if err != nil {
		return err
	}
	*dst = string(v)
	return nil
}

func boolInto(dst *bool, value []byte) error {
	v, err := varintOf(value)
	if err != nil {
		return err
	}
	*dst = protowire.DecodeBool(v)
	return nil
}

func intInto(dst *int, value []byte) error {
	v, err := varintOf(value)
	if err != nil {
		return err
	}
	*dst = int(int64(v))
	return nil
}
