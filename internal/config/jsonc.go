package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// normalizeJSONC blanks out comments and drops trailing commas so the
// result decodes as plain JSON. Byte offsets are preserved for comments,
// which keeps decode error positions meaningful.
func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripComments(content)
	if err != nil {
		return "", err
	}
	return stripTrailingCommas(withoutComments), nil
}

// scanner tracks whether the cursor sits inside a JSON string literal.
type scanner struct {
	inString bool
	escape   bool
}

// step consumes ch and reports whether it belongs to a string literal.
func (s *scanner) step(ch byte) bool {
	if s.inString {
		switch {
		case s.escape:
			s.escape = false
		case ch == '\\':
			s.escape = true
		case ch == '"':
			s.inString = false
		}
		return true
	}
	if ch == '"' {
		s.inString = true
		return true
	}
	return false
}

func stripComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	var s scanner
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if s.step(ch) || ch != '/' || i+1 >= len(content) {
			out.WriteByte(ch)
			continue
		}

		switch content[i+1] {
		case '/':
			end := strings.IndexAny(content[i:], "\r\n")
			if end < 0 {
				end = len(content) - i
			}
			out.WriteString(strings.Repeat(" ", end))
			i += end - 1
		case '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			blank(&out, content[i:i+2+end+2])
			i += 2 + end + 1
		default:
			out.WriteByte(ch)
		}
	}
	return out.String(), nil
}

// blank writes a same-length run of spaces, keeping line breaks and tabs.
func blank(out *strings.Builder, comment string) {
	for i := 0; i < len(comment); i++ {
		switch ch := comment[i]; ch {
		case '\n', '\r', '\t':
			out.WriteByte(ch)
		default:
			out.WriteByte(' ')
		}
	}
}

func stripTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	var s scanner
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if !s.step(ch) && ch == ',' {
			rest := strings.TrimLeft(content[i+1:], " \t\r\n")
			if rest != "" && (rest[0] == '}' || rest[0] == ']') {
				continue
			}
		}
		out.WriteByte(ch)
	}
	return out.String()
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	prefix := content[:min(int(offset), len(content))]
	if len(prefix) > 0 {
		prefix = prefix[:len(prefix)-1]
	}
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
