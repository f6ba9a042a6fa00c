package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Len(t, normalized, len(input)-3)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(normalized), &decoded))
	require.Equal(t, []any{"one", "two"}, decoded["items"])
}

func TestNormalizeJSONCKeepsLineStructure(t *testing.T) {
	input := "{\n/* a\nb */ \"x\": 1 // tail\n}"
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Equal(t, strings.Count(input, "\n"), strings.Count(normalized, "\n"))
	require.Equal(t, len(input), len(normalized))
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text, ]",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, `"contains // and /* comment-like */ text, ]"`)
	require.True(t, strings.HasSuffix(normalized, `"}`))
}

func TestNormalizeJSONCEscapedQuoteInString(t *testing.T) {
	input := `{"value":"a \" // still string"}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Equal(t, input, normalized)
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	tests := []struct {
		offset    int64
		line, col int
	}{
		{offset: 0, line: 1, col: 1},
		{offset: 1, line: 1, col: 1},
		{offset: 8, line: 2, col: 2},
		{offset: 999, line: 3, col: 5},
	}
	for _, tc := range tests {
		line, col := offsetToLineCol(content, tc.offset)
		require.Equal(t, tc.line, line, "offset %d", tc.offset)
		require.Equal(t, tc.col, col, "offset %d", tc.offset)
	}
}
