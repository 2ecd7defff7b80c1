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
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
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
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestParseJSONCSectionsKeepOrderAndStringifyScalars(t *testing.T) {
	doc, warnings, err := parseJSONC(`{
  // commands are matched in file order
  "ConsoleCommands": {
    "open map": "tm",
    "wait an hour": "wait 1",
  },
  "Favorites": {"enabled": false, "defaultHand": "right"},
  "Dialogue": {"goodbyePhrases": ["goodbye", "farewell"]},
  "SpeechRecognition": {"dialogueMinConfidence": 0.45},
  "stray": 1,
}`)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, `"stray"`)

	require.Equal(t, []string{"ConsoleCommands", "Favorites", "Dialogue", "SpeechRecognition"}, doc.Names())

	commands := doc.Entries("consolecommands")
	require.Len(t, commands, 2)
	require.Equal(t, "open map", commands[0].Key)
	require.Equal(t, "tm", commands[0].Value)
	require.Equal(t, "wait an hour", commands[1].Key)

	require.Equal(t, "0", doc.Get("Favorites", "enabled", "1"))
	require.Equal(t, "goodbye;farewell", doc.Get("Dialogue", "goodbyePhrases", ""))
	require.Equal(t, "0.45", doc.Get("SpeechRecognition", "dialogueMinConfidence", ""))
}

func TestParseJSONCRejectsNestedObjects(t *testing.T) {
	_, _, err := parseJSONC(`{
  "Riva": {"grpc": {"host": "x"}}
}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Riva.grpc")
	require.Contains(t, err.Error(), "line 2")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"Riva":{"grpc":"a"}}{"Riva":{"grpc":"b"}}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestParseJSONCSyntaxErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "Riva": {"grpc" "x"}
}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}
