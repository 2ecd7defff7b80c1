package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parseJSONC reads a JSONC document whose top-level keys are sections and
// whose section members are scalars or lists of scalars.
func parseJSONC(content string) (Sections, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Sections{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.UseNumber()

	if err := expectDelim(decoder, '{'); err != nil {
		return Sections{}, nil, wrapJSONDecodeError(normalized, err)
	}

	doc := newSections()
	var warnings []Warning
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return Sections{}, nil, wrapJSONDecodeError(normalized, err)
		}
		name, _ := tok.(string)
		offset := decoder.InputOffset()

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return Sections{}, nil, wrapJSONDecodeError(normalized, err)
		}
		line, _ := offsetToLineCol(normalized, offset)

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			warnings = append(warnings, Warning{Line: line, Message: fmt.Sprintf("top-level key %q is not a section object; ignored", name)})
			continue
		}
		doc.ensure(name)
		if err := decodeJSONSection(&doc, name, raw, normalized, offset); err != nil {
			return Sections{}, nil, err
		}
	}
	if err := expectDelim(decoder, '}'); err != nil {
		return Sections{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Sections{}, nil, wrapJSONDecodeError(normalized, err)
	}

	return doc, warnings, nil
}

func decodeJSONSection(doc *Sections, name string, raw json.RawMessage, content string, base int64) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := expectDelim(decoder, '{'); err != nil {
		return err
	}
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		line, _ := offsetToLineCol(content, base+decoder.InputOffset())

		var value any
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("line %d: %s.%s: %w", line, name, key, err)
		}
		text, err := jsonScalarString(value)
		if err != nil {
			return fmt.Errorf("line %d: %s.%s: %w", line, name, key, err)
		}
		doc.set(name, KeyValue{Key: key, Value: text, Line: line})
	}
	return nil
}

// jsonScalarString renders a section value the way the INI format would
// spell it: lists become `;`-separated, booleans 1/0.
func jsonScalarString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := jsonScalarString(item)
			if err != nil {
				return "", err
			}
			if _, nested := item.([]any); nested {
				return "", errors.New("nested lists are not allowed")
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ";"), nil
	default:
		return "", fmt.Errorf("expected string, number, boolean or list, got %T", value)
	}
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", string(want), tok)
	}
	return nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
