package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSON = errors.New("no JSON value found in response")

// Decode turns model text into a generic JSON value. It tries a strict decode
// first, then a lenient one that looks inside markdown fences and at every
// '{' or '[' in the surrounding prose, decoding one value at each and
// repairing trailing commas, single quotes, Python literals and raw control
// characters inside strings. Arrays of plain scalars only win when no object
// or nested array decodes, so bracketed prose like "[STRIDE]" is skipped.
// Anything still unparseable is an error; nothing is guessed.
func Decode(raw string) (any, error) {
	var v any

	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}

	var lastErr error
	for _, content := range candidates(trimmed) {
		v, err := decodeFirstValue(content)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil || errors.Is(lastErr, errNoJSON) {
		return nil, errNoJSON
	}
	return nil, fmt.Errorf("lenient decode failed: %w", lastErr)
}

// candidates lists the text to search: the body of the first fenced block,
// then the whole reply.
func candidates(content string) []string {
	i := strings.Index(content, "```")
	if i < 0 {
		return []string{content}
	}
	rest := content[i+3:]
	// Drop the info string ("json", "JSON", ...) on the fence line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if j := strings.Index(rest, "```"); j >= 0 {
		rest = rest[:j]
	}
	return []string{rest, content}
}

// decodeFirstValue tries each '{' or '[' in content as the start of the
// payload and returns the first value that decodes there.
func decodeFirstValue(content string) (any, error) {
	var (
		fallback    any
		hasFallback bool
		lastErr     = errNoJSON
	)

	for start := 0; start < len(content); start++ {
		if ch := content[start]; ch != '{' && ch != '[' {
			continue
		}

		v, err := decodeAt(content, start)
		if err != nil {
			lastErr = err
			continue
		}
		if isStructured(v) {
			return v, nil
		}
		if !hasFallback {
			fallback, hasFallback = v, true
		}
	}

	if hasFallback {
		return fallback, nil
	}
	return nil, lastErr
}

// decodeAt decodes the single value starting at content[start]. Text after
// the value is ignored.
func decodeAt(content string, start int) (any, error) {
	var v any
	if err := json.NewDecoder(strings.NewReader(content[start:])).Decode(&v); err == nil {
		return v, nil
	}

	span, ok := balancedSpan(content, start)
	if !ok {
		return nil, fmt.Errorf("unbalanced JSON starting at offset %d", start)
	}
	if err := json.Unmarshal([]byte(repairJSON(span)), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// balancedSpan returns content from start through the bracket that closes the
// one at start, skipping brackets inside single or double quoted strings.
func balancedSpan(content string, start int) (string, bool) {
	depth := 0
	var quote byte
	escaped := false

	for i := start; i < len(content); i++ {
		ch := content[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

// isStructured reports whether v looks like an agent payload rather than a
// bracketed aside: an object, or an array holding objects or arrays.
func isStructured(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return true
	case []any:
		for _, e := range t {
			switch e.(type) {
			case map[string]any, []any:
				return true
			}
		}
	}
	return false
}

// repairJSON fixes the deviations models commonly produce
func repairJSON(content string) string {
	var sb strings.Builder
	sb.Grow(len(content) + len(content)/10)

	var quote byte // 0 outside a string, else the opening quote
	escaped := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if quote != 0 {
			if escaped {
				escaped = false
				// \' is not a JSON escape
				if ch == '\'' {
					trimLastByte(&sb)
				}
				sb.WriteByte(ch)
				continue
			}
			switch {
			case ch == '\\':
				escaped = true
				sb.WriteByte(ch)
			case ch == quote:
				quote = 0
				sb.WriteByte('"')
			case ch == '"':
				sb.WriteString(`\"`)
			default:
				writeStringByte(&sb, ch)
			}
			continue
		}

		switch {
		case ch == '"' || ch == '\'':
			quote = ch
			sb.WriteByte('"')
		case ch == ',':
			if next := nextNonSpace(content, i+1); next == '}' || next == ']' {
				continue
			}
			sb.WriteByte(ch)
		case isIdentStart(ch):
			j := i
			for j < len(content) && isIdentStart(content[j]) {
				j++
			}
			sb.WriteString(pythonLiteral(content[i:j]))
			i = j - 1
		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String()
}

func writeStringByte(sb *strings.Builder, ch byte) {
	switch ch {
	case '\n':
		sb.WriteString(`\n`)
	case '\r':
		sb.WriteString(`\r`)
	case '\t':
		sb.WriteString(`\t`)
	case '\b':
		sb.WriteString(`\b`)
	case '\f':
		sb.WriteString(`\f`)
	default:
		if ch < 0x20 {
			fmt.Fprintf(sb, `\u%04x`, ch)
		} else {
			sb.WriteByte(ch)
		}
	}
}

func trimLastByte(sb *strings.Builder) {
	s := sb.String()
	sb.Reset()
	sb.WriteString(s[:len(s)-1])
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func pythonLiteral(word string) string {
	switch word {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None":
		return "null"
	default:
		return word
	}
}
