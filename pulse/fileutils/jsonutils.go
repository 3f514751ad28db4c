package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeModelJSON unmarshals a model's JSON answer into v. Code fences are stripped; when the
// answer is not pure JSON the first balanced object inside it is decoded instead.
func DecodeModelJSON(outputText string, v any) error {
	s := stripFence(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if json.Valid([]byte(s)) {
		return json.Unmarshal([]byte(s), v)
	}
	obj, ok := firstObject(s)
	if !ok {
		return fmt.Errorf("no JSON object in model output (len=%d)", len(s))
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode JSON object from model output (len=%d): %w", len(obj), err)
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		// Drop the info string ("json") up to the first newline.
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[i+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		s = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first brace-balanced {...} span of s, ignoring braces inside strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
