// Package common holds small helpers shared by the LLM-facing packages.
package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON extracts the first complete JSON object from an LLM reply
// and unmarshals it into T. Replies wrapped in markdown fences or
// padded with prose on either side still parse; a reply without a
// complete object is an error, never a zero verdict.
func ParseJSON[T any](response string) (T, error) {
	var out T
	obj, err := firstObject(stripFences(response))
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal %q: %w", obj, err)
	}
	return out, nil
}

// stripFences unwraps a ```json ... ``` block if the reply is fenced.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} in s. Braces inside
// JSON strings do not count, so a reason like "see {spec}" cannot
// truncate the object, and a stray } in trailing prose cannot extend
// it.
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	inString := false
	escaped := false
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
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response")
}
