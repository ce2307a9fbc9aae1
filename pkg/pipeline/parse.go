package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// stripFences removes a wrapping markdown code fence, tolerating a language
// tag after the opening backticks. Fences inside the content are preserved;
// only a closing fence on its own final line is dropped.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```"))
	}
	if i := strings.LastIndex(t, "```"); i >= 0 && strings.TrimSpace(t[i+3:]) == "" {
		t = t[:i]
	}
	return t
}

// decodeResponse parses a JSON completion into v. Fenced output, prose
// around the object, and a single object wrapped in a top-level array are
// all tolerated; models produce each of these shapes.
func decodeResponse(raw string, v any) error {
	t := strings.TrimSpace(stripFences(raw))
	if t == "" {
		return errors.New("empty completion")
	}
	firstErr := unmarshalLenient(t, v)
	if firstErr == nil {
		return nil
	}
	if i, j := strings.Index(t, "{"), strings.LastIndex(t, "}"); i >= 0 && j > i {
		if err := unmarshalLenient(t[i:j+1], v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("completion is not valid JSON: %w", firstErr)
}

// unmarshalLenient decodes s into v, unwrapping a top-level array to its
// first element.
func unmarshalLenient(s string, v any) error {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.New("empty JSON array")
		}
		return json.Unmarshal(items[0], v)
	}
	return json.Unmarshal([]byte(s), v)
}
