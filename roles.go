package infty

import (
	"encoding/json"
	"errors"
	"strings"
)

// stripJSONCodeFence removes a leading ```json (or bare ```) fence and its
// closing fence. Returns false when the text is not fenced.
func stripJSONCodeFence(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		rest, ok := strings.CutPrefix(trimmed, prefix)
		if !ok {
			continue
		}
		inner, ok := strings.CutSuffix(rest, "```")
		if !ok {
			return "", false
		}
		return strings.TrimSpace(inner), true
	}
	return "", false
}

// parseJSONStruct strictly parses an assistant reply into out. When the raw
// text is not valid JSON, a code-fenced variant is tried before giving up
// with the original error.
func parseJSONStruct(message string, out any) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return errors.New("message was empty")
	}

	err := json.Unmarshal([]byte(trimmed), out)
	if err == nil {
		return nil
	}
	if inner, ok := stripJSONCodeFence(trimmed); ok {
		if fenceErr := json.Unmarshal([]byte(inner), out); fenceErr == nil {
			return nil
		}
	}
	return err
}
