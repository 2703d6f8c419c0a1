package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractTextFromBody decodes a response body and reduces it to text. Bodies
// that are not JSON objects are returned verbatim.
func ExtractTextFromBody(raw []byte) string {
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil || env == nil {
		return strings.TrimSpace(string(raw))
	}
	return ExtractText(env)
}

// ExtractText reduces a JSON-RPC envelope to a single text string. It never
// fails: when no text is found the whole envelope is returned as JSON.
//
// Lookup order: result message parts, task artifact parts, task status
// message parts, task status state, error object, stringified envelope.
func ExtractText(env map[string]any) string {
	if result, ok := env["result"].(map[string]any); ok {
		if t := textFromParts(result["parts"]); t != "" {
			return t
		}
		if arts, ok := result["artifacts"].([]any); ok {
			var texts []string
			for _, a := range arts {
				if am, ok := a.(map[string]any); ok {
					if t := textFromParts(am["parts"]); t != "" {
						texts = append(texts, t)
					}
				}
			}
			if len(texts) > 0 {
				return strings.Join(texts, "\n")
			}
		}
		if status, ok := result["status"].(map[string]any); ok {
			if msg, ok := status["message"].(map[string]any); ok {
				if t := textFromParts(msg["parts"]); t != "" {
					return t
				}
			}
			if state, ok := status["state"]; ok {
				return fmt.Sprintf("A2A task %v state: %v", valueOr(result["id"], "unknown"), state)
			}
		}
	}

	if e, ok := env["error"].(map[string]any); ok {
		return fmt.Sprintf("A2A error %v: %v", formatCode(e["code"]), valueOr(e["message"], "unknown error"))
	}

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Sprintf("%v", env)
	}
	return string(b)
}

func textFromParts(v any) string {
	parts, ok := v.([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, p := range parts {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := pm["kind"].(string)
		if kind == "" {
			kind, _ = pm["type"].(string)
		}
		if kind != "" && kind != "text" {
			continue
		}
		if t, ok := pm["text"].(string); ok && strings.TrimSpace(t) != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

func valueOr(v any, fallback string) any {
	if v == nil {
		return fallback
	}
	return v
}

func formatCode(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return valueOr(v, "unknown")
}
