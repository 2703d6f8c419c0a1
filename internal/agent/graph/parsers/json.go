package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	logx "github.com/Chative-triage/server/pkg/logger"
)

// ErrMalformedOutput marks model output that could not be turned into the
// expected structure.
var ErrMalformedOutput = errors.New("malformed model output")

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxErrSnippet = 200
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedOutput, fmt.Sprintf(format, args...))
}

func snippet(s string) string {
	if r := []rune(s); len(r) > maxErrSnippet {
		return string(r[:maxErrSnippet]) + "..."
	}
	return s
}

// extractObject strips markdown fences and surrounding prose, returning the
// outermost {...} span.
func extractObject(content string) (string, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return "", malformed("empty content")
	}
	if len(s) > maxContentLen {
		return "", malformed("content too large (%d bytes)", len(s))
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return "", malformed("no JSON object in %q", snippet(s))
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		// truncated output; let the repair step close it
		return s[start:], nil
	}
	return s[start : end+1], nil
}

// decodeObject unmarshals the JSON object found in content into dst,
// repairing it first when the model produced invalid JSON.
func decodeObject(content string, dst any) error {
	candidate, err := extractObject(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(candidate), dst); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return malformed("repair failed: %v", err)
	}
	if err := json.Unmarshal([]byte(repaired), dst); err != nil {
		return malformed("decode after repair: %v", err)
	}
	logx.Debug().Int("original_bytes", len(candidate)).Int("repaired_bytes", len(repaired)).Msg("repaired model JSON output")
	return nil
}

// asFloat accepts JSON numbers and numeric strings.
func asFloat(v any, name string) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, malformed("%s is not a number: %q", name, snippet(t))
		}
		return f, nil
	case nil:
		return 0, malformed("%s is missing", name)
	default:
		return 0, malformed("%s has unexpected type %T", name, v)
	}
}

// asBool accepts JSON booleans and "true"/"false" strings; missing is false.
func asBool(v any, name string) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, malformed("%s is not a boolean: %q", name, snippet(t))
		}
		return b, nil
	case nil:
		return false, nil
	default:
		return false, malformed("%s has unexpected type %T", name, v)
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func inUnitRange(f float64, name string) error {
	if f != f || f < 0 || f > 1 {
		return malformed("%s %v out of range [0,1]", name, f)
	}
	return nil
}
