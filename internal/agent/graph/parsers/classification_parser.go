package parsers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	logx "github.com/Chative-triage/server/pkg/logger"
)

const maxKeywords = 20

type rawClassification struct {
	Category         any `json:"category"`
	Priority         any `json:"priority"`
	Intent           any `json:"intent"`
	Keywords         any `json:"keywords"`
	Confidence       any `json:"confidence"`
	NeedsHumanReview any `json:"needs_human_review"`
}

// ParseClassification turns classifier output into a validated
// TicketClassification. Any deviation from the schema is an error so the
// caller can substitute the fallback classification.
func ParseClassification(content string) (out *model.TicketClassification, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "classification_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("%w: parser panic", ErrMalformedOutput), http.StatusInternalServerError, errx.SystemErrorMessage)
			out = nil
		}
	}()

	var raw rawClassification
	if err := decodeObject(content, &raw); err != nil {
		return nil, err
	}

	category := model.Category(strings.ToLower(asString(raw.Category)))
	if !category.Valid() {
		return nil, malformed("unknown category %q", snippet(string(category)))
	}
	priority := model.Priority(strings.ToLower(asString(raw.Priority)))
	if !priority.Valid() {
		return nil, malformed("unknown priority %q", snippet(string(priority)))
	}

	confidence, err := asFloat(raw.Confidence, "confidence")
	if err != nil {
		return nil, err
	}
	if err := inUnitRange(confidence, "confidence"); err != nil {
		return nil, err
	}

	needsReview, err := asBool(raw.NeedsHumanReview, "needs_human_review")
	if err != nil {
		return nil, err
	}

	return &model.TicketClassification{
		Category:         category,
		Priority:         priority,
		Intent:           asString(raw.Intent),
		Keywords:         keywords(raw.Keywords),
		Confidence:       confidence,
		NeedsHumanReview: needsReview,
	}, nil
}

// keywords accepts a list or a comma separated string, keeping order and
// dropping blanks and duplicates.
func keywords(v any) []string {
	var items []string
	switch t := v.(type) {
	case []any:
		for _, it := range t {
			items = append(items, asString(it))
		}
	case string:
		items = strings.Split(t, ",")
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := strings.ToLower(it)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
