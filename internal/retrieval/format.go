package retrieval

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Chative-triage/server/internal/agent/model"
)

const articlesHeader = "\n\n--- Knowledge Base Articles ---\n\n"

// FormatArticles renders ranked documents as numbered articles. found is
// false for an empty result so callers can tell "nothing" from "blank".
func FormatArticles(docs []model.KnowledgeDocument) (string, bool) {
	if len(docs) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(articlesHeader)
	for i, d := range docs {
		meta := "{}"
		if len(d.Metadata) > 0 {
			if raw, err := json.Marshal(d.Metadata); err == nil {
				meta = string(raw)
			}
		}
		fmt.Fprintf(&b, "Article %d:\nContent: %s\nMetadata: %s\n\n", i+1, d.Content, meta)
	}
	return b.String(), true
}
