package model

import "context"

// KnowledgeDocument is one knowledge-base article.
type KnowledgeDocument struct {
	ID       string            `json:"id"`
	Category string            `json:"category"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"-"`
}

// KnowledgeSearcher is the retrieval service used by the responders' tools.
// found is false when nothing matched, which is distinct from an error.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query, category string) (text string, found bool, err error)
}

// AdminAgentInput is the argument payload of the external admin agent tool.
type AdminAgentInput struct {
	Query string `json:"query"`
}

// KnowledgeSearchInput is the argument payload of the knowledge-base tools.
type KnowledgeSearchInput struct {
	Query string `json:"query"`
}
