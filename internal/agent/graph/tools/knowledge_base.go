package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/model"
	logx "github.com/Chative-triage/server/pkg/logger"
)

// ===================================
// Knowledge Base Search Tools
// ===================================

const (
	SearchTechnicalKBToolName = "search_technical_kb"
	SearchBillingKBToolName   = "search_billing_kb"

	// NoArticlesFound is returned when retrieval had no match.
	NoArticlesFound = "No specific knowledge base articles found."
	// SearchUnavailable is returned when the retrieval service failed.
	SearchUnavailable = "Knowledge base search is temporarily unavailable."
)

type knowledgeBaseTool struct {
	name     string
	desc     string
	category string
	searcher model.KnowledgeSearcher
}

var _ tool.InvokableTool = (*knowledgeBaseTool)(nil)

// NewTechnicalKnowledgeTool searches technical documentation.
func NewTechnicalKnowledgeTool(searcher model.KnowledgeSearcher) tool.InvokableTool {
	return &knowledgeBaseTool{
		name:     SearchTechnicalKBToolName,
		desc:     "Search the technical knowledge base for troubleshooting guides, API documentation, error codes and configuration help. Use it before answering any technical question.",
		category: "technical",
		searcher: searcher,
	}
}

// NewBillingKnowledgeTool searches billing policies and procedures.
func NewBillingKnowledgeTool(searcher model.KnowledgeSearcher) tool.InvokableTool {
	return &knowledgeBaseTool{
		name:     SearchBillingKBToolName,
		desc:     "Search the billing knowledge base for pricing, invoices, refunds, payment methods and subscription policies. Use it before answering any billing question.",
		category: "billing",
		searcher: searcher,
	}
}

func (t *knowledgeBaseTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.name,
		Desc: t.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Search keywords describing the customer's problem.",
				Required: true,
			},
		}),
	}, nil
}

func (t *knowledgeBaseTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in model.KnowledgeSearchInput
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return "", err
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", fmt.Errorf("%s: query is required", t.name)
	}
	if t.searcher == nil {
		return NoArticlesFound, nil
	}

	text, found, err := t.searcher.Search(ctx, query, t.category)
	if err != nil {
		logx.Warn().Err(err).Str("tool", t.name).Str("query", query).Msg("knowledge base search failed")
		return SearchUnavailable, nil
	}
	if !found {
		return NoArticlesFound, nil
	}
	return text, nil
}
