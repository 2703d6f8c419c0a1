package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/model"
	logx "github.com/Chative-triage/server/pkg/logger"
)

type RegistryConfig struct {
	Searcher     model.KnowledgeSearcher
	AdminAgent   AdminAgent
	MCPCache     *MCPToolCache
	MCPServerURI string
}

// Registry resolves the tool set bound to each responder.
type Registry struct {
	technicalKB tool.BaseTool
	billingKB   tool.BaseTool
	admin       tool.BaseTool
	mcp         *MCPToolCache
	mcpURI      string
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		technicalKB: NewTechnicalKnowledgeTool(cfg.Searcher),
		billingKB:   NewBillingKnowledgeTool(cfg.Searcher),
		admin:       NewAdminAgentTool(cfg.AdminAgent),
		mcp:         cfg.MCPCache,
		mcpURI:      cfg.MCPServerURI,
	}
}

// ForAgent returns the tools of agent. MCP discovery failures only drop the
// MCP tools; the knowledge-base tool stays available.
func (r *Registry) ForAgent(ctx context.Context, agent string) ([]tool.BaseTool, error) {
	switch agent {
	case model.AgentTechnical:
		out := []tool.BaseTool{r.technicalKB}
		if r.mcp == nil || r.mcpURI == "" {
			return out, nil
		}
		extra, err := r.mcp.Tools(ctx, r.mcpURI)
		if err != nil {
			logx.Warn().Err(err).Str("agent", agent).Msg("mcp tools unavailable, continuing without them")
			return out, nil
		}
		for _, t := range extra {
			info, err := t.Info(ctx)
			if err != nil || info.Name == SearchTechnicalKBToolName {
				continue
			}
			out = append(out, t)
		}
		return out, nil
	case model.AgentBilling:
		return []tool.BaseTool{r.billingKB}, nil
	case model.AgentAdministration:
		return []tool.BaseTool{r.admin}, nil
	default:
		return nil, fmt.Errorf("no tools registered for agent %q", agent)
	}
}

// Infos collects the schemas of ts for model binding.
func Infos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	out := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Names lists the tool names of ts, skipping tools whose info fails.
func Names(ctx context.Context, ts []tool.BaseTool) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if info, err := t.Info(ctx); err == nil {
			out = append(out, info.Name)
		}
	}
	return out
}
