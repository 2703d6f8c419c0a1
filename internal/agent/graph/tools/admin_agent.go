package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/model"
)

// AdminAgentToolName is the single tool exposed to the administration responder.
const AdminAgentToolName = "call_external_admin_a2a_agent"

// AdminAgent forwards a query to the external administrative agent.
// *a2a.Client satisfies it.
type AdminAgent interface {
	SendMessage(ctx context.Context, query string) (string, error)
}

// AdminAgentTool wraps the external administrative agent as an Eino tool.
type AdminAgentTool struct {
	agent AdminAgent
}

var _ tool.InvokableTool = (*AdminAgentTool)(nil)

func NewAdminAgentTool(agent AdminAgent) *AdminAgentTool {
	return &AdminAgentTool{agent: agent}
}

func (t *AdminAgentTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: AdminAgentToolName,
		Desc: "Forward an administrative request (user management, permissions, account settings) to the external administration agent and return its answer.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The administrative request, phrased as the customer asked it.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun errors propagate; the administration path treats them as fatal.
func (t *AdminAgentTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in model.AdminAgentInput
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return "", err
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", errors.New("call_external_admin_a2a_agent: query is required")
	}
	if t.agent == nil {
		return "", errors.New("call_external_admin_a2a_agent: no admin agent configured")
	}
	return t.agent.SendMessage(ctx, query)
}
