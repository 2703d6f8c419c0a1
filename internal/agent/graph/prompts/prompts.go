package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

var (
	//go:embed template/supervisor_system.txt
	supervisorSystem string
	//go:embed template/classifier_user.txt
	classifierUser string
	//go:embed template/technical_system.txt
	technicalSystem string
	//go:embed template/billing_system.txt
	billingSystem string
	//go:embed template/administration_system.txt
	administrationSystem string
	//go:embed template/assessment_system.txt
	assessmentSystem string
	//go:embed template/assessment_human.txt
	assessmentHuman string
	//go:embed template/unclassifiable_response.txt
	unclassifiableResponse string
	//go:embed template/admin_confirmation.txt
	adminConfirmation string
)

// Defaults exposes the built-in system prompts by agent name.
var Defaults = map[string]string{
	"supervisor":     supervisorSystem,
	"technical":      technicalSystem,
	"billing":        billingSystem,
	"administration": administrationSystem,
	"assessment":     assessmentSystem,
}

// SystemTemplate returns the configured prompt, or the built-in one for agent.
func SystemTemplate(agent, configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return Defaults[agent]
}

// render formats the given templates via the Eino prompt component so prompt
// callbacks fire for every rendered prompt.
func render(ctx context.Context, vars map[string]any, templates ...schema.MessagesTemplate) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, templates...)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, err
	}
	if len(msgs) != len(templates) {
		return nil, fmt.Errorf("expected %d rendered messages, got %d", len(templates), len(msgs))
	}
	return msgs, nil
}

// RenderSystem renders an agent system prompt with the given variables.
func RenderSystem(ctx context.Context, tmpl string, vars map[string]any) (*schema.Message, error) {
	msgs, err := render(ctx, vars, schema.SystemMessage(tmpl))
	if err != nil {
		return nil, fmt.Errorf("system prompt render: %w", err)
	}
	return msgs[0], nil
}

// ClassifierMessages builds the system + user turns for the classifier.
func ClassifierMessages(ctx context.Context, systemTmpl, history, latest string) ([]*schema.Message, error) {
	msgs, err := render(ctx, map[string]any{
		"History": history,
		"Latest":  latest,
	}, schema.SystemMessage(systemTmpl), schema.UserMessage(classifierUser))
	if err != nil {
		return nil, fmt.Errorf("classifier prompt render: %w", err)
	}
	return msgs, nil
}

// AssessmentVars are the inputs of the assessment prompt.
type AssessmentVars struct {
	UserMessage string
	Draft       string
	Priority    string
	Category    string
}

// AssessmentMessages builds the system + user turns for the assessor.
func AssessmentMessages(ctx context.Context, systemTmpl string, v AssessmentVars) ([]*schema.Message, error) {
	msgs, err := render(ctx, map[string]any{
		"UserMessage": v.UserMessage,
		"Draft":       v.Draft,
		"Priority":    v.Priority,
		"Category":    v.Category,
	}, schema.SystemMessage(systemTmpl), schema.UserMessage(assessmentHuman))
	if err != nil {
		return nil, fmt.Errorf("assessment prompt render: %w", err)
	}
	return msgs, nil
}

// UnclassifiableResponse is the fixed out-of-scope reply.
func UnclassifiableResponse() string {
	return strings.TrimSpace(unclassifiableResponse)
}

// AdminConfirmationDetails renders the pending administrative action for reviewers.
func AdminConfirmationDetails(ctx context.Context, originalQuery, toolResponse string) (string, error) {
	msgs, err := render(ctx, map[string]any{
		"OriginalQuery": originalQuery,
		"ToolResponse":  toolResponse,
	}, schema.SystemMessage(adminConfirmation))
	if err != nil {
		return "", fmt.Errorf("admin confirmation render: %w", err)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
