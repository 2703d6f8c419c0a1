package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierMessages(t *testing.T) {
	msgs, err := ClassifierMessages(context.Background(), SystemTemplate("supervisor", ""), "User: hi", "I can't log in")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `"needs_human_review"`)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Conversation so far:\nUser: hi")
	assert.Contains(t, msgs[1].Content, "I can't log in")

	msgs, err = ClassifierMessages(context.Background(), "classify", "", "hello")
	require.NoError(t, err)
	assert.NotContains(t, msgs[1].Content, "Conversation so far")
}

func TestRenderSystemUsesOverride(t *testing.T) {
	m, err := RenderSystem(context.Background(), SystemTemplate("billing", "Billing desk for {{.Subject}}"), map[string]any{"Subject": "refund"})
	require.NoError(t, err)
	assert.Equal(t, "Billing desk for refund", m.Content)
}

func TestRenderSystemDefaults(t *testing.T) {
	m, err := RenderSystem(context.Background(), SystemTemplate("technical", ""), map[string]any{
		"KnowledgeTool": "search_technical_kb", "ExtraTools": "", "Subject": "login", "Priority": "high",
	})
	require.NoError(t, err)
	assert.Contains(t, m.Content, "search_technical_kb")
	assert.Contains(t, m.Content, "Ticket: login (priority: high)")
	assert.NotContains(t, m.Content, "diagnostic tools")
}

func TestAssessmentMessages(t *testing.T) {
	msgs, err := AssessmentMessages(context.Background(), SystemTemplate("assessment", ""), AssessmentVars{
		UserMessage: "refund?", Draft: "Refunds take 5 days.", Priority: "medium", Category: "billing",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Draft reply:\nRefunds take 5 days.")
	assert.Contains(t, msgs[1].Content, "Ticket category: billing")
}

func TestAdminConfirmationDetails(t *testing.T) {
	out, err := AdminConfirmationDetails(context.Background(), "I need to delete my account", "Please confirm the email on file.")
	require.NoError(t, err)
	assert.Contains(t, out, "I need to delete my account")
	assert.Contains(t, out, "Please confirm the email on file.")
}

func TestUnclassifiableResponse(t *testing.T) {
	assert.NotEmpty(t, UnclassifiableResponse())
	assert.Contains(t, UnclassifiableResponse(), "outside")
}
