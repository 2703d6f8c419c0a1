package model

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsCopyOnWrite(t *testing.T) {
	s := NewConversationState("run-1", "conv-1")
	s.AppendMessages(schema.UserMessage("hello"))
	s.ToolCallCounts[AgentBilling] = 1
	s.CurrentTicket = &Ticket{TicketID: "T-1", Keywords: []string{"a"}}

	c := s.Clone()
	c.AppendMessages(schema.AssistantMessage("hi", nil))
	c.ToolCallCounts[AgentBilling] = 2
	c.CurrentTicket.Keywords[0] = "b"
	c.AppendRouting("x")

	assert.Len(t, s.Messages, 1)
	assert.Equal(t, 1, s.ToolCallCounts[AgentBilling])
	assert.Equal(t, "a", s.CurrentTicket.Keywords[0])
	assert.Empty(t, s.RoutingHistory)
}

func TestRecordAgentContextFoldsMinimum(t *testing.T) {
	s := NewConversationState("run-1", "conv-1")
	assert.Equal(t, 1.0, s.OverallConfidence)

	s.RecordAgentContext(AgentContext{AgentName: "a", ConfidenceScore: 0.8})
	s.RecordAgentContext(AgentContext{AgentName: "b", ConfidenceScore: 0.9})
	assert.InDelta(t, 0.8, s.OverallConfidence, 1e-9)

	s.RecordAgentContext(AgentContext{AgentName: "c", ConfidenceScore: 0.4})
	assert.InDelta(t, 0.4, s.OverallConfidence, 1e-9)
	assert.Len(t, s.AgentContexts, 3)
}

func TestApplyClassificationPreservesTicketID(t *testing.T) {
	s := NewConversationState("run-1", "conv-1")
	s.CurrentTicket = &Ticket{TicketID: "T-42", Subject: "old"}

	s.ApplyClassification(TicketClassification{
		Category: CategoryBilling, Priority: PriorityHigh, Intent: "  refund request ", Keywords: []string{"refund"},
	}, "I want a refund")

	require.NotNil(t, s.CurrentTicket)
	assert.Equal(t, "T-42", s.CurrentTicket.TicketID)
	assert.Equal(t, CategoryBilling, s.CurrentTicket.Category)
	assert.Equal(t, "refund request", s.CurrentTicket.Subject)
	assert.Equal(t, "I want a refund", s.CurrentTicket.InitialDescription)
}

func TestFallbackClassification(t *testing.T) {
	c := FallbackClassification()
	assert.Equal(t, CategoryUnclassifiable, c.Category)
	assert.Zero(t, c.Confidence)
	assert.False(t, c.NeedsHumanReview)
	assert.Equal(t, "Unknown intent", TicketClassification{Intent: "  "}.Subject())
}

func TestBeginRunResetsPerRunFields(t *testing.T) {
	s := NewConversationState("run-1", "conv-1")
	s.AppendMessages(schema.UserMessage("first"))
	s.RecordAgentContext(AgentContext{ConfidenceScore: 0.2, RequiresHumanReview: true})
	fb := "yes"
	s.HumanFeedback = &fb
	s.AdminConfirmationProcessed = true
	s.ToolCallCounts[AgentAdministration] = 1
	s.Fail(assert.AnError)

	s.BeginRun("run-2")

	assert.Equal(t, "run-2", s.RunID)
	assert.Len(t, s.Messages, 1)
	assert.Empty(t, s.AgentContexts)
	assert.Equal(t, 1.0, s.OverallConfidence)
	assert.Nil(t, s.HumanFeedback)
	assert.False(t, s.AdminConfirmationProcessed)
	assert.Zero(t, s.ToolCallCounts[AgentAdministration])
	assert.False(t, s.Complete)
	assert.Empty(t, s.ErrorMessage)
}

func TestToolLimitReached(t *testing.T) {
	s := NewConversationState("run-1", "conv-1")
	s.ToolCallLimits = map[string]int{AgentAdministration: 1, AgentTechnical: 0}

	assert.False(t, s.ToolLimitReached(AgentAdministration))
	s.ToolCallCounts[AgentAdministration] = 1
	assert.True(t, s.ToolLimitReached(AgentAdministration))

	s.ToolCallCounts[AgentTechnical] = 50
	assert.False(t, s.ToolLimitReached(AgentTechnical), "zero limit is unlimited")
}

func TestStateJSONRoundTripKeepsToolCalls(t *testing.T) {
	s := NewConversationState("run-1", "conv-1")
	s.AppendMessages(
		schema.UserMessage("delete my account"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "call_external_admin_a2a_agent", Arguments: `{"query":"delete my account"}`}}}),
		schema.ToolMessage("Please confirm", "call_1"),
	)

	b, err := json.Marshal(s)
	require.NoError(t, err)

	var back ConversationState
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back.Messages, 3)
	assert.Equal(t, "call_1", back.Messages[1].ToolCalls[0].ID)
	assert.Equal(t, "call_1", back.Messages[2].ToolCallID)
}

func TestInputMessageNormalize(t *testing.T) {
	m, err := TextInput("I can't log in").Normalize()
	require.NoError(t, err)
	assert.Equal(t, schema.User, m.Role)
	assert.Equal(t, "I can't log in", m.Content)

	parts := InputMessage{Role: "human", Content: json.RawMessage(`[{"type":"text","text":"line one"},{"type":"image","text":"x"},{"kind":"text","text":"line two"}]`)}
	m, err = parts.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", m.Content)

	_, err = InputMessage{Role: "tool", Content: json.RawMessage(`"x"`)}.Normalize()
	assert.Error(t, err)

	_, err = InputMessage{Role: "user", Content: json.RawMessage(`{"x":1}`)}.Normalize()
	assert.Error(t, err)
}

func TestAgentSetValidate(t *testing.T) {
	set := AgentsConfig{
		Supervisor:     SupervisorModelConfig{Model: "m"},
		Technical:      TechnicalModelConfig{Model: "m"},
		Billing:        BillingModelConfig{Model: "m"},
		Administration: AdministrationModelConfig{Model: "m"},
		Assessment:     AssessmentModelConfig{Model: "m"},
	}.Settings()

	require.NoError(t, set.Validate())
	assert.Equal(t, DefaultToolCallLimit, set.Administration.ToolCallLimit)
	assert.Equal(t, 0, set.ToolCallLimits()[AgentTechnical])

	set.Billing.Temperature = 3
	assert.Error(t, set.Validate())
}

func TestCostOf(t *testing.T) {
	msg := &schema.Message{ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}}}

	c, ok := CostOf("models/gemini-2.5-flash-001", msg)
	require.True(t, ok)
	assert.InDelta(t, 2.80, c.Total, 1e-9)

	_, ok = CostOf("gemini-2.5-flash", schema.AssistantMessage("x", nil))
	assert.False(t, ok)

	assert.Equal(t, Pricing{}, ResolvePricing("unknown"))
}

func TestA2ABaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9999", A2AConfig{Host: "127.0.0.1", Port: 9999}.BaseURL())
}
