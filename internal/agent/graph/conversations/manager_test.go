package conversations

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/Chative-triage/server/internal/core/error"
)

func adminCall(id, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{ID: id, Function: schema.FunctionCall{Name: "call_external_admin_a2a_agent", Arguments: args}}})
}

func TestBuildClassifierContext(t *testing.T) {
	mm := NewMessagesManager(10)
	msgs := []*schema.Message{
		schema.UserMessage("My invoice is wrong"),
		schema.AssistantMessage("Let me check that.", nil),
		schema.SystemMessage("ignored"),
		schema.UserMessage("Also I can't log in"),
	}

	ctx, err := mm.BuildClassifierContext(msgs)
	require.NoError(t, err)
	assert.Equal(t, "Also I can't log in", ctx.Latest)
	assert.Equal(t, "User: My invoice is wrong\nAssistant: Let me check that.", ctx.History)
}

func TestBuildClassifierContextWithoutUser(t *testing.T) {
	mm := NewMessagesManager(0)
	_, err := mm.BuildClassifierContext([]*schema.Message{schema.AssistantMessage("hi", nil), schema.UserMessage("   ")})
	assert.ErrorIs(t, err, errx.ErrNoUserMessage)

	_, err = mm.BuildClassifierContext(nil)
	assert.ErrorIs(t, err, errx.ErrNoUserMessage)
}

func TestFormatHistoryTruncatesAndLimits(t *testing.T) {
	var msgs []*schema.Message
	for i := 0; i < 15; i++ {
		msgs = append(msgs, schema.UserMessage(strings.Repeat("x", 10)+string(rune('a'+i))))
	}
	msgs = append(msgs, schema.AssistantMessage(strings.Repeat("y", 400), nil))

	out := FormatHistory(msgs, 10)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "User: xxxxxxxxxxg", lines[0])
	last := lines[9]
	assert.True(t, strings.HasPrefix(last, "Assistant: "))
	assert.Len(t, strings.TrimPrefix(last, "Assistant: "), 300)
	assert.True(t, strings.HasSuffix(last, "..."))
}

func TestFormatHistoryTruncatesByCharacter(t *testing.T) {
	out := FormatHistory([]*schema.Message{schema.UserMessage(strings.Repeat("é", 400))}, 10)
	body := strings.TrimPrefix(out, "User: ")

	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 300, utf8.RuneCountInString(body))
	assert.Equal(t, strings.Repeat("é", 297)+"...", body)
}

func TestTextOfMultiContent(t *testing.T) {
	m := &schema.Message{Role: schema.User, MultiContent: []schema.ChatMessagePart{
		{Type: schema.ChatMessagePartTypeText, Text: "part one"},
		{Type: schema.ChatMessagePartTypeImageURL},
		{Type: schema.ChatMessagePartTypeText, Text: "part two"},
	}}
	assert.Equal(t, "part one\npart two", TextOf(m))
	assert.Equal(t, "", TextOf(nil))
}

func TestPendingToolCallsAndDraft(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("q"),
		schema.AssistantMessage("first draft", nil),
		adminCall("c1", `{"query":"q"}`),
	}
	assert.Len(t, PendingToolCalls(msgs), 1)
	assert.Equal(t, "first draft", LatestDraft(msgs))

	msgs = append(msgs, schema.ToolMessage("result", "c1"))
	assert.Empty(t, PendingToolCalls(msgs))
}

func TestFindToolResponseAndQuery(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("I need to delete my account"),
		adminCall("c1", `{"query":"delete account for me"}`),
		schema.ToolMessage("Please confirm your email address.", "c1"),
	}

	resp, query, ok := FindToolResponseAndQuery(msgs, "call_external_admin_a2a_agent")
	require.True(t, ok)
	assert.Equal(t, "Please confirm your email address.", resp)
	assert.Equal(t, "delete account for me", query)
}

func TestFindToolResponseAndQueryFallsBackToUserTurn(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("Reset my admin role"),
		adminCall("c9", `not json`),
		schema.ToolMessage("Done.", "c9"),
	}

	resp, query, ok := FindToolResponseAndQuery(msgs, "")
	require.True(t, ok)
	assert.Equal(t, "Done.", resp)
	assert.Equal(t, "Reset my admin role", query)

	_, _, ok = FindToolResponseAndQuery(msgs, "other_tool")
	assert.False(t, ok)
}
