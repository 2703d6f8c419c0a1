// Package graphtest provides scripted collaborators for exercising the triage
// graph without network access.
package graphtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrScriptExhausted is returned when a model is called more often than scripted.
var ErrScriptExhausted = errors.New("scripted model: no reply left")

// Reply produces one model response.
type Reply func(msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)

// Text replies with plain assistant text.
func Text(s string) Reply {
	return func([]*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		return schema.AssistantMessage(s, nil), nil
	}
}

// ToolCall replies with a single tool call. An empty id exercises id synthesis.
func ToolCall(id, name, args string) Reply {
	return func([]*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       id,
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}}), nil
	}
}

// Fail replies with err.
func Fail(err error) Reply {
	return func([]*schema.Message, []*schema.ToolInfo) (*schema.Message, error) {
		return nil, err
	}
}

// Call is one recorded Generate invocation.
type Call struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

type script struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// ScriptedModel is a ToolCallingChatModel answering from a fixed script.
// Models derived through WithTools share the script.
type ScriptedModel struct {
	s     *script
	tools []*schema.ToolInfo
}

var _ einomodel.ToolCallingChatModel = (*ScriptedModel)(nil)

func NewScriptedModel(replies ...Reply) *ScriptedModel {
	return &ScriptedModel{s: &script{replies: replies}}
}

func (m *ScriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.calls = append(m.s.calls, Call{Messages: input, Tools: m.tools})
	if len(m.s.replies) == 0 {
		return nil, ErrScriptExhausted
	}
	next := m.s.replies[0]
	m.s.replies = m.s.replies[1:]
	return next(input, m.tools)
}

func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ScriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return &ScriptedModel{s: m.s, tools: tools}, nil
}

// Calls returns the recorded invocations.
func (m *ScriptedModel) Calls() []Call {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]Call(nil), m.s.calls...)
}

// Remaining reports how many scripted replies were not consumed.
func (m *ScriptedModel) Remaining() int {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.replies)
}

// AdminAgent is a recording stand-in for the external administrative agent.
type AdminAgent struct {
	mu      sync.Mutex
	Reply   func(query string) (string, error)
	queries []string
}

func (a *AdminAgent) SendMessage(_ context.Context, query string) (string, error) {
	a.mu.Lock()
	a.queries = append(a.queries, query)
	reply := a.Reply
	a.mu.Unlock()
	if reply == nil {
		return fmt.Sprintf("processed: %s", query), nil
	}
	return reply(query)
}

// Queries returns every query received, in order.
func (a *AdminAgent) Queries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.queries...)
}

// Searcher is a fixed-answer knowledge searcher.
type Searcher struct {
	Text  string
	Found bool
	Err   error
}

func (s Searcher) Search(context.Context, string, string) (string, bool, error) {
	return s.Text, s.Found, s.Err
}
