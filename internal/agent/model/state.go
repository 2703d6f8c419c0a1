package model

import (
	"maps"
	"math"
	"slices"

	"github.com/cloudwego/eino/schema"
)

// InitialConfidence is the running minimum before any stage contributed.
const InitialConfidence = 1.0

// ConversationState is threaded through every stage of the triage graph and
// persisted whole at the review suspension point. Stages never mutate the
// state they receive; they work on a Clone and return it.
type ConversationState struct {
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`

	Messages       []*schema.Message `json:"messages"`
	CurrentTicket  *Ticket           `json:"current_ticket,omitempty"`
	AgentContexts  []AgentContext    `json:"agent_contexts"`
	RoutingHistory []string          `json:"routing_history"`

	OverallConfidence float64   `json:"overall_confidence"`
	RiskAssessment    RiskLevel `json:"risk_assessment,omitempty"`

	PendingHumanReview bool           `json:"pending_human_review"`
	HumanFeedback      *string        `json:"human_feedback,omitempty"`
	Review             *ReviewRequest `json:"review,omitempty"`
	ReviewPhase        ReviewPhase    `json:"review_phase"`

	AdminToolResponse          string `json:"admin_tool_response,omitempty"`
	AdminOriginalQuery         string `json:"admin_original_query,omitempty"`
	AdminConfirmationPending   bool   `json:"admin_confirmation_pending"`
	AdminConfirmationProcessed bool   `json:"admin_confirmation_processed"`

	ToolCallCounts map[string]int `json:"tool_call_counts"`
	ToolCallLimits map[string]int `json:"tool_call_limits"`

	Complete     bool    `json:"complete"`
	ErrorMessage string  `json:"error_message,omitempty"`
	UsageCostUSD float64 `json:"usage_cost_usd"`
}

// NewConversationState creates an empty state for a run.
func NewConversationState(runID, conversationID string) *ConversationState {
	return &ConversationState{
		RunID:             runID,
		ConversationID:    conversationID,
		Messages:          []*schema.Message{},
		AgentContexts:     []AgentContext{},
		RoutingHistory:    []string{},
		OverallConfidence: InitialConfidence,
		ReviewPhase:       ReviewAwaitingTrigger,
		ToolCallCounts:    map[string]int{},
		ToolCallLimits:    map[string]int{},
	}
}

// Clone returns a copy whose slices and maps can be appended to or written
// without affecting the receiver. Messages themselves are shared and must be
// treated as immutable.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = slices.Clone(s.Messages)
	c.AgentContexts = slices.Clone(s.AgentContexts)
	c.RoutingHistory = slices.Clone(s.RoutingHistory)
	c.ToolCallCounts = maps.Clone(s.ToolCallCounts)
	c.ToolCallLimits = maps.Clone(s.ToolCallLimits)
	if c.ToolCallCounts == nil {
		c.ToolCallCounts = map[string]int{}
	}
	if c.ToolCallLimits == nil {
		c.ToolCallLimits = map[string]int{}
	}
	if s.CurrentTicket != nil {
		t := *s.CurrentTicket
		t.Keywords = slices.Clone(s.CurrentTicket.Keywords)
		c.CurrentTicket = &t
	}
	if s.HumanFeedback != nil {
		f := *s.HumanFeedback
		c.HumanFeedback = &f
	}
	if s.Review != nil {
		r := *s.Review
		c.Review = &r
	}
	return &c
}

// BeginRun resets the per-run fields so a follow-up user message on an
// existing conversation starts a fresh triage while keeping the message history.
func (s *ConversationState) BeginRun(runID string) {
	s.RunID = runID
	s.AgentContexts = []AgentContext{}
	s.RoutingHistory = []string{}
	s.OverallConfidence = InitialConfidence
	s.RiskAssessment = ""
	s.PendingHumanReview = false
	s.HumanFeedback = nil
	s.Review = nil
	s.ReviewPhase = ReviewAwaitingTrigger
	s.AdminToolResponse = ""
	s.AdminOriginalQuery = ""
	s.AdminConfirmationPending = false
	s.AdminConfirmationProcessed = false
	s.ToolCallCounts = map[string]int{}
	s.Complete = false
	s.ErrorMessage = ""
	s.UsageCostUSD = 0
}

// AppendMessages appends turns in order, skipping nils.
func (s *ConversationState) AppendMessages(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			s.Messages = append(s.Messages, m)
		}
	}
}

// RecordAgentContext appends the entry and folds its score into the running minimum.
func (s *ConversationState) RecordAgentContext(ac AgentContext) {
	s.AgentContexts = append(s.AgentContexts, ac)
	s.OverallConfidence = math.Min(s.OverallConfidence, ac.ConfidenceScore)
}

func (s *ConversationState) AppendRouting(entry string) {
	s.RoutingHistory = append(s.RoutingHistory, entry)
}

// Fail records a run-aborting error and marks the run terminal.
func (s *ConversationState) Fail(err error) {
	if err == nil {
		return
	}
	s.ErrorMessage = err.Error()
	s.Complete = true
}

// ApplyClassification merges a classification into the current ticket,
// creating it when absent and keeping unrelated fields such as the ticket id.
func (s *ConversationState) ApplyClassification(c TicketClassification, description string) {
	if s.CurrentTicket == nil {
		s.CurrentTicket = &Ticket{}
	}
	s.CurrentTicket.Category = c.Category
	s.CurrentTicket.Priority = c.Priority
	s.CurrentTicket.Subject = c.Subject()
	s.CurrentTicket.InitialDescription = description
	s.CurrentTicket.Keywords = slices.Clone(c.Keywords)
	if s.CurrentTicket.Keywords == nil {
		s.CurrentTicket.Keywords = []string{}
	}
}

// AnyContextRequiresReview reports whether any recorded agent context asked for review.
func (s *ConversationState) AnyContextRequiresReview() bool {
	for _, ac := range s.AgentContexts {
		if ac.RequiresHumanReview {
			return true
		}
	}
	return false
}

// ToolLimit returns the configured ceiling for agent; zero means unlimited.
func (s *ConversationState) ToolLimit(agent string) int {
	return s.ToolCallLimits[agent]
}

// ToolLimitReached reports whether agent already used its tool-call budget.
func (s *ConversationState) ToolLimitReached(agent string) bool {
	limit := s.ToolLimit(agent)
	return limit > 0 && s.ToolCallCounts[agent] >= limit
}

// Abandon closes a suspended run that a newer run of the same conversation
// replaced, so its pending review can no longer be resumed.
func (s *ConversationState) Abandon(supersededBy string) {
	s.PendingHumanReview = false
	s.ReviewPhase = ReviewDone
	s.AdminConfirmationPending = false
	s.Complete = true
	s.ErrorMessage = "abandoned: superseded by run " + supersededBy
}

// Suspended reports whether the run is parked at the review gate.
func (s *ConversationState) Suspended() bool {
	return s.PendingHumanReview && s.ReviewPhase == ReviewSuspended
}
