package nodes

import (
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/model"
)

// DetermineRoute decides between human review and completion after a stage.
// It is pure; the first matching rule wins.
func DetermineRoute(state *model.ConversationState) string {
	if state.HumanFeedback != nil {
		return RouteDone
	}
	if currentStageNeedsReview(state) {
		return RouteHumanReview
	}
	if state.OverallConfidence < ReviewConfidenceThreshold || state.RiskAssessment == model.RiskHigh {
		return RouteHumanReview
	}
	if state.AnyContextRequiresReview() {
		return RouteHumanReview
	}
	return RouteDone
}

func currentStageNeedsReview(state *model.ConversationState) bool {
	if n := len(state.AgentContexts); n > 0 {
		return state.AgentContexts[n-1].RequiresHumanReview
	}
	return false
}

// RouteIngress sends resumed runs to the feedback processor.
func RouteIngress(state *model.ConversationState) string {
	if state.ReviewPhase == model.ReviewResumed && state.HumanFeedback != nil {
		return NodeProcessFeedback
	}
	return NodeSupervisor
}

// RouteSupervisor picks the responder named by the ticket category.
func RouteSupervisor(state *model.ConversationState) string {
	if state.ErrorMessage != "" || state.Complete || state.CurrentTicket == nil {
		return compose.END
	}
	switch state.CurrentTicket.Category {
	case model.CategoryTechnical:
		return NodeTechnical
	case model.CategoryBilling:
		return NodeBilling
	case model.CategoryAdministration:
		return NodeAdministration
	}
	return compose.END
}

// ShouldContinue peeks at the last assistant turn: pending tool calls go to
// toolsNode, anything else to the assessor.
func ShouldContinue(state *model.ConversationState, toolsNode string) string {
	if state.ErrorMessage != "" {
		return compose.END
	}
	if hasPendingToolCalls(state) {
		return toolsNode
	}
	return NodeAssessment
}

// RouteAdministration routes the administration responder's output.
func RouteAdministration(state *model.ConversationState) string {
	if state.ErrorMessage != "" {
		return compose.END
	}
	if hasPendingToolCalls(state) {
		return NodeAdminTools
	}
	if state.AdminConfirmationPending && !state.AdminConfirmationProcessed {
		return NodeHumanReview
	}
	return NodeAssessment
}

// RouteAfterAdminTools sends a fresh administrative result to the review gate
// and a confirmed one back to the responder for the final reply.
func RouteAfterAdminTools(state *model.ConversationState) string {
	if state.ErrorMessage != "" {
		return compose.END
	}
	if !state.AdminConfirmationProcessed {
		return NodeHumanReview
	}
	return NodeAdministration
}

// RouteAfterFeedback continues into the administration retry or ends the run.
func RouteAfterFeedback(state *model.ConversationState) string {
	if state.ErrorMessage == "" && state.ReviewPhase == model.ReviewRetry {
		return NodeAdministration
	}
	return compose.END
}

// RouteAfterAssessment maps the router outcome onto graph nodes.
func RouteAfterAssessment(state *model.ConversationState) string {
	if state.ErrorMessage != "" {
		return compose.END
	}
	if DetermineRoute(state) == RouteHumanReview {
		return NodeHumanReview
	}
	return compose.END
}

func hasPendingToolCalls(state *model.ConversationState) bool {
	last := conversations.LastMessage(state.Messages)
	return last != nil && last.Role == schema.Assistant && len(last.ToolCalls) > 0
}
