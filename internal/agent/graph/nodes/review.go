package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/prompts"
	"github.com/Chative-triage/server/internal/agent/model"
	"github.com/Chative-triage/server/internal/metrics"
)

// CancellationMessage is appended when the customer cancels an administrative action.
const CancellationMessage = "Administrative action cancelled as requested."

// Review kinds reported in metrics and routing history.
const (
	ReviewKindAdmin   = "admin_confirmation"
	ReviewKindGeneric = "generic"
)

var (
	cancelKeywords  = []string{"no", "cancel", "abort", "stop"}
	confirmKeywords = []string{"yes", "confirm", "proceed", "ok", "approved", "go ahead"}
)

// ClassifyDecision interprets a free-text review decision. Keywords match
// anywhere in the text, so "not", "nope" and "don't" all cancel.
// Cancellation wins over confirmation; text matching neither is treated as
// additional information.
func ClassifyDecision(decision string) model.DecisionKind {
	text := strings.ToLower(decision)
	switch {
	case containsAny(text, cancelKeywords):
		return model.DecisionCancelled
	case containsAny(text, confirmKeywords):
		return model.DecisionConfirmed
	default:
		return model.DecisionAdditionalInfo
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ReviewGate parks the run for a human decision.
type ReviewGate struct {
	review  model.ReviewConfig
	metrics *metrics.Metrics
}

func NewReviewGate(cfg model.ReviewConfig, mt *metrics.Metrics) *ReviewGate {
	return &ReviewGate{review: cfg, metrics: mt}
}

func (g *ReviewGate) Invoke(ctx context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	log := nodeLogger(st, NodeHumanReview)

	admin := st.AdminConfirmationPending && !st.AdminConfirmationProcessed
	kind := ReviewKindGeneric
	question := g.review.GenericQuestion
	var details strings.Builder
	if admin {
		kind = ReviewKindAdmin
		question = g.review.AdminQuestion
		text, err := prompts.AdminConfirmationDetails(ctx, st.AdminOriginalQuery, st.AdminToolResponse)
		if err != nil {
			text = fmt.Sprintf("Administrative request: %s\n\nResponse from the administrative agent:\n%s", st.AdminOriginalQuery, st.AdminToolResponse)
		}
		details.WriteString(text)
		details.WriteString("\n\n")
	}
	details.WriteString(reviewSummary(st, !admin))

	st.Review = &model.ReviewRequest{Question: question, Details: strings.TrimSpace(details.String())}
	st.PendingHumanReview = true
	st.ReviewPhase = model.ReviewSuspended
	st.AppendRouting(fmt.Sprintf("human_review: awaiting %s decision", kind))
	g.metrics.ObserveReview(kind)

	log.Info().Str("kind", kind).Float64("overall_confidence", st.OverallConfidence).Msg("run suspended for human review")
	return st, nil
}

// reviewSummary renders the ticket, scores and agent history for reviewers.
func reviewSummary(st *model.ConversationState, withDraft bool) string {
	var b strings.Builder
	if t := st.CurrentTicket; t != nil {
		fmt.Fprintf(&b, "Ticket: %s\nCategory: %s\nPriority: %s\n", t.Subject, t.Category, t.Priority)
	}
	fmt.Fprintf(&b, "Overall confidence: %.2f\n", st.OverallConfidence)
	if st.RiskAssessment != "" {
		fmt.Fprintf(&b, "Risk: %s\n", st.RiskAssessment)
	}
	if len(st.AgentContexts) > 0 {
		b.WriteString("\nAgent history:\n")
		for _, ac := range st.AgentContexts {
			fmt.Fprintf(&b, "- %s: confidence %.2f, risk %s, review required: %t", ac.AgentName, ac.ConfidenceScore, ac.RiskLevel, ac.RequiresHumanReview)
			if r := strings.TrimSpace(ac.Reasoning); r != "" {
				fmt.Fprintf(&b, " (%s)", r)
			}
			b.WriteString("\n")
		}
	}
	if withDraft {
		if draft := conversations.LatestDraft(st.Messages); draft != "" {
			b.WriteString("\nDraft response:\n")
			b.WriteString(draft)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FeedbackProcessor applies a resumed review decision.
type FeedbackProcessor struct {
	metrics *metrics.Metrics
}

func NewFeedbackProcessor(mt *metrics.Metrics) *FeedbackProcessor {
	return &FeedbackProcessor{metrics: mt}
}

func (p *FeedbackProcessor) Invoke(_ context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	log := nodeLogger(st, NodeProcessFeedback)

	feedback := ""
	if st.HumanFeedback != nil {
		feedback = strings.TrimSpace(*st.HumanFeedback)
	}
	st.PendingHumanReview = false
	st.Review = nil

	if !st.AdminConfirmationPending {
		if feedback != "" {
			st.AppendMessages(schema.AssistantMessage(feedback, nil))
		}
		st.HumanFeedback = nil
		st.ReviewPhase = model.ReviewDone
		st.Complete = true
		st.AppendRouting("process_feedback: reviewer response applied")
		p.metrics.ObserveDecision(ReviewKindGeneric)
		log.Info().Msg("generic review applied")
		return st, nil
	}

	kind := ClassifyDecision(feedback)
	p.metrics.ObserveDecision(string(kind))

	if kind == model.DecisionCancelled {
		st.AppendMessages(schema.AssistantMessage(CancellationMessage, nil))
		st.AdminConfirmationPending = false
		st.AdminConfirmationProcessed = false
		st.ReviewPhase = model.ReviewDone
		st.Complete = true
		st.AppendRouting("process_feedback: administrative action cancelled")
		log.Info().Msg("administrative action cancelled")
		return st, nil
	}

	original := st.AdminOriginalQuery
	if original == "" {
		original = conversations.LatestUserText(st.Messages)
	}
	label := "User confirmed: "
	if kind == model.DecisionAdditionalInfo {
		label = "User response: "
	}
	st.AppendMessages(schema.UserMessage(original + "\n\n" + label + feedback))
	st.AdminConfirmationProcessed = true
	st.AdminConfirmationPending = false
	st.ToolCallCounts[model.AgentAdministration] = 0
	st.ReviewPhase = model.ReviewRetry
	st.AppendRouting(fmt.Sprintf("process_feedback: administrative action %s, retrying", kind))
	log.Info().Str("decision", string(kind)).Msg("administrative action confirmed")
	return st, nil
}
