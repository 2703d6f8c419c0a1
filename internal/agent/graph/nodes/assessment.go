package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/parsers"
	"github.com/Chative-triage/server/internal/agent/graph/prompts"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	"github.com/Chative-triage/server/internal/metrics"
)

// Assessor scores the latest draft reply for confidence and risk.
type Assessor struct {
	model        AgentModel
	systemPrompt string
	metrics      *metrics.Metrics
}

func NewAssessor(m AgentModel, systemPrompt string, mt *metrics.Metrics) *Assessor {
	return &Assessor{
		model:        m,
		systemPrompt: prompts.SystemTemplate(model.AgentAssessment, systemPrompt),
		metrics:      mt,
	}
}

// conservativeAssessment is used when the assessment service cannot answer.
func conservativeAssessment(reason string) model.Assessment {
	return model.Assessment{
		ConfidenceScore:     0,
		RiskLevel:           model.RiskHigh,
		RequiresHumanReview: true,
		Reasoning:           "Automatic assessment unavailable: " + reason,
	}
}

func (a *Assessor) Invoke(ctx context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	log := nodeLogger(st, NodeAssessment)

	if st.CurrentTicket == nil {
		st.Fail(errx.ErrNoTicketContext)
		return st, nil
	}
	draft := conversations.LatestDraft(st.Messages)
	if draft == "" {
		log.Warn().Msg("no draft reply to assess")
		st.Fail(errx.ErrNoAgentResponse)
		return st, nil
	}

	res := a.assess(ctx, st, draft)
	if flags := ComplianceFlags(draft); len(flags) > 0 {
		log.Warn().Strs("flags", flags).Msg("draft contains sensitive content")
		res.RequiresHumanReview = true
		res.ComplianceRisks = mergeComplianceRisks(res.ComplianceRisks, flags)
	}

	st.RecordAgentContext(model.AgentContext{
		AgentName:           model.AgentAssessment,
		ConfidenceScore:     res.ConfidenceScore,
		Reasoning:           res.Reasoning,
		RequiresHumanReview: res.RequiresHumanReview,
		RiskLevel:           res.RiskLevel,
	})
	st.RiskAssessment = res.RiskLevel

	route := DetermineRoute(st)
	st.AppendRouting(fmt.Sprintf("assessment: routed to %s (confidence: %.2f, risk: %s)", route, st.OverallConfidence, st.RiskAssessment))
	a.metrics.ObserveRoute(NodeAssessment, route)

	log.Info().
		Float64("confidence", res.ConfidenceScore).
		Float64("overall_confidence", st.OverallConfidence).
		Str("risk", string(res.RiskLevel)).
		Bool("requires_human_review", res.RequiresHumanReview).
		Str("route", route).
		Msg("draft assessed")
	return st, nil
}

func (a *Assessor) assess(ctx context.Context, st *model.ConversationState, draft string) model.Assessment {
	log := nodeLogger(st, NodeAssessment)
	if a.model.Model == nil {
		return conservativeAssessment("no assessment model configured")
	}

	msgs, err := prompts.AssessmentMessages(ctx, a.systemPrompt, prompts.AssessmentVars{
		UserMessage: conversations.LatestUserText(st.Messages),
		Draft:       draft,
		Priority:    string(st.CurrentTicket.Priority),
		Category:    string(st.CurrentTicket.Category),
	})
	if err != nil {
		log.Error().Err(err).Msg("assessment prompt failed")
		return conservativeAssessment(err.Error())
	}

	out, err := a.model.Model.Generate(ctx, msgs)
	if err == nil && out == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		log.Error().Err(err).Msg("assessment service failed")
		return conservativeAssessment("service error")
	}
	recordUsage(st, NodeAssessment, a.model.Name, out)

	res, err := parsers.ParseAssessment(out.Content)
	if err != nil {
		log.Error().Err(err).Msg("assessment output rejected")
		return conservativeAssessment("malformed assessment")
	}
	return *res
}
