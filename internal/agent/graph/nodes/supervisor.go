package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/parsers"
	"github.com/Chative-triage/server/internal/agent/graph/prompts"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	"github.com/Chative-triage/server/internal/metrics"
)

// Supervisor classifies the latest customer message and picks the responder.
type Supervisor struct {
	model        AgentModel
	systemPrompt string
	messages     *conversations.MessagesManager
	metrics      *metrics.Metrics
}

func NewSupervisor(m AgentModel, systemPrompt string, mm *conversations.MessagesManager, mt *metrics.Metrics) *Supervisor {
	return &Supervisor{
		model:        m,
		systemPrompt: prompts.SystemTemplate(model.AgentSupervisor, systemPrompt),
		messages:     mm,
		metrics:      mt,
	}
}

func (s *Supervisor) Invoke(ctx context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	log := nodeLogger(st, NodeSupervisor)

	cc, err := s.messages.BuildClassifierContext(st.Messages)
	if err != nil {
		log.Warn().Err(err).Msg("no user message to classify")
		st.Fail(err)
		return st, nil
	}

	c := s.classify(ctx, st, cc)
	s.metrics.ObserveClassification(string(c.Category), c.Confidence < LowConfidenceThreshold)

	if c.Category == model.CategoryUnclassifiable {
		st.AppendMessages(schema.AssistantMessage(prompts.UnclassifiableResponse(), nil))
		st.RecordAgentContext(model.AgentContext{
			AgentName:           model.AgentSupervisor,
			ConfidenceScore:     c.Confidence,
			Reasoning:           fmt.Sprintf("Request is outside support scope: %s", c.Subject()),
			RequiresHumanReview: false,
			RiskLevel:           model.RiskLow,
		})
		st.AppendRouting("supervisor: classified as unclassifiable (not within scope)")
		st.Complete = true
		log.Info().Float64("confidence", c.Confidence).Msg("request not within scope")
		return st, nil
	}

	if c.Confidence < LowConfidenceThreshold {
		log.Warn().
			Str("category", string(c.Category)).
			Float64("confidence", c.Confidence).
			Msg("low confidence classification")
	}

	st.ApplyClassification(c, cc.Latest)
	st.AppendRouting(fmt.Sprintf("supervisor: classified as %s (priority: %s, confidence: %.2f)", c.Category, c.Priority, c.Confidence))

	risk := model.RiskLow
	if c.NeedsHumanReview {
		risk = model.RiskHigh
	}
	st.RecordAgentContext(model.AgentContext{
		AgentName:           model.AgentSupervisor,
		ConfidenceScore:     c.Confidence,
		Reasoning:           fmt.Sprintf("Classified as %s: %s", c.Category, c.Subject()),
		RequiresHumanReview: c.NeedsHumanReview,
		RiskLevel:           risk,
	})

	// tool budgets are per run and start over with every fresh classification
	st.ToolCallCounts = map[string]int{}

	log.Info().
		Str("category", string(c.Category)).
		Str("priority", string(c.Priority)).
		Float64("confidence", c.Confidence).
		Bool("needs_human_review", c.NeedsHumanReview).
		Msg("ticket classified")
	return st, nil
}

// classify never fails: service errors and malformed output yield the fallback.
func (s *Supervisor) classify(ctx context.Context, st *model.ConversationState, cc conversations.ClassifierContext) model.TicketClassification {
	log := nodeLogger(st, NodeSupervisor)
	if s.model.Model == nil {
		log.Error().Err(errx.ErrClassificationService).Msg("no classifier model configured")
		return model.FallbackClassification()
	}

	msgs, err := prompts.ClassifierMessages(ctx, s.systemPrompt, cc.History, cc.Latest)
	if err != nil {
		log.Error().Err(err).Msg("classifier prompt failed")
		return model.FallbackClassification()
	}

	out, err := s.model.Model.Generate(ctx, msgs)
	if err == nil && out == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		log.Error().Err(fmt.Errorf("%w: %v", errx.ErrClassificationService, err)).Msg("classification failed, using fallback")
		return model.FallbackClassification()
	}
	recordUsage(st, NodeSupervisor, s.model.Name, out)

	c, err := parsers.ParseClassification(out.Content)
	if err != nil {
		log.Error().Err(err).Msg("classifier output rejected, using fallback")
		return model.FallbackClassification()
	}
	return *c
}
