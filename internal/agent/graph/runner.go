package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/Chative-triage/server/internal/a2a"
	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/nodes"
	"github.com/Chative-triage/server/internal/agent/graph/observers"
	"github.com/Chative-triage/server/internal/agent/graph/tools"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	"github.com/Chative-triage/server/internal/metrics"
	logx "github.com/Chative-triage/server/pkg/logger"
)

// Engine starts, resumes and inspects triage runs.
type Engine interface {
	Start(ctx context.Context, in model.RunInput) (*model.RunResult, error)
	Resume(ctx context.Context, runID string, decision model.ReviewDecision) (*model.RunResult, error)
	Get(ctx context.Context, runID string) (*model.ConversationState, error)
	Transitions(ctx context.Context, runID string) ([]model.StageTransition, error)
}

// Config holds everything needed to compose the full triage engine end-to-end.
// This is a convenience layer over GraphConfig that also constructs ChatModels and MessagesManager.
type Config struct {
	APIKey       string
	BaseURL      string
	Agents       model.AgentSet
	Review       model.ReviewConfig
	Conversation model.ConversationConfig
	Repo         model.RunRepository
	Tools        *tools.Registry
	Metrics      *metrics.Metrics
}

// Runner executes the compiled graph and checkpoints every run.
type Runner struct {
	runnable  compose.Runnable[*model.ConversationState, *model.ConversationState]
	repo      model.RunRepository
	limits    map[string]int
	metrics   *metrics.Metrics
	callbacks []einocb.Handler
}

var _ Engine = (*Runner)(nil)

func NewRunner(runnable compose.Runnable[*model.ConversationState, *model.ConversationState], repo model.RunRepository, agents model.AgentSet, mt *metrics.Metrics, handlers ...einocb.Handler) *Runner {
	return &Runner{
		runnable:  runnable,
		repo:      repo,
		limits:    agents.ToolCallLimits(),
		metrics:   mt,
		callbacks: handlers,
	}
}

// BuildEngine composes ChatModels, MessagesManager, builds the graph, and returns a Runner.
func BuildEngine(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("run repository is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Agents:  cfg.Agents,
	})
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:      cms,
		MessagesManager: conversations.NewMessagesManager(cfg.Conversation.HistoryTurns),
		Agents:          cfg.Agents,
		Review:          cfg.Review,
		Tools:           cfg.Tools,
		Metrics:         cfg.Metrics,
		MaxRunSteps:     cfg.Conversation.MaxRunSteps,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Triage graph built successfully")
	return NewRunner(runnable, cfg.Repo, cfg.Agents, cfg.Metrics, observers.NewAllCallbacks()), nil
}

// Start triages new customer messages. When the conversation already has a
// run, its message history is carried over and the per-run fields reset.
func (r *Runner) Start(ctx context.Context, in model.RunInput) (*model.RunResult, error) {
	if len(in.Messages) == 0 {
		return nil, errx.BadRequest("at least one message is required")
	}
	msgs := make([]*schema.Message, 0, len(in.Messages))
	for i, m := range in.Messages {
		msg, err := m.Normalize()
		if err != nil {
			return nil, errx.BadRequest("message %d: %v", i, err)
		}
		msgs = append(msgs, msg)
	}

	runID := uuid.NewString()
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	st, err := r.previousState(ctx, conversationID, runID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = model.NewConversationState(runID, conversationID)
	} else {
		st.BeginRun(runID)
	}
	st.AppendMessages(msgs...)
	st.ToolCallLimits = maps.Clone(r.limits)

	if in.AdminAgentKey != "" {
		ctx = a2a.WithCredential(ctx, in.AdminAgentKey)
	}
	logx.Info().Str("run_id", runID).Str("conversation_id", conversationID).Int("messages", len(msgs)).Msg("run started")
	return r.invoke(ctx, "start", st, 0)
}

func (r *Runner) previousState(ctx context.Context, conversationID, runID string) (*model.ConversationState, error) {
	prevID, err := r.repo.LatestRunID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if prevID == "" {
		return nil, nil
	}
	prev, err := r.repo.LoadState(ctx, prevID)
	if err != nil {
		if errors.Is(err, errx.ErrRunNotFound) {
			// checkpoint expired before the pointer did
			return nil, nil
		}
		return nil, err
	}
	if !prev.Suspended() {
		return prev.Clone(), nil
	}

	abandoned, err := r.repo.UpdateSuspended(ctx, prevID, func(s *model.ConversationState) { s.Abandon(runID) })
	switch {
	case err == nil:
		logx.Warn().Str("run_id", prevID).Str("conversation_id", conversationID).Str("superseded_by", runID).Msg("abandoned suspended run for new message")
		return abandoned.Clone(), nil
	case errors.Is(err, errx.ErrRunNotSuspended):
		// resumed concurrently, continue from whatever it stored
		return r.repo.LoadState(ctx, prevID)
	default:
		return nil, err
	}
}

// Resume applies a human decision to a suspended run.
func (r *Runner) Resume(ctx context.Context, runID string, decision model.ReviewDecision) (*model.RunResult, error) {
	feedback := strings.TrimSpace(decision.Decision)
	if feedback == "" {
		return nil, errx.BadRequest("decision is required")
	}

	// claiming the run is atomic, so a decision is applied at most once
	st, err := r.repo.UpdateSuspended(ctx, runID, func(s *model.ConversationState) {
		s.HumanFeedback = &feedback
		s.ReviewPhase = model.ReviewResumed
	})
	if err != nil {
		return nil, err
	}

	prior, err := r.repo.ListTransitions(ctx, runID)
	if err != nil {
		return nil, err
	}

	logx.Info().Str("run_id", runID).Msg("run resumed")
	return r.invoke(ctx, "resume", st, len(prior))
}

func (r *Runner) Get(ctx context.Context, runID string) (*model.ConversationState, error) {
	return r.repo.LoadState(ctx, runID)
}

func (r *Runner) Transitions(ctx context.Context, runID string) ([]model.StageTransition, error) {
	if _, err := r.repo.LoadState(ctx, runID); err != nil {
		return nil, err
	}
	return r.repo.ListTransitions(ctx, runID)
}

func (r *Runner) invoke(ctx context.Context, operation string, st *model.ConversationState, seq int) (*model.RunResult, error) {
	started := time.Now()
	log := logx.With(map[string]string{"run_id": st.RunID, "operation": operation})

	// transitions go to the repository as stages finish
	ctx, _ = observers.WithTransitionSink(ctx, seq, func(t model.StageTransition) {
		if err := r.repo.AppendTransition(ctx, t); err != nil {
			log.Warn().Err(err).Str("stage", t.Stage).Msg("failed to record transition")
		}
	})

	out, err := r.runnable.Invoke(ctx, st, compose.WithCallbacks(r.callbacks...))
	if err != nil {
		log.Error().Err(err).Msg("graph invocation failed")
		out = st.Clone()
		out.Fail(err)
	}
	finalize(out)

	if err := r.repo.SaveState(ctx, out); err != nil {
		return nil, err
	}

	status := statusOf(out)
	r.metrics.ObserveRun(operation, string(status), time.Since(started))
	log.Info().
		Str("status", string(status)).
		Float64("overall_confidence", out.OverallConfidence).
		Float64("cost_usd", out.UsageCostUSD).
		Dur("elapsed", time.Since(started)).
		Msg("run finished")

	res := &model.RunResult{RunID: out.RunID, Status: status, State: out}
	switch status {
	case model.RunSuspended:
		res.Review = out.Review
	case model.RunCompleted:
		res.Reply = conversations.LatestDraft(out.Messages)
	}
	return res, nil
}

// finalize closes the review state machine for runs that did not suspend.
func finalize(st *model.ConversationState) {
	if st.Suspended() {
		return
	}
	st.PendingHumanReview = false
	st.Complete = true
	switch st.ReviewPhase {
	case model.ReviewResumed, model.ReviewRetry:
		st.ReviewPhase = model.ReviewDone
	}
}

func statusOf(st *model.ConversationState) model.RunStatus {
	switch {
	case st.ErrorMessage != "":
		return model.RunFailed
	case st.Suspended():
		return model.RunSuspended
	default:
		return model.RunCompleted
	}
}
