package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/nodes"
	"github.com/Chative-triage/server/internal/agent/graph/observers"
	"github.com/Chative-triage/server/internal/agent/graph/tools"
	"github.com/Chative-triage/server/internal/agent/model"
	"github.com/Chative-triage/server/internal/metrics"
	logx "github.com/Chative-triage/server/pkg/logger"
)

const minRunSteps = 20

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	Agents          model.AgentSet
	Review          model.ReviewConfig
	Tools           *tools.Registry
	Metrics         *metrics.Metrics
	MaxRunSteps     int
}

// GraphBuilder handles the construction of the triage graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*model.ConversationState, *model.ConversationState]
}

type stage = func(context.Context, *model.ConversationState) (*model.ConversationState, error)

// BuildGraph constructs and returns the compiled triage graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	for _, agent := range []string{model.AgentSupervisor, model.AgentTechnical, model.AgentBilling, model.AgentAdministration, model.AgentAssessment} {
		if _, ok := config.ChatModels.For(agent); !ok {
			return nil, fmt.Errorf("chat model for %s is not initialized", agent)
		}
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Tools == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[*model.ConversationState, *model.ConversationState](
			compose.WithGenLocalState(func(ctx context.Context) *model.RunState {
				return &model.RunState{StartedAt: time.Now()}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	cfg := b.config
	cms := cfg.ChatModels
	agents := cfg.Agents

	stages := []struct {
		key string
		fn  stage
	}{
		{nodes.NodeIngress, nodes.Ingress},
		{nodes.NodeSupervisor, nodes.NewSupervisor(cms.Supervisor, agents.Supervisor.SystemPrompt, cfg.MessagesManager, cfg.Metrics).Invoke},
		{nodes.NodeTechnical, nodes.NewResponder(model.AgentTechnical, cms.Technical, agents.Technical.SystemPrompt, cfg.Tools).Invoke},
		{nodes.NodeTechnicalTools, nodes.NewToolExecutor(model.AgentTechnical, nodes.NodeTechnicalTools, cfg.Tools, cfg.Metrics).Invoke},
		{nodes.NodeBilling, nodes.NewResponder(model.AgentBilling, cms.Billing, agents.Billing.SystemPrompt, cfg.Tools).Invoke},
		{nodes.NodeBillingTools, nodes.NewToolExecutor(model.AgentBilling, nodes.NodeBillingTools, cfg.Tools, cfg.Metrics).Invoke},
		{nodes.NodeAdministration, nodes.NewResponder(model.AgentAdministration, cms.Administration, agents.Administration.SystemPrompt, cfg.Tools).Invoke},
		{nodes.NodeAdminTools, nodes.NewToolExecutor(model.AgentAdministration, nodes.NodeAdminTools, cfg.Tools, cfg.Metrics).Invoke},
		{nodes.NodeAssessment, nodes.NewAssessor(cms.Assessment, agents.Assessment.SystemPrompt, cfg.Metrics).Invoke},
		{nodes.NodeHumanReview, nodes.NewReviewGate(cfg.Review, cfg.Metrics).Invoke},
		{nodes.NodeProcessFeedback, nodes.NewFeedbackProcessor(cfg.Metrics).Invoke},
	}

	for _, s := range stages {
		if err := b.graph.AddLambdaNode(s.key,
			compose.InvokableLambda(s.fn),
			compose.WithNodeName(s.key),
			compose.WithStatePostHandler(newTransitionPostHandler(s.key)),
		); err != nil {
			logx.Error().Err(err).Str("node", s.key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.key, err)
		}
	}
	return nil
}

// addEdges creates the fixed connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeIngress},
		{nodes.NodeTechnicalTools, nodes.NodeTechnical},
		{nodes.NodeBillingTools, nodes.NodeBilling},
		{nodes.NodeHumanReview, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	branches := []struct {
		from    string
		route   func(*model.ConversationState) string
		targets []string
	}{
		{nodes.NodeIngress, nodes.RouteIngress, []string{nodes.NodeSupervisor, nodes.NodeProcessFeedback}},
		{nodes.NodeSupervisor, nodes.RouteSupervisor, []string{nodes.NodeTechnical, nodes.NodeBilling, nodes.NodeAdministration, compose.END}},
		{nodes.NodeTechnical, func(s *model.ConversationState) string {
			return nodes.ShouldContinue(s, nodes.NodeTechnicalTools)
		}, []string{nodes.NodeTechnicalTools, nodes.NodeAssessment, compose.END}},
		{nodes.NodeBilling, func(s *model.ConversationState) string {
			return nodes.ShouldContinue(s, nodes.NodeBillingTools)
		}, []string{nodes.NodeBillingTools, nodes.NodeAssessment, compose.END}},
		{nodes.NodeAdministration, nodes.RouteAdministration, []string{nodes.NodeAdminTools, nodes.NodeHumanReview, nodes.NodeAssessment, compose.END}},
		{nodes.NodeAdminTools, nodes.RouteAfterAdminTools, []string{nodes.NodeHumanReview, nodes.NodeAdministration, compose.END}},
		{nodes.NodeAssessment, nodes.RouteAfterAssessment, []string{nodes.NodeHumanReview, compose.END}},
		{nodes.NodeProcessFeedback, nodes.RouteAfterFeedback, []string{nodes.NodeAdministration, compose.END}},
	}

	for _, br := range branches {
		ends := make(map[string]bool, len(br.targets))
		for _, t := range br.targets {
			ends[t] = true
		}
		branch := compose.NewGraphBranch(b.condition(br.from, br.route), ends)
		if err := b.graph.AddBranch(br.from, branch); err != nil {
			logx.Error().Err(err).Str("node", br.from).Msg("Error adding branch")
			return fmt.Errorf("error adding %s branch: %w", br.from, err)
		}
	}
	return nil
}

// condition wraps a pure routing function with logging and metrics.
func (b *GraphBuilder) condition(from string, route func(*model.ConversationState) string) func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		target := route(s)
		b.config.Metrics.ObserveRoute(from, target)
		logx.Debug().Str("run_id", s.RunID).Str("from", from).Str("to", target).Msg("routing")
		return target, nil
	}
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	// Limit total run steps to avoid infinite loops in tool retries
	maxSteps := b.config.MaxRunSteps
	if maxSteps < minRunSteps {
		maxSteps = minRunSteps
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps), compose.WithGraphName("support_triage"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_run_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}

// newTransitionPostHandler records one audit transition per finished stage.
func newTransitionPostHandler(stage string) func(context.Context, *model.ConversationState, *model.RunState) (*model.ConversationState, error) {
	return func(ctx context.Context, out *model.ConversationState, rs *model.RunState) (*model.ConversationState, error) {
		if out == nil {
			return out, nil
		}
		rs.RunID = out.RunID
		rs.Stages = append(rs.Stages, stage)
		rs.LastStage = stage
		rs.StageCount++

		routing := ""
		if n := len(out.RoutingHistory); n > 0 && strings.HasPrefix(out.RoutingHistory[n-1], stage+":") {
			routing = out.RoutingHistory[n-1]
		}
		observers.SinkFrom(ctx).Record(model.StageTransition{
			RunID:             out.RunID,
			Stage:             stage,
			Routing:           routing,
			OverallConfidence: out.OverallConfidence,
			Pending:           out.PendingHumanReview,
			Error:             out.ErrorMessage,
			At:                time.Now().UTC(),
		})
		return out, nil
	}
}
