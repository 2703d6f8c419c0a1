package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/Chative-triage/server/internal/agent/model"
	logx "github.com/Chative-triage/server/pkg/logger"
)

const defaultThinkingBudget = 1024

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Agents  model.AgentSet
}

// AgentModel is one agent's chat model plus the model name used for pricing.
type AgentModel struct {
	Name  string
	Model einomodel.ToolCallingChatModel
}

// ChatModels holds one chat model per agent.
type ChatModels struct {
	Supervisor     AgentModel
	Technical      AgentModel
	Billing        AgentModel
	Administration AgentModel
	Assessment     AgentModel
}

// For returns the model of the named agent.
func (c *ChatModels) For(agent string) (AgentModel, bool) {
	switch agent {
	case model.AgentSupervisor:
		return c.Supervisor, c.Supervisor.Model != nil
	case model.AgentTechnical:
		return c.Technical, c.Technical.Model != nil
	case model.AgentBilling:
		return c.Billing, c.Billing.Model != nil
	case model.AgentAdministration:
		return c.Administration, c.Administration.Model != nil
	case model.AgentAssessment:
		return c.Assessment, c.Assessment.Model != nil
	}
	return AgentModel{}, false
}

// NewChatModels creates the per-agent Gemini chat models sharing one client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	build := func(s model.AgentSettings) (AgentModel, error) {
		temperature := s.Temperature
		maxTokens := s.MaxTokens
		cfg := &gemini.Config{
			Client:      client,
			Model:       s.Model,
			Temperature: &temperature,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: false,
				ThinkingBudget:  genai.Ptr(int32(defaultThinkingBudget)),
			},
		}
		if maxTokens > 0 {
			cfg.MaxTokens = &maxTokens
		}
		cm, err := gemini.NewChatModel(ctx, cfg)
		if err != nil {
			logx.Error().Err(err).Str("agent", s.Name).Msg("Error creating chat model")
			return AgentModel{}, fmt.Errorf("error creating %s model: %w", s.Name, err)
		}
		return AgentModel{Name: s.Model, Model: cm}, nil
	}

	out := &ChatModels{}
	targets := []struct {
		dst *AgentModel
		s   model.AgentSettings
	}{
		{&out.Supervisor, config.Agents.Supervisor},
		{&out.Technical, config.Agents.Technical},
		{&out.Billing, config.Agents.Billing},
		{&out.Administration, config.Agents.Administration},
		{&out.Assessment, config.Agents.Assessment},
	}
	for _, t := range targets {
		m, err := build(t.s)
		if err != nil {
			return nil, err
		}
		*t.dst = m
	}
	return out, nil
}
