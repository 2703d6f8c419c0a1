package model

import (
	"fmt"
	"net"
	"strconv"
)

// Agent names as they appear in agent contexts, tool counters and config.
const (
	AgentSupervisor     = "supervisor"
	AgentTechnical      = "technical"
	AgentBilling        = "billing"
	AgentAdministration = "administration"
	AgentAssessment     = "assessment"
)

// DefaultToolCallLimit applies to agents whose limit must be bounded but was
// left unset.
const DefaultToolCallLimit = 1

// ================ Config ================
type ConversationConfig struct {
	RunTTL       string `envconfig:"RUN_TTL" default:"168h"`
	HistoryTurns int    `envconfig:"CLASSIFIER_HISTORY_TURNS" default:"10"`
	MaxRunSteps  int    `envconfig:"GRAPH_MAX_RUN_STEPS" default:"60"`
}

type SupervisorModelConfig struct {
	Model        string  `envconfig:"SUPERVISOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens    int     `envconfig:"SUPERVISOR_MAX_TOKENS" default:"1024"`
	Temperature  float32 `envconfig:"SUPERVISOR_TEMPERATURE" default:"0.0"`
	SystemPrompt string  `envconfig:"SUPERVISOR_SYSTEM_PROMPT"`
}

type TechnicalModelConfig struct {
	Model         string  `envconfig:"TECHNICAL_MODEL" default:"gemini-2.5-flash"`
	MaxTokens     int     `envconfig:"TECHNICAL_MAX_TOKENS" default:"2000"`
	Temperature   float32 `envconfig:"TECHNICAL_TEMPERATURE" default:"0.1"`
	SystemPrompt  string  `envconfig:"TECHNICAL_SYSTEM_PROMPT"`
	ToolCallLimit int     `envconfig:"TECHNICAL_TOOL_CALL_LIMIT" default:"0"`
}

type BillingModelConfig struct {
	Model         string  `envconfig:"BILLING_MODEL" default:"gemini-2.5-flash"`
	MaxTokens     int     `envconfig:"BILLING_MAX_TOKENS" default:"2000"`
	Temperature   float32 `envconfig:"BILLING_TEMPERATURE" default:"0.3"`
	SystemPrompt  string  `envconfig:"BILLING_SYSTEM_PROMPT"`
	ToolCallLimit int     `envconfig:"BILLING_TOOL_CALL_LIMIT" default:"0"`
}

type AdministrationModelConfig struct {
	Model         string  `envconfig:"ADMINISTRATION_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int     `envconfig:"ADMINISTRATION_MAX_TOKENS" default:"1024"`
	Temperature   float32 `envconfig:"ADMINISTRATION_TEMPERATURE" default:"0.1"`
	SystemPrompt  string  `envconfig:"ADMINISTRATION_SYSTEM_PROMPT"`
	ToolCallLimit int     `envconfig:"ADMINISTRATION_TOOL_CALL_LIMIT" default:"1"`
}

type AssessmentModelConfig struct {
	Model        string  `envconfig:"ASSESSMENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens    int     `envconfig:"ASSESSMENT_MAX_TOKENS" default:"1024"`
	Temperature  float32 `envconfig:"ASSESSMENT_TEMPERATURE" default:"0.0"`
	SystemPrompt string  `envconfig:"ASSESSMENT_SYSTEM_PROMPT"`
}

// AgentsConfig groups the per-agent env configs.
type AgentsConfig struct {
	Supervisor     SupervisorModelConfig
	Technical      TechnicalModelConfig
	Billing        BillingModelConfig
	Administration AdministrationModelConfig
	Assessment     AssessmentModelConfig
}

// AgentSettings is the provider-neutral view of one agent's configuration.
type AgentSettings struct {
	Name          string
	Model         string
	MaxTokens     int
	Temperature   float32
	SystemPrompt  string
	ToolCallLimit int
}

// AgentSet is the resolved configuration of every agent in the workflow.
type AgentSet struct {
	Supervisor     AgentSettings
	Technical      AgentSettings
	Billing        AgentSettings
	Administration AgentSettings
	Assessment     AgentSettings
}

// Settings converts the env layout into an AgentSet.
func (c AgentsConfig) Settings() AgentSet {
	adminLimit := c.Administration.ToolCallLimit
	if adminLimit <= 0 {
		adminLimit = DefaultToolCallLimit
	}
	return AgentSet{
		Supervisor: AgentSettings{
			Name: AgentSupervisor, Model: c.Supervisor.Model, MaxTokens: c.Supervisor.MaxTokens,
			Temperature: c.Supervisor.Temperature, SystemPrompt: c.Supervisor.SystemPrompt,
		},
		Technical: AgentSettings{
			Name: AgentTechnical, Model: c.Technical.Model, MaxTokens: c.Technical.MaxTokens,
			Temperature: c.Technical.Temperature, SystemPrompt: c.Technical.SystemPrompt,
			ToolCallLimit: c.Technical.ToolCallLimit,
		},
		Billing: AgentSettings{
			Name: AgentBilling, Model: c.Billing.Model, MaxTokens: c.Billing.MaxTokens,
			Temperature: c.Billing.Temperature, SystemPrompt: c.Billing.SystemPrompt,
			ToolCallLimit: c.Billing.ToolCallLimit,
		},
		Administration: AgentSettings{
			Name: AgentAdministration, Model: c.Administration.Model, MaxTokens: c.Administration.MaxTokens,
			Temperature: c.Administration.Temperature, SystemPrompt: c.Administration.SystemPrompt,
			ToolCallLimit: adminLimit,
		},
		Assessment: AgentSettings{
			Name: AgentAssessment, Model: c.Assessment.Model, MaxTokens: c.Assessment.MaxTokens,
			Temperature: c.Assessment.Temperature, SystemPrompt: c.Assessment.SystemPrompt,
		},
	}
}

// ByName returns a pointer to the named agent's settings, or nil.
func (s *AgentSet) ByName(name string) *AgentSettings {
	switch name {
	case AgentSupervisor:
		return &s.Supervisor
	case AgentTechnical:
		return &s.Technical
	case AgentBilling:
		return &s.Billing
	case AgentAdministration:
		return &s.Administration
	case AgentAssessment:
		return &s.Assessment
	}
	return nil
}

// ToolCallLimits returns the per-agent ceilings copied into each run's state.
func (s AgentSet) ToolCallLimits() map[string]int {
	return map[string]int{
		AgentTechnical:      s.Technical.ToolCallLimit,
		AgentBilling:        s.Billing.ToolCallLimit,
		AgentAdministration: s.Administration.ToolCallLimit,
	}
}

// Validate checks the values that came from the environment or agents file.
func (s AgentSet) Validate() error {
	for _, a := range []AgentSettings{s.Supervisor, s.Technical, s.Billing, s.Administration, s.Assessment} {
		if a.Model == "" {
			return fmt.Errorf("agent %s: model is required", a.Name)
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			return fmt.Errorf("agent %s: temperature %.2f out of range [0,2]", a.Name, a.Temperature)
		}
		if a.ToolCallLimit < 0 {
			return fmt.Errorf("agent %s: tool call limit must not be negative", a.Name)
		}
		if a.MaxTokens < 0 {
			return fmt.Errorf("agent %s: max tokens must not be negative", a.Name)
		}
	}
	if s.Administration.ToolCallLimit == 0 {
		return fmt.Errorf("agent %s: tool call limit must be bounded", AgentAdministration)
	}
	return nil
}

type ReviewConfig struct {
	AdminQuestion   string `envconfig:"REVIEW_ADMIN_QUESTION" default:"Do you want to proceed with this administrative action?"`
	GenericQuestion string `envconfig:"REVIEW_GENERIC_QUESTION" default:"Please review the proposed response. Approve it or reply with the corrected answer."`
}

type A2AConfig struct {
	Host          string `envconfig:"A2A_SERVER_HOST" default:"127.0.0.1"`
	Port          int    `envconfig:"A2A_SERVER_PORT" default:"9999"`
	AdminAgentKey string `envconfig:"A2A_ADMIN_AGENT_KEY"`
	Timeout       string `envconfig:"A2A_TIMEOUT" default:"30s"`
}

// BaseURL is the admin agent's root URL.
func (c A2AConfig) BaseURL() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type MCPConfig struct {
	ServerURI string `envconfig:"MCP_SERVER_URI"`
	Timeout   string `envconfig:"MCP_TIMEOUT" default:"15s"`
}

type KnowledgeBaseConfig struct {
	TopK      int    `envconfig:"KB_TOP_K" default:"3"`
	CacheSize int    `envconfig:"KB_CACHE_SIZE" default:"256"`
	CacheTTL  string `envconfig:"KB_CACHE_TTL" default:"5m"`
}
