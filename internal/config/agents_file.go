package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Chative-triage/server/internal/agent/model"
)

const agentsFileVersion = "v1"

// AgentOverride carries optional per-agent settings. Nil fields keep the
// value that came from the environment.
type AgentOverride struct {
	Model         *string  `yaml:"model"`
	MaxTokens     *int     `yaml:"max_tokens"`
	Temperature   *float32 `yaml:"temperature"`
	SystemPrompt  *string  `yaml:"system_prompt"`
	ToolCallLimit *int     `yaml:"tool_call_limit"`
}

type ReviewOverride struct {
	AdminQuestion   string `yaml:"admin_question"`
	GenericQuestion string `yaml:"generic_question"`
}

// AgentsFile is the optional YAML overlay for per-agent configuration.
type AgentsFile struct {
	Version string                   `yaml:"version"`
	Agents  map[string]AgentOverride `yaml:"agents"`
	Review  ReviewOverride           `yaml:"review"`
}

// LoadAgentsFile loads and validates an agents overlay file using Koanf.
func LoadAgentsFile(filepath string) (*AgentsFile, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load agents config from %q: %w", filepath, err)
	}

	var cfg AgentsFile
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse agents config from %q: %w", filepath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agents config validation failed for %q: %w", filepath, err)
	}

	return &cfg, nil
}

// Validate checks version, agent names and value ranges.
func (f *AgentsFile) Validate() error {
	if f.Version != "" && f.Version != agentsFileVersion {
		return fmt.Errorf("unsupported version %q (expected %q)", f.Version, agentsFileVersion)
	}
	var probe model.AgentSet
	for name, o := range f.Agents {
		if probe.ByName(name) == nil {
			return fmt.Errorf("unknown agent %q", name)
		}
		if o.Model != nil && strings.TrimSpace(*o.Model) == "" {
			return fmt.Errorf("agent %s: model must not be empty", name)
		}
		if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
			return fmt.Errorf("agent %s: temperature %.2f out of range [0,2]", name, *o.Temperature)
		}
		if o.ToolCallLimit != nil && *o.ToolCallLimit < 0 {
			return fmt.Errorf("agent %s: tool_call_limit must not be negative", name)
		}
		if o.MaxTokens != nil && *o.MaxTokens <= 0 {
			return fmt.Errorf("agent %s: max_tokens must be positive", name)
		}
	}
	return nil
}

// Apply overlays the file onto env-derived settings.
func (f *AgentsFile) Apply(set *model.AgentSet, review *model.ReviewConfig) {
	for name, o := range f.Agents {
		a := set.ByName(name)
		if a == nil {
			continue
		}
		if o.Model != nil {
			a.Model = strings.TrimSpace(*o.Model)
		}
		if o.MaxTokens != nil {
			a.MaxTokens = *o.MaxTokens
		}
		if o.Temperature != nil {
			a.Temperature = *o.Temperature
		}
		if o.SystemPrompt != nil {
			a.SystemPrompt = *o.SystemPrompt
		}
		if o.ToolCallLimit != nil {
			a.ToolCallLimit = *o.ToolCallLimit
		}
	}
	if review == nil {
		return
	}
	if q := strings.TrimSpace(f.Review.AdminQuestion); q != "" {
		review.AdminQuestion = q
	}
	if q := strings.TrimSpace(f.Review.GenericQuestion); q != "" {
		review.GenericQuestion = q
	}
}
