package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-triage/server/internal/agent/model"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func baseSet() model.AgentSet {
	return model.AgentsConfig{
		Supervisor:     model.SupervisorModelConfig{Model: "gemini-2.5-flash"},
		Technical:      model.TechnicalModelConfig{Model: "gemini-2.5-flash", Temperature: 0.1},
		Billing:        model.BillingModelConfig{Model: "gemini-2.5-flash", Temperature: 0.3},
		Administration: model.AdministrationModelConfig{Model: "gemini-2.5-flash-lite", ToolCallLimit: 1},
		Assessment:     model.AssessmentModelConfig{Model: "gemini-2.5-flash"},
	}.Settings()
}

func TestLoadAndApplyAgentsFile(t *testing.T) {
	p := writeFile(t, `
version: v1
agents:
  technical:
    model: gemini-2.5-pro
    temperature: 0.2
    tool_call_limit: 3
    system_prompt: |
      You are the technical desk.
  administration:
    max_tokens: 512
review:
  admin_question: Proceed with the account change?
`)

	f, err := LoadAgentsFile(p)
	require.NoError(t, err)

	set := baseSet()
	review := model.ReviewConfig{AdminQuestion: "default", GenericQuestion: "generic"}
	f.Apply(&set, &review)

	assert.Equal(t, "gemini-2.5-pro", set.Technical.Model)
	assert.InDelta(t, 0.2, set.Technical.Temperature, 1e-6)
	assert.Equal(t, 3, set.Technical.ToolCallLimit)
	assert.Equal(t, "You are the technical desk.\n", set.Technical.SystemPrompt)
	assert.Equal(t, 512, set.Administration.MaxTokens)
	assert.Equal(t, 1, set.Administration.ToolCallLimit, "unset fields keep env values")
	assert.InDelta(t, 0.3, set.Billing.Temperature, 1e-6)
	assert.Equal(t, "Proceed with the account change?", review.AdminQuestion)
	assert.Equal(t, "generic", review.GenericQuestion)
	require.NoError(t, set.Validate())
}

func TestAgentsFileValidation(t *testing.T) {
	cases := map[string]string{
		"unknown agent": "agents:\n  marketing:\n    model: x\n",
		"bad version":   "version: v9\n",
		"temperature":   "agents:\n  billing:\n    temperature: 5\n",
		"negative":      "agents:\n  billing:\n    tool_call_limit: -1\n",
		"empty model":   "agents:\n  billing:\n    model: \"  \"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadAgentsFile(writeFile(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadAgentsFileMissing(t *testing.T) {
	_, err := LoadAgentsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
