package parsers

import (
	"strings"

	"github.com/Chative-triage/server/internal/agent/model"
)

type rawAssessment struct {
	ConfidenceScore     any `json:"confidence_score"`
	RiskLevel           any `json:"risk_level"`
	ComplianceRisks     any `json:"compliance_risks"`
	RequiresHumanReview any `json:"requires_human_review"`
	Reasoning           any `json:"reasoning"`
}

// ParseAssessment turns assessor output into a validated Assessment.
func ParseAssessment(content string) (*model.Assessment, error) {
	var raw rawAssessment
	if err := decodeObject(content, &raw); err != nil {
		return nil, err
	}

	score, err := asFloat(raw.ConfidenceScore, "confidence_score")
	if err != nil {
		return nil, err
	}
	if err := inUnitRange(score, "confidence_score"); err != nil {
		return nil, err
	}

	risk := model.RiskLevel(strings.ToLower(asString(raw.RiskLevel)))
	if !risk.Valid() {
		return nil, malformed("unknown risk_level %q", snippet(string(risk)))
	}

	review, err := asBool(raw.RequiresHumanReview, "requires_human_review")
	if err != nil {
		return nil, err
	}

	compliance := raw.ComplianceRisks
	if list, ok := compliance.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, it := range list {
			if s := asString(it); s != "" {
				parts = append(parts, s)
			}
		}
		compliance = strings.Join(parts, "; ")
	}

	return &model.Assessment{
		ConfidenceScore:     score,
		RiskLevel:           risk,
		ComplianceRisks:     asString(compliance),
		RequiresHumanReview: review,
		Reasoning:           asString(raw.Reasoning),
	}, nil
}
