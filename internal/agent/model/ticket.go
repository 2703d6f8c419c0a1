package model

import "strings"

// Category is the classifier's routing label for a ticket.
type Category string

const (
	CategoryTechnical      Category = "technical"
	CategoryBilling        Category = "billing"
	CategoryAdministration Category = "administration"
	CategoryUnclassifiable Category = "unclassifiable"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTechnical, CategoryBilling, CategoryAdministration, CategoryUnclassifiable:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Ticket is the classified representation of one customer request.
type Ticket struct {
	TicketID           string   `json:"ticket_id,omitempty"`
	Category           Category `json:"category"`
	Priority           Priority `json:"priority"`
	Subject            string   `json:"subject"`
	InitialDescription string   `json:"initial_description"`
	Keywords           []string `json:"keywords"`
}

// TicketClassification is the structured output of the classifier.
type TicketClassification struct {
	Category         Category `json:"category"`
	Priority         Priority `json:"priority"`
	Intent           string   `json:"intent"`
	Keywords         []string `json:"keywords"`
	Confidence       float64  `json:"confidence"`
	NeedsHumanReview bool     `json:"needs_human_review"`
}

// FallbackClassification is substituted whenever the classifier cannot
// produce a usable result.
func FallbackClassification() TicketClassification {
	return TicketClassification{
		Category:         CategoryUnclassifiable,
		Priority:         PriorityLow,
		Intent:           "Unable to classify due to system error",
		Keywords:         []string{},
		Confidence:       0.0,
		NeedsHumanReview: false,
	}
}

// Subject returns the trimmed intent, or a placeholder when it is blank.
func (c TicketClassification) Subject() string {
	if s := strings.TrimSpace(c.Intent); s != "" {
		return s
	}
	return "Unknown intent"
}

// Assessment is the structured output of the assessor.
type Assessment struct {
	ConfidenceScore     float64   `json:"confidence_score"`
	RiskLevel           RiskLevel `json:"risk_level"`
	ComplianceRisks     string    `json:"compliance_risks"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	Reasoning           string    `json:"reasoning"`
}

// AgentContext is one audit-log entry contributed by a single stage execution.
type AgentContext struct {
	AgentName           string    `json:"agent_name"`
	ConfidenceScore     float64   `json:"confidence_score"`
	Reasoning           string    `json:"reasoning"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	RiskLevel           RiskLevel `json:"risk_level"`
}
