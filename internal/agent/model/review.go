package model

// ReviewPhase tracks the human review gate state machine.
type ReviewPhase string

const (
	ReviewAwaitingTrigger ReviewPhase = "awaiting_trigger"
	ReviewSuspended       ReviewPhase = "suspended"
	ReviewResumed         ReviewPhase = "resumed"
	ReviewRetry           ReviewPhase = "retry"
	ReviewDone            ReviewPhase = "done"
)

// ReviewRequest is the suspend payload exposed to the external caller.
type ReviewRequest struct {
	Question string `json:"question"`
	Details  string `json:"details"`
}

// ReviewDecision is the resume payload supplied by the external caller.
type ReviewDecision struct {
	Decision string `json:"decision"`
}

// DecisionKind is how a free-text decision was interpreted.
type DecisionKind string

const (
	DecisionConfirmed      DecisionKind = "confirmed"
	DecisionCancelled      DecisionKind = "cancelled"
	DecisionAdditionalInfo DecisionKind = "additional_info"
)
