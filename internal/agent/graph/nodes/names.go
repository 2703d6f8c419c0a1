package nodes

// Graph node keys. They double as stage names in transitions and metrics.
const (
	NodeIngress         = "ingress"
	NodeSupervisor      = "supervisor"
	NodeTechnical       = "technical"
	NodeTechnicalTools  = "technical_tools"
	NodeBilling         = "billing"
	NodeBillingTools    = "billing_tools"
	NodeAdministration  = "administration"
	NodeAdminTools      = "admin_tools"
	NodeAssessment      = "assessment"
	NodeHumanReview     = "human_review"
	NodeProcessFeedback = "process_feedback"
)

// Router outcomes.
const (
	RouteHumanReview = "human_review"
	RouteDone        = "done"
)

// Router policy constants.
const (
	ReviewConfidenceThreshold = 0.6
	LowConfidenceThreshold    = 0.5
)
