package models

import "time"

// HILDecision is the operator verdict on a pending approval request.
type HILDecision string

const (
	DecisionApproved HILDecision = "approved"
	DecisionRejected HILDecision = "rejected"
)

// HILStatus tracks the lifecycle of an approval request. Resolution is
// terminal and exactly-once.
type HILStatus string

const (
	HILPending  HILStatus = "pending"
	HILApproved HILStatus = "approved"
	HILRejected HILStatus = "rejected"
)

// RequestOrigin tags where an approval request was issued. Local requests
// belong to this console's orchestrator; backend requests are reconciled
// through the synchronization loop and resolved upstream.
type RequestOrigin string

const (
	OriginLocal   RequestOrigin = "local"
	OriginBackend RequestOrigin = "backend"
)

// HILMetrics carries the impact estimates shown to the approving operator.
type HILMetrics struct {
	Confidence    int
	RevenueAtRisk float64
	ImpactScope   string
}

// HILRequest is a pending human approval gate instance. Exactly one may be
// pending per process at a time.
type HILRequest struct {
	ID             string
	ProcessID      string
	SignalID       string
	Title          string
	ProposedAction ProposedSolution
	RiskLevel      RiskLevel
	Metrics        HILMetrics
	Origin         RequestOrigin
	Status         HILStatus
	Notes          string
	CreatedAt      time.Time
}
