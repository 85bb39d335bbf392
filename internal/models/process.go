package models

import "time"

// Stage names one step of the observe-orient-decide-act pipeline.
type Stage string

const (
	StageObserve Stage = "observe"
	StageOrient  Stage = "orient"
	StageDecide  Stage = "decide"
	StageAct     Stage = "act"
)

// StageOrder returns the pipeline stages in execution order.
func StageOrder() []Stage {
	return []Stage{StageObserve, StageOrient, StageDecide, StageAct}
}

// StageStatus tracks progress of a single stage. Statuses are monotonic:
// pending -> active -> complete, never backwards.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageActive   StageStatus = "active"
	StageComplete StageStatus = "complete"
)

// RiskLevel grades a proposed remediation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ProposedSolution is the remedy produced by the decide stage.
type ProposedSolution struct {
	Type        string
	Description string
	Confidence  int
	RiskLevel   RiskLevel
}

// Action records a remediation step applied during the act stage.
type Action struct {
	Type        string
	Description string
}

// ProcessOutcome summarises where a process sits in its lifecycle.
type ProcessOutcome string

const (
	OutcomeRunning          ProcessOutcome = "running"
	OutcomeAwaitingApproval ProcessOutcome = "awaiting_approval"
	OutcomeResolved         ProcessOutcome = "resolved"
	OutcomeCancelled        ProcessOutcome = "cancelled"
)

// Process is the staged execution of one signal. Findings and the chain of
// thought are append-only; stage statuses never regress.
type Process struct {
	ID       string
	SignalID string
	AgentID  string

	ObserveStatus StageStatus
	OrientStatus  StageStatus
	DecideStatus  StageStatus
	ActStatus     StageStatus

	ObserveFindings      []string
	OrientContext        string
	OrientRelated        []string
	DecideChainOfThought []string
	ProposedSolution     *ProposedSolution
	ActionsTaken         []Action

	Outcome          ProcessOutcome
	Stalled          bool
	StepError        string
	StartedAt        time.Time
	LastTransitionAt time.Time
	CompletedAt      time.Time
}

// StageStatusOf returns the status of the named stage.
func (p Process) StageStatusOf(stage Stage) StageStatus {
	switch stage {
	case StageObserve:
		return p.ObserveStatus
	case StageOrient:
		return p.OrientStatus
	case StageDecide:
		return p.DecideStatus
	case StageAct:
		return p.ActStatus
	}
	return ""
}

// Terminal reports whether the process has released ownership of its signal.
func (p Process) Terminal() bool {
	return p.Outcome == OutcomeResolved || p.Outcome == OutcomeCancelled
}
