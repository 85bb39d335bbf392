package models

import "time"

// Severity classifies the impact of an ingested signal.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarn     Severity = "WARN"
	SeverityInfo     Severity = "INFO"
	SeveritySystem   Severity = "SYSTEM"
)

// KnownSeverities lists every accepted severity value.
func KnownSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityError, SeverityWarn, SeverityInfo, SeveritySystem}
}

// SignalStatus tracks the signal lifecycle. A signal transitions
// active -> resolved exactly once.
type SignalStatus string

const (
	SignalActive   SignalStatus = "active"
	SignalResolved SignalStatus = "resolved"
)

// Signal is an observed anomaly requiring triage.
type Signal struct {
	ID        string
	Type      string
	Severity  Severity
	Source    string
	Endpoint  string
	EntityID  string
	Metadata  map[string]any
	Status    SignalStatus
	CreatedAt time.Time
}

// AgentStatus tracks whether a diagnostic agent is working a signal.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentProcessing AgentStatus = "processing"
)

// Agent describes a backend diagnostic agent. Agents are read-only here;
// the synchronization loop refreshes them from the backend.
type Agent struct {
	ID                  string
	Name                string
	Type                string
	Status              AgentStatus
	CurrentTaskSignalID string
	CurrentTaskStage    string
	CurrentTaskProgress int
}
