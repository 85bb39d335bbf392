package gate

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healflow/console-engine/internal/models"
)

var (
	// ErrNotFound signals an unknown approval request id.
	ErrNotFound = errors.New("hil request not found")
	// ErrAlreadyResolved signals a second resolution attempt; the first
	// decision stands and the caller has a bug or lost a race.
	ErrAlreadyResolved = errors.New("hil request already resolved")
	// ErrDuplicatePending signals an attempt to register a second pending
	// request for a process that already has one.
	ErrDuplicatePending = errors.New("process already has a pending hil request")
)

// Gate holds pending human approval requests keyed by request id. It is a
// registry only: resuming or cancelling the owning process is the
// orchestrator's job once Resolve succeeds.
type Gate struct {
	mu        sync.Mutex
	pending   map[string]models.HILRequest
	byProcess map[string]string
	resolved  map[string]models.HILDecision
}

// New constructs an empty gate.
func New() *Gate {
	return &Gate{
		pending:   make(map[string]models.HILRequest),
		byProcess: make(map[string]string),
		resolved:  make(map[string]models.HILDecision),
	}
}

// Register creates a pending request for the process's proposed solution.
// Fails with ErrDuplicatePending when the process already has one pending.
func (g *Gate) Register(process models.Process, signal models.Signal) (models.HILRequest, error) {
	if process.ProposedSolution == nil {
		return models.HILRequest{}, fmt.Errorf("process %s has no proposed solution", process.ID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.byProcess[process.ID]; exists {
		return models.HILRequest{}, ErrDuplicatePending
	}

	request := models.HILRequest{
		ID:             uuid.NewString(),
		ProcessID:      process.ID,
		SignalID:       signal.ID,
		Title:          fmt.Sprintf("Approve High-Risk Fix: %s", signal.Type),
		ProposedAction: *process.ProposedSolution,
		RiskLevel:      process.ProposedSolution.RiskLevel,
		Metrics:        metricsFor(signal, *process.ProposedSolution),
		Origin:         models.OriginLocal,
		Status:         models.HILPending,
		CreatedAt:      time.Now().UTC(),
	}

	g.pending[request.ID] = request
	g.byProcess[process.ID] = request.ID
	return request, nil
}

// Resolve applies an operator decision exactly once. A second call for the
// same id fails with ErrAlreadyResolved and leaves the first decision
// untouched; an unknown id fails with ErrNotFound.
func (g *Gate) Resolve(id string, decision models.HILDecision, notes string) (models.HILRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	request, ok := g.pending[id]
	if !ok {
		if _, done := g.resolved[id]; done {
			return models.HILRequest{}, ErrAlreadyResolved
		}
		return models.HILRequest{}, ErrNotFound
	}

	switch decision {
	case models.DecisionApproved:
		request.Status = models.HILApproved
	case models.DecisionRejected:
		request.Status = models.HILRejected
	default:
		return models.HILRequest{}, fmt.Errorf("unknown decision %q", decision)
	}
	request.Notes = notes

	delete(g.pending, id)
	delete(g.byProcess, request.ProcessID)
	g.resolved[id] = decision
	return request, nil
}

// Get returns a pending request by id.
func (g *Gate) Get(id string) (models.HILRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	request, ok := g.pending[id]
	return request, ok
}

// Pending lists pending requests, newest first.
func (g *Gate) Pending() []models.HILRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	requests := make([]models.HILRequest, 0, len(g.pending))
	for _, request := range g.pending {
		requests = append(requests, request)
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests
}

func metricsFor(signal models.Signal, solution models.ProposedSolution) models.HILMetrics {
	metrics := models.HILMetrics{
		Confidence:  solution.Confidence,
		ImpactScope: "standard",
	}
	if signal.Severity == models.SeverityCritical {
		metrics.ImpactScope = "critical_path"
	}
	if raw, ok := signal.Metadata["revenue_at_risk"]; ok {
		switch v := raw.(type) {
		case float64:
			metrics.RevenueAtRisk = v
		case int:
			metrics.RevenueAtRisk = float64(v)
		}
	}
	return metrics
}
