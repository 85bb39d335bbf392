package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/healflow/console-engine/internal/models"
)

// StageObserver receives every stage transition in the exact order it is
// applied: pending -> active -> complete per stage, stages in pipeline order.
type StageObserver func(processID string, stage models.Stage, status models.StageStatus)

// process wraps the externally visible process state with the transition
// guard and the resume channel used at the approval suspension point.
type process struct {
	mu       sync.Mutex
	state    models.Process
	signal   models.Signal
	resume   chan models.HILDecision
	observer StageObserver
}

func newProcess(id string, signal models.Signal, observer StageObserver) *process {
	now := time.Now().UTC()
	return &process{
		state: models.Process{
			ID:               id,
			SignalID:         signal.ID,
			ObserveStatus:    models.StagePending,
			OrientStatus:     models.StagePending,
			DecideStatus:     models.StagePending,
			ActStatus:        models.StagePending,
			Outcome:          models.OutcomeRunning,
			StartedAt:        now,
			LastTransitionAt: now,
		},
		signal:   signal,
		resume:   make(chan models.HILDecision, 1),
		observer: observer,
	}
}

// transition applies one stage status change, enforcing monotonicity: a
// stage never regresses and a stage cannot activate before every earlier
// stage is complete.
func (p *process) transition(stage models.Stage, status models.StageStatus) error {
	p.mu.Lock()

	current := p.state.StageStatusOf(stage)
	if err := validateTransition(current, status); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("process %s stage %s: %w", p.state.ID, stage, err)
	}
	if status == models.StageActive {
		for _, earlier := range models.StageOrder() {
			if earlier == stage {
				break
			}
			if p.state.StageStatusOf(earlier) != models.StageComplete {
				p.mu.Unlock()
				return fmt.Errorf("process %s: stage %s cannot activate before %s completes", p.state.ID, stage, earlier)
			}
		}
	}

	p.setStage(stage, status)
	p.state.LastTransitionAt = time.Now().UTC()
	processID := p.state.ID
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(processID, stage, status)
	}
	return nil
}

func validateTransition(current, next models.StageStatus) error {
	switch {
	case current == models.StagePending && next == models.StageActive:
		return nil
	case current == models.StageActive && next == models.StageComplete:
		return nil
	}
	return fmt.Errorf("invalid transition %s -> %s", current, next)
}

func (p *process) setStage(stage models.Stage, status models.StageStatus) {
	switch stage {
	case models.StageObserve:
		p.state.ObserveStatus = status
	case models.StageOrient:
		p.state.OrientStatus = status
	case models.StageDecide:
		p.state.DecideStatus = status
	case models.StageAct:
		p.state.ActStatus = status
	}
}

func (p *process) setObservations(findings []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ObserveFindings = append(p.state.ObserveFindings, findings...)
}

func (p *process) setOrientation(result OrientResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.OrientContext = result.Context
	p.state.OrientRelated = append(p.state.OrientRelated, result.RelatedIncidents...)
}

func (p *process) setDecision(chain []string, solution models.ProposedSolution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.DecideChainOfThought = append(p.state.DecideChainOfThought, chain...)
	p.state.ProposedSolution = &solution
}

func (p *process) appendThought(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.DecideChainOfThought = append(p.state.DecideChainOfThought, line)
}

func (p *process) setActions(actions []models.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ActionsTaken = append(p.state.ActionsTaken, actions...)
}

func (p *process) setOutcome(outcome models.ProcessOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Outcome = outcome
	if outcome == models.OutcomeResolved || outcome == models.OutcomeCancelled {
		p.state.CompletedAt = time.Now().UTC()
	}
}

func (p *process) setStepError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.StepError = err.Error()
}

func (p *process) markStalled() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Stalled = true
}

// snapshot returns a deep copy safe to hand to other goroutines.
func (p *process) snapshot() models.Process {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.state
	state.ObserveFindings = append([]string(nil), p.state.ObserveFindings...)
	state.OrientRelated = append([]string(nil), p.state.OrientRelated...)
	state.DecideChainOfThought = append([]string(nil), p.state.DecideChainOfThought...)
	state.ActionsTaken = append([]models.Action(nil), p.state.ActionsTaken...)
	if p.state.ProposedSolution != nil {
		solution := *p.state.ProposedSolution
		state.ProposedSolution = &solution
	}
	return state
}
