package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healflow/console-engine/internal/gate"
	"github.com/healflow/console-engine/internal/metrics"
	"github.com/healflow/console-engine/internal/models"
	"github.com/healflow/console-engine/internal/notify"
	"github.com/healflow/console-engine/internal/utils"
)

// ErrSignalBusy signals that a signal already has a non-terminal process.
var ErrSignalBusy = errors.New("signal already has an active process")

// CompletionSink receives terminal process outcomes so the owning signal can
// be resolved upstream and the local snapshot updated.
type CompletionSink interface {
	ProcessCompleted(ctx context.Context, signalID string)
	ProcessCancelled(ctx context.Context, signalID string)
}

// Orchestrator owns every OODA process in this session. It is the only
// mutator of process and local approval state; each process runs its stages
// strictly sequentially on its own goroutine.
type Orchestrator struct {
	logger        *slog.Logger
	runner        StageRunner
	risk          *RiskPack
	gate          *gate.Gate
	notifications *notify.Queue
	sink          CompletionSink
	latencies     *utils.LatencyTracker
	observer      StageObserver

	mu        sync.Mutex
	processes map[string]*process
	bySignal  map[string]string
	requests  map[string]string
}

// NewOrchestrator constructs the orchestration core.
func NewOrchestrator(
	logger *slog.Logger,
	runner StageRunner,
	risk *RiskPack,
	approvalGate *gate.Gate,
	notifications *notify.Queue,
	sink CompletionSink,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewDefaultStageRunner()
	}
	if risk == nil {
		risk = DefaultRiskPack(logger)
	}
	return &Orchestrator{
		logger:        logger,
		runner:        runner,
		risk:          risk,
		gate:          approvalGate,
		notifications: notifications,
		sink:          sink,
		latencies:     utils.NewLatencyTracker(1024),
		processes:     make(map[string]*process),
		bySignal:      make(map[string]string),
		requests:      make(map[string]string),
	}
}

// SetStageObserver installs a transition observer. Must be called before any
// process starts.
func (o *Orchestrator) SetStageObserver(observer StageObserver) {
	o.observer = observer
}

// SetCompletionSink installs the terminal-outcome receiver. The sink depends
// on the orchestrator, so it is attached after construction. Must be called
// before any process starts.
func (o *Orchestrator) SetCompletionSink(sink CompletionSink) {
	o.sink = sink
}

// StartProcess creates a process for the signal and begins advancing it.
// One active process per signal at a time.
func (o *Orchestrator) StartProcess(ctx context.Context, signal models.Signal) (models.Process, error) {
	if signal.ID == "" {
		return models.Process{}, fmt.Errorf("signal id is required")
	}

	o.mu.Lock()
	if existingID, ok := o.bySignal[signal.ID]; ok {
		if existing, tracked := o.processes[existingID]; tracked && !existing.snapshot().Terminal() {
			o.mu.Unlock()
			return models.Process{}, ErrSignalBusy
		}
	}
	p := newProcess(uuid.NewString(), signal, o.observer)
	o.processes[p.state.ID] = p
	o.bySignal[signal.ID] = p.state.ID
	o.mu.Unlock()

	o.logger.Info("process started",
		slog.String("process_id", p.state.ID),
		slog.String("signal_id", signal.ID),
		slog.String("signal_type", signal.Type))

	go o.run(ctx, p)
	return p.snapshot(), nil
}

// Approve resolves a pending local approval request and resumes the owning
// process at the act stage.
func (o *Orchestrator) Approve(ctx context.Context, requestID, notes string) error {
	return o.resolveRequest(ctx, requestID, models.DecisionApproved, notes)
}

// Reject resolves a pending local approval request and cancels the owning
// process. The signal is not resolved; the operator addresses it out of band.
func (o *Orchestrator) Reject(ctx context.Context, requestID, notes string) error {
	return o.resolveRequest(ctx, requestID, models.DecisionRejected, notes)
}

func (o *Orchestrator) resolveRequest(_ context.Context, requestID string, decision models.HILDecision, notes string) error {
	request, err := o.gate.Resolve(requestID, decision, notes)
	if err != nil {
		return err
	}
	metrics.ObserveHILResolution(string(decision))

	o.mu.Lock()
	processID := o.requests[requestID]
	delete(o.requests, requestID)
	p := o.processes[processID]
	o.mu.Unlock()

	if p == nil {
		// Gate accepted the resolution but the process is gone; only
		// possible if the session is shutting down.
		o.logger.Warn("resolved request has no live process", slog.String("request_id", requestID))
		return nil
	}

	o.logger.Info("hil request resolved",
		slog.String("request_id", requestID),
		slog.String("process_id", processID),
		slog.String("signal_id", request.SignalID),
		slog.String("decision", string(decision)))

	select {
	case p.resume <- decision:
	default:
		o.logger.Warn("process not waiting on resume", slog.String("process_id", processID))
	}
	return nil
}

// Processes lists every tracked process, newest first.
func (o *Orchestrator) Processes() []models.Process {
	o.mu.Lock()
	tracked := make([]*process, 0, len(o.processes))
	for _, p := range o.processes {
		tracked = append(tracked, p)
	}
	o.mu.Unlock()

	snapshots := make([]models.Process, 0, len(tracked))
	for _, p := range tracked {
		snapshots = append(snapshots, p.snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.After(snapshots[j].StartedAt)
	})
	return snapshots
}

// Process returns one process by id.
func (o *Orchestrator) Process(id string) (models.Process, bool) {
	o.mu.Lock()
	p, ok := o.processes[id]
	o.mu.Unlock()
	if !ok {
		return models.Process{}, false
	}
	return p.snapshot(), true
}

// ActiveSignalIDs reports the signals currently owned by a non-terminal
// process. The synchronization loop must not clobber local state for these.
func (o *Orchestrator) ActiveSignalIDs() map[string]struct{} {
	o.mu.Lock()
	tracked := make(map[string]*process, len(o.bySignal))
	for signalID, processID := range o.bySignal {
		if p, ok := o.processes[processID]; ok {
			tracked[signalID] = p
		}
	}
	o.mu.Unlock()

	active := make(map[string]struct{}, len(tracked))
	for signalID, p := range tracked {
		if !p.snapshot().Terminal() {
			active[signalID] = struct{}{}
		}
	}
	return active
}

// MarkStalled flags a process as stalled for the operator view.
func (o *Orchestrator) MarkStalled(processID string) {
	o.mu.Lock()
	p, ok := o.processes[processID]
	o.mu.Unlock()
	if ok {
		p.markStalled()
	}
}

func (o *Orchestrator) run(ctx context.Context, p *process) {
	signal := p.signal

	findings, ok := runStage(o, p, models.StageObserve, func() ([]string, error) {
		return o.runner.Observe(ctx, signal)
	})
	if !ok {
		return
	}
	p.setObservations(findings)
	if err := p.transition(models.StageObserve, models.StageComplete); err != nil {
		o.logger.Error("stage transition rejected", slog.Any("error", err))
		return
	}

	orientation, ok := runStage(o, p, models.StageOrient, func() (OrientResult, error) {
		return o.runner.Orient(ctx, signal, findings)
	})
	if !ok {
		return
	}
	p.setOrientation(orientation)
	if err := p.transition(models.StageOrient, models.StageComplete); err != nil {
		o.logger.Error("stage transition rejected", slog.Any("error", err))
		return
	}

	decision, ok := runStage(o, p, models.StageDecide, func() (DecideResult, error) {
		return o.runner.Decide(ctx, signal, orientation)
	})
	if !ok {
		return
	}
	solution := decision.Solution
	solution.RiskLevel = o.risk.Classify(signal)
	p.setDecision(decision.ChainOfThought, solution)
	if solution.RiskLevel == models.RiskHigh {
		p.appendThought("RISK ASSESSMENT: HIGH - Requires Human Approval.")
	}
	if err := p.transition(models.StageDecide, models.StageComplete); err != nil {
		o.logger.Error("stage transition rejected", slog.Any("error", err))
		return
	}

	if solution.RiskLevel == models.RiskHigh {
		if !o.suspendForApproval(ctx, p, signal) {
			return
		}
	}

	actions, ok := runStage(o, p, models.StageAct, func() ([]models.Action, error) {
		return o.runner.Act(ctx, signal, solution)
	})
	if !ok {
		return
	}
	p.setActions(actions)
	if err := p.transition(models.StageAct, models.StageComplete); err != nil {
		o.logger.Error("stage transition rejected", slog.Any("error", err))
		return
	}

	p.setOutcome(models.OutcomeResolved)
	metrics.ObserveProcess(string(models.OutcomeResolved))
	if o.sink != nil {
		o.sink.ProcessCompleted(ctx, signal.ID)
	}
	if o.notifications != nil {
		o.notifications.Push(models.NotificationEvent{
			Category: models.NotifyInfo,
			Title:    fmt.Sprintf("Resolved: %s", signal.Type),
			SourceID: "process-resolved:" + p.state.ID,
		})
	}
	o.logger.Info("process resolved",
		slog.String("process_id", p.state.ID),
		slog.String("signal_id", signal.ID))
	o.reportLatency()
}

// suspendForApproval parks the process at the decide/act boundary until an
// operator decision arrives. Returns true when the process should proceed
// to act.
func (o *Orchestrator) suspendForApproval(ctx context.Context, p *process, signal models.Signal) bool {
	request, err := o.gate.Register(p.snapshot(), signal)
	if err != nil {
		o.failStage(p, models.StageDecide, signal, err)
		return false
	}

	o.mu.Lock()
	o.requests[request.ID] = p.state.ID
	o.mu.Unlock()

	p.setOutcome(models.OutcomeAwaitingApproval)
	if o.notifications != nil {
		o.notifications.Push(models.NotificationEvent{
			Category: models.NotifyHIL,
			Title:    request.Title,
			SourceID: "hil:" + request.ID,
		})
	}
	o.logger.Info("process awaiting approval",
		slog.String("process_id", p.state.ID),
		slog.String("request_id", request.ID))

	select {
	case decision := <-p.resume:
		if decision == models.DecisionApproved {
			p.setOutcome(models.OutcomeRunning)
			return true
		}
		p.setOutcome(models.OutcomeCancelled)
		metrics.ObserveProcess(string(models.OutcomeCancelled))
		if o.sink != nil {
			o.sink.ProcessCancelled(ctx, signal.ID)
		}
		o.logger.Info("process cancelled",
			slog.String("process_id", p.state.ID),
			slog.String("signal_id", signal.ID))
		return false
	case <-ctx.Done():
		return false
	}
}

// runStage activates a stage and invokes its step, recording the duration.
// On step failure the stage is left active and the failure surfaced as a
// stalled condition; there is no automatic retry.
func runStage[T any](o *Orchestrator, p *process, stage models.Stage, step func() (T, error)) (T, bool) {
	var zero T
	if err := p.transition(stage, models.StageActive); err != nil {
		o.logger.Error("stage transition rejected", slog.Any("error", err))
		return zero, false
	}

	start := time.Now()
	out, err := step()
	duration := time.Since(start)
	metrics.ObserveStage(string(stage), duration)
	o.latencies.Observe(duration)

	if err != nil {
		o.failStage(p, stage, p.signal, err)
		return zero, false
	}
	return out, true
}

// failStage records a step failure. The stage stays active so the stalled
// condition is visible; ownership of the signal is retained.
func (o *Orchestrator) failStage(p *process, stage models.Stage, signal models.Signal, err error) {
	p.setStepError(err)
	o.logger.Error("stage step failed",
		slog.String("process_id", p.state.ID),
		slog.String("signal_id", signal.ID),
		slog.String("stage", string(stage)),
		slog.Any("error", err))
	if o.notifications != nil {
		o.notifications.Push(models.NotificationEvent{
			Category: models.NotifyWarning,
			Title:    fmt.Sprintf("Process stalled at %s: %s", stage, signal.Type),
			SourceID: "process-stalled:" + p.state.ID,
		})
	}
}

func (o *Orchestrator) reportLatency() {
	if count := o.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := o.latencies.Percentile(95)
		o.logger.Info("stage step latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
}
