package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/healflow/console-engine/internal/metrics"
	"github.com/healflow/console-engine/internal/models"
	"github.com/healflow/console-engine/internal/notify"
	"github.com/healflow/console-engine/internal/severity"
	"github.com/healflow/console-engine/internal/utils"
)

// BackendReader is the backend surface the loop reads on every cycle, plus
// the status write used when a process resolves its signal.
type BackendReader interface {
	ListSignals(ctx context.Context, filters models.Filters) ([]models.Signal, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	ListHILRequests(ctx context.Context) ([]models.HILRequest, error)
	ListEntities(ctx context.Context) ([]models.Entity, error)
	UpdateSignalStatus(ctx context.Context, signalID string, status models.SignalStatus) error
}

// ProcessSource exposes the orchestrator's view needed for merging.
type ProcessSource interface {
	Processes() []models.Process
	ActiveSignalIDs() map[string]struct{}
}

// ApprovalSource exposes locally pending approval requests.
type ApprovalSource interface {
	Pending() []models.HILRequest
}

// Loop maintains the console's consistent local view. On a fixed cadence it
// fetches all backend sources concurrently, falls back per source to the
// previous cycle's result on failure, merges local in-flight state on top of
// the remote lists, and publishes the assembled snapshot atomically.
type Loop struct {
	logger        *slog.Logger
	backend       BackendReader
	processes     ProcessSource
	approvals     ApprovalSource
	notifications *notify.Queue
	interval      time.Duration

	snapshot atomic.Pointer[models.Snapshot]

	mu       sync.Mutex
	filters  models.Filters
	injected map[string]models.Signal
	resolved map[string]struct{}
}

// NewLoop constructs the synchronization loop with the initial filter set.
func NewLoop(
	logger *slog.Logger,
	backend BackendReader,
	processes ProcessSource,
	approvals ApprovalSource,
	notifications *notify.Queue,
	interval time.Duration,
	filters models.Filters,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if filters.TimeWindow == "" {
		filters = models.DefaultFilters()
	}
	return &Loop{
		logger:        logger,
		backend:       backend,
		processes:     processes,
		approvals:     approvals,
		notifications: notifications,
		interval:      interval,
		filters:       filters,
		injected:      make(map[string]models.Signal),
		resolved:      make(map[string]struct{}),
	}
}

// Run refreshes immediately and then on every tick until the context is
// cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.Refresh(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns the most recently published view. Before the first
// refresh completes it returns an empty snapshot carrying the current
// filters.
func (l *Loop) Snapshot() models.Snapshot {
	if current := l.snapshot.Load(); current != nil {
		return *current
	}
	return models.Snapshot{
		Filters:          l.Filters(),
		EntitySeverities: map[string]models.Tier{},
	}
}

// Filters returns the active operator filter set.
func (l *Loop) Filters() models.Filters {
	l.mu.Lock()
	defer l.mu.Unlock()
	filters := l.filters
	filters.Tiers = append([]models.EntityTier(nil), l.filters.Tiers...)
	return filters
}

// SetFilters replaces the operator filter set. The next cycle fetches with
// the new set; callers wanting immediate effect follow up with Refresh.
func (l *Loop) SetFilters(filters models.Filters) {
	l.mu.Lock()
	l.filters = filters
	l.mu.Unlock()
}

// TrackSignal registers a locally injected signal so it appears in the
// snapshot before the backend lists it.
func (l *Loop) TrackSignal(signal models.Signal) {
	if signal.ID == "" {
		return
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	l.injected[signal.ID] = signal
	l.mu.Unlock()
}

// ProcessCompleted resolves the owning signal: upstream best-effort, locally
// until the backend reflects the change.
func (l *Loop) ProcessCompleted(ctx context.Context, signalID string) {
	if l.backend != nil {
		if err := l.backend.UpdateSignalStatus(ctx, signalID, models.SignalResolved); err != nil {
			l.logger.Warn("signal status update failed",
				slog.String("signal_id", signalID),
				slog.Any("error", err))
		}
	}
	l.mu.Lock()
	l.resolved[signalID] = struct{}{}
	l.mu.Unlock()
}

// ProcessCancelled leaves the signal untouched; a rejected fix means the
// operator handles the signal out of band.
func (l *Loop) ProcessCancelled(_ context.Context, signalID string) {
	l.logger.Info("process cancelled, signal left active", slog.String("signal_id", signalID))
}

type fetchResult struct {
	signals  []models.Signal
	agents   []models.Agent
	requests []models.HILRequest
	entities []models.Entity
	failures map[string]error
}

// Refresh performs one full cycle: concurrent fetches, per-source fallback,
// merge, publish.
func (l *Loop) Refresh(ctx context.Context) {
	filters := l.Filters()
	result := l.fetchAll(ctx, filters)

	previous := l.snapshot.Load()
	failed := make([]string, 0, len(result.failures))
	for source, err := range result.failures {
		failed = append(failed, source)
		l.logger.Warn("refresh source failed, keeping previous result",
			slog.String("source", source),
			slog.Any("error", err))
	}
	if previous != nil {
		if _, ok := result.failures["signals"]; ok {
			result.signals = previous.Signals
		}
		if _, ok := result.failures["agents"]; ok {
			result.agents = previous.Agents
		}
		if _, ok := result.failures["hil_requests"]; ok {
			result.requests = remoteRequests(previous.HILRequests)
		}
		if _, ok := result.failures["entities"]; ok {
			result.entities = previous.Entities
		}
	}
	metrics.ObserveRefresh(failed)

	signals := l.mergeSignals(result.signals, filters)
	l.alertOnSignals(signals)

	requests := result.requests
	if l.approvals != nil {
		requests = append(l.approvals.Pending(), requests...)
	}

	var processes []models.Process
	if l.processes != nil {
		processes = l.processes.Processes()
	}

	next := models.Snapshot{
		Signals:          signals,
		Agents:           result.agents,
		Processes:        processes,
		HILRequests:      requests,
		Entities:         result.entities,
		EntitySeverities: severity.Aggregate(signals),
		Filters:          filters,
		RefreshedAt:      time.Now().UTC(),
	}
	if l.notifications != nil {
		next.Notifications = l.notifications.List()
	}
	l.snapshot.Store(&next)
}

func (l *Loop) fetchAll(ctx context.Context, filters models.Filters) fetchResult {
	result := fetchResult{failures: make(map[string]error)}
	if l.backend == nil {
		return result
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	fail := func(source string, err error) {
		mu.Lock()
		result.failures[source] = err
		mu.Unlock()
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		signals, err := l.backend.ListSignals(ctx, filters)
		if err != nil {
			fail("signals", err)
			return
		}
		result.signals = signals
	}()
	go func() {
		defer wg.Done()
		agents, err := l.backend.ListAgents(ctx)
		if err != nil {
			fail("agents", err)
			return
		}
		result.agents = agents
	}()
	go func() {
		defer wg.Done()
		requests, err := l.backend.ListHILRequests(ctx)
		if err != nil {
			fail("hil_requests", err)
			return
		}
		result.requests = requests
	}()
	go func() {
		defer wg.Done()
		entities, err := l.backend.ListEntities(ctx)
		if err != nil {
			fail("entities", err)
			return
		}
		result.entities = entities
	}()
	wg.Wait()
	return result
}

// mergeSignals layers local state over the remote list. Signals owned by a
// non-terminal process stay active regardless of what the backend reports;
// locally resolved signals show resolved until the backend catches up, at
// which point the override is dropped; injected signals not yet listed
// remotely are carried at the front until they age out of the time window.
func (l *Loop) mergeSignals(remote []models.Signal, filters models.Filters) []models.Signal {
	var active map[string]struct{}
	if l.processes != nil {
		active = l.processes.ActiveSignalIDs()
	}
	windowStart := time.Now().UTC().Add(-utils.WindowDuration(filters.TimeWindow))

	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make([]models.Signal, 0, len(remote)+len(l.injected))
	seen := make(map[string]struct{}, len(remote))
	for _, signal := range remote {
		seen[signal.ID] = struct{}{}
		delete(l.injected, signal.ID)

		if signal.Status == models.SignalResolved {
			delete(l.resolved, signal.ID)
		} else if _, done := l.resolved[signal.ID]; done {
			signal.Status = models.SignalResolved
		}
		if _, owned := active[signal.ID]; owned {
			signal.Status = models.SignalActive
		}
		merged = append(merged, signal)
	}

	carried := make([]models.Signal, 0, len(l.injected))
	for _, signal := range l.injected {
		if _, ok := seen[signal.ID]; ok {
			continue
		}
		if signal.CreatedAt.Before(windowStart) {
			delete(l.injected, signal.ID)
			continue
		}
		if _, done := l.resolved[signal.ID]; done {
			signal.Status = models.SignalResolved
		}
		carried = append(carried, signal)
	}
	if len(carried) == 0 {
		return merged
	}
	return append(carried, merged...)
}

// alertOnSignals queues notifications for active high-severity signals. The
// queue deduplicates by source id, so a signal alerts at most once.
func (l *Loop) alertOnSignals(signals []models.Signal) {
	if l.notifications == nil {
		return
	}
	for _, signal := range signals {
		if signal.Status != models.SignalActive {
			continue
		}
		var category models.NotificationCategory
		switch signal.Severity {
		case models.SeverityCritical:
			category = models.NotifyCritical
		case models.SeverityError, models.SeverityWarn:
			category = models.NotifyWarning
		default:
			continue
		}
		l.notifications.Push(models.NotificationEvent{
			Category: category,
			Title:    signal.Type,
			SourceID: "signal:" + signal.ID,
		})
	}
}

// remoteRequests strips locally originated requests from a previous
// snapshot's HIL list so the gate's current pending set is not duplicated.
func remoteRequests(requests []models.HILRequest) []models.HILRequest {
	remote := make([]models.HILRequest, 0, len(requests))
	for _, request := range requests {
		if request.Origin == models.OriginBackend {
			remote = append(remote, request)
		}
	}
	return remote
}
