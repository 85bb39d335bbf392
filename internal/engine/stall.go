package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/healflow/console-engine/internal/models"
	"github.com/healflow/console-engine/internal/notify"
)

// StallDetector periodically scans tracked processes and flags ones whose
// active stage has stopped making progress: either a step reported a
// failure, or no transition happened within the threshold. Flagged
// processes stay in their active stage; the operator decides what to do.
type StallDetector struct {
	logger        *slog.Logger
	orchestrator  *Orchestrator
	notifications *notify.Queue
	interval      time.Duration
	threshold     time.Duration
}

// NewStallDetector constructs a detector over the orchestrator's processes.
func NewStallDetector(logger *slog.Logger, orchestrator *Orchestrator, notifications *notify.Queue, interval, threshold time.Duration) *StallDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if threshold <= 0 {
		threshold = 30 * time.Second
	}
	return &StallDetector{
		logger:        logger,
		orchestrator:  orchestrator,
		notifications: notifications,
		interval:      interval,
		threshold:     threshold,
	}
}

// Run scans on a fixed cadence until the context is cancelled.
func (d *StallDetector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Scan(time.Now().UTC())
		case <-ctx.Done():
			return
		}
	}
}

// Scan flags stalled processes as of the supplied instant.
func (d *StallDetector) Scan(now time.Time) {
	for _, p := range d.orchestrator.Processes() {
		if p.Terminal() || p.Stalled || p.Outcome == models.OutcomeAwaitingApproval {
			continue
		}
		if !d.isStalled(p, now) {
			continue
		}

		d.orchestrator.MarkStalled(p.ID)
		d.logger.Warn("process stalled",
			slog.String("process_id", p.ID),
			slog.String("signal_id", p.SignalID),
			slog.String("stage", string(activeStage(p))))
		if d.notifications != nil {
			d.notifications.Push(models.NotificationEvent{
				Category: models.NotifyWarning,
				Title:    fmt.Sprintf("Process stalled at %s", activeStage(p)),
				SourceID: "process-stalled:" + p.ID,
			})
		}
	}
}

func (d *StallDetector) isStalled(p models.Process, now time.Time) bool {
	if p.StepError != "" {
		return true
	}
	if activeStage(p) == "" {
		return false
	}
	return now.Sub(p.LastTransitionAt) > d.threshold
}

func activeStage(p models.Process) models.Stage {
	for _, stage := range models.StageOrder() {
		if p.StageStatusOf(stage) == models.StageActive {
			return stage
		}
	}
	return ""
}
