package engine

import (
	"context"
	"testing"
	"time"

	"github.com/healflow/console-engine/internal/models"
)

func TestScanFlagsFailedStep(t *testing.T) {
	o, _, q := newTestOrchestrator(&recordingSink{}, &failingRunner{failAt: models.StageOrient})
	d := NewStallDetector(nil, o, q, time.Second, 30*time.Second)

	started, err := o.StartProcess(context.Background(), models.Signal{ID: "sig-1", Type: "TOKEN_INVALID", Severity: models.SeverityError})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		p, ok := o.Process(started.ID)
		return ok && p.StepError != ""
	})

	d.Scan(time.Now().UTC())

	p, _ := o.Process(started.ID)
	if !p.Stalled {
		t.Fatal("expected failed process flagged as stalled")
	}
}

func TestScanFlagsSilentProcessAfterThreshold(t *testing.T) {
	o, _, q := newTestOrchestrator(&recordingSink{}, &failingRunner{failAt: models.StageOrient})
	d := NewStallDetector(nil, o, q, time.Second, 30*time.Second)

	started, err := o.StartProcess(context.Background(), models.Signal{ID: "sig-1", Type: "TOKEN_INVALID", Severity: models.SeverityError})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		p, ok := o.Process(started.ID)
		return ok && p.OrientStatus == models.StageActive
	})

	// Before the threshold elapses the process is left alone only if its
	// step has not failed; this one failed, so any scan flags it. Use a
	// future instant to exercise the transition-age rule as well.
	d.Scan(time.Now().UTC().Add(time.Minute))

	p, _ := o.Process(started.ID)
	if !p.Stalled {
		t.Fatal("expected silent process flagged after threshold")
	}
}

func TestScanSkipsSuspendedAndTerminalProcesses(t *testing.T) {
	o, g, q := newTestOrchestrator(&recordingSink{}, nil)
	d := NewStallDetector(nil, o, q, time.Second, 30*time.Second)

	lowProc, err := o.StartProcess(context.Background(), models.Signal{ID: "sig-low", Type: "STRIPE_LATENCY_HIGH", Severity: models.SeverityWarn})
	if err != nil {
		t.Fatalf("start low: %v", err)
	}
	highProc, err := o.StartProcess(context.Background(), models.Signal{ID: "sig-high", Type: "DB_SCHEMA_CORRUPTION", Severity: models.SeverityCritical})
	if err != nil {
		t.Fatalf("start high: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		p, ok := o.Process(lowProc.ID)
		return ok && p.Outcome == models.OutcomeResolved
	})
	waitFor(t, 2*time.Second, func() bool {
		return len(g.Pending()) == 1
	})

	// Approval waits are open-ended; even a scan far in the future must not
	// flag the suspended process.
	d.Scan(time.Now().UTC().Add(time.Hour))

	if p, _ := o.Process(lowProc.ID); p.Stalled {
		t.Fatal("resolved process flagged as stalled")
	}
	if p, _ := o.Process(highProc.ID); p.Stalled {
		t.Fatal("suspended process flagged as stalled")
	}
}
