package engine

import (
	"testing"

	"github.com/healflow/console-engine/internal/models"
)

func TestTransitionHappyPath(t *testing.T) {
	p := newProcess("proc-1", models.Signal{ID: "sig-1"}, nil)

	for _, stage := range models.StageOrder() {
		if err := p.transition(stage, models.StageActive); err != nil {
			t.Fatalf("activate %s: %v", stage, err)
		}
		if err := p.transition(stage, models.StageComplete); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}

	state := p.snapshot()
	if state.ActStatus != models.StageComplete {
		t.Fatalf("expected act complete, got %s", state.ActStatus)
	}
}

func TestTransitionNeverRegresses(t *testing.T) {
	p := newProcess("proc-1", models.Signal{ID: "sig-1"}, nil)

	if err := p.transition(models.StageObserve, models.StageActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := p.transition(models.StageObserve, models.StageComplete); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := p.transition(models.StageObserve, models.StageActive); err == nil {
		t.Fatal("complete stage re-activated")
	}
}

func TestTransitionRequiresEarlierStagesComplete(t *testing.T) {
	p := newProcess("proc-1", models.Signal{ID: "sig-1"}, nil)

	if err := p.transition(models.StageDecide, models.StageActive); err == nil {
		t.Fatal("decide activated before observe and orient completed")
	}
}

func TestTransitionSkipsPendingToComplete(t *testing.T) {
	p := newProcess("proc-1", models.Signal{ID: "sig-1"}, nil)

	if err := p.transition(models.StageObserve, models.StageComplete); err == nil {
		t.Fatal("pending stage completed without activating")
	}
}

func TestObserverSeesTransitionsInOrder(t *testing.T) {
	type event struct {
		stage  models.Stage
		status models.StageStatus
	}
	var events []event
	p := newProcess("proc-1", models.Signal{ID: "sig-1"}, func(_ string, stage models.Stage, status models.StageStatus) {
		events = append(events, event{stage, status})
	})

	for _, stage := range models.StageOrder() {
		if err := p.transition(stage, models.StageActive); err != nil {
			t.Fatalf("activate %s: %v", stage, err)
		}
		if err := p.transition(stage, models.StageComplete); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}

	if len(events) != 8 {
		t.Fatalf("expected 8 events, got %d", len(events))
	}
	for i, stage := range models.StageOrder() {
		if events[2*i].stage != stage || events[2*i].status != models.StageActive {
			t.Fatalf("event %d: expected %s active, got %s %s", 2*i, stage, events[2*i].stage, events[2*i].status)
		}
		if events[2*i+1].stage != stage || events[2*i+1].status != models.StageComplete {
			t.Fatalf("event %d: expected %s complete, got %s %s", 2*i+1, stage, events[2*i+1].stage, events[2*i+1].status)
		}
	}
}
