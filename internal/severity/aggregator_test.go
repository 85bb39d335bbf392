package severity

import (
	"testing"

	"github.com/healflow/console-engine/internal/models"
)

func TestAggregateWorstSeverityWins(t *testing.T) {
	signals := []models.Signal{
		{ID: "s1", EntityID: "ent-1", Severity: models.SeverityWarn, Status: models.SignalActive},
		{ID: "s2", EntityID: "ent-1", Severity: models.SeverityCritical, Status: models.SignalActive},
		{ID: "s3", EntityID: "ent-1", Severity: models.SeverityError, Status: models.SignalActive},
	}

	tiers := Aggregate(signals)
	if tiers["ent-1"] != models.TierCritical {
		t.Fatalf("expected critical, got %s", tiers["ent-1"])
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	forward := []models.Signal{
		{ID: "s1", EntityID: "ent-1", Severity: models.SeverityCritical, Status: models.SignalActive},
		{ID: "s2", EntityID: "ent-1", Severity: models.SeverityWarn, Status: models.SignalActive},
	}
	reversed := []models.Signal{forward[1], forward[0]}

	if Aggregate(forward)["ent-1"] != Aggregate(reversed)["ent-1"] {
		t.Fatal("aggregation must not depend on signal order")
	}
}

func TestAggregateIgnoresResolvedAndUnattributed(t *testing.T) {
	signals := []models.Signal{
		{ID: "s1", EntityID: "ent-1", Severity: models.SeverityCritical, Status: models.SignalResolved},
		{ID: "s2", EntityID: "", Severity: models.SeverityCritical, Status: models.SignalActive},
		{ID: "s3", EntityID: "ent-1", Severity: models.SeverityInfo, Status: models.SignalActive},
	}

	tiers := Aggregate(signals)
	if len(tiers) != 0 {
		t.Fatalf("expected no tiers, got %v", tiers)
	}
	if TierOf(tiers, "ent-1") != models.TierNominal {
		t.Fatalf("expected nominal fallback, got %s", TierOf(tiers, "ent-1"))
	}
}

func TestAggregateEntitiesIndependent(t *testing.T) {
	signals := []models.Signal{
		{ID: "s1", EntityID: "ent-1", Severity: models.SeverityCritical, Status: models.SignalActive},
		{ID: "s2", EntityID: "ent-2", Severity: models.SeverityWarn, Status: models.SignalActive},
	}

	tiers := Aggregate(signals)
	if tiers["ent-1"] != models.TierCritical {
		t.Fatalf("expected ent-1 critical, got %s", tiers["ent-1"])
	}
	if tiers["ent-2"] != models.TierWarn {
		t.Fatalf("expected ent-2 warn, got %s", tiers["ent-2"])
	}
}
