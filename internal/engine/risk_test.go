package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/healflow/console-engine/internal/models"
)

func TestClassify(t *testing.T) {
	pack := DefaultRiskPack(nil)

	cases := []struct {
		name   string
		signal models.Signal
		want   models.RiskLevel
	}{
		{"critical severity", models.Signal{Type: "404_SPIKE_DETECTED", Severity: models.SeverityCritical}, models.RiskHigh},
		{"high impact type", models.Signal{Type: "DB_SCHEMA_CORRUPTION", Severity: models.SeverityWarn}, models.RiskHigh},
		{"error severity", models.Signal{Type: "TOKEN_INVALID", Severity: models.SeverityError}, models.RiskMedium},
		{"warn severity", models.Signal{Type: "STRIPE_LATENCY_HIGH", Severity: models.SeverityWarn}, models.RiskMedium},
		{"info severity", models.Signal{Type: "HEARTBEAT", Severity: models.SeverityInfo}, models.RiskLow},
		{"case insensitive type", models.Signal{Type: "db_schema_corruption", Severity: models.SeverityWarn}, models.RiskHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pack.Classify(tc.signal); got != tc.want {
				t.Fatalf("Classify(%s/%s) = %s, want %s", tc.signal.Type, tc.signal.Severity, got, tc.want)
			}
		})
	}
}

func TestLoadRiskPackFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	content := "high_impact_types:\n  - CUSTOM_MELTDOWN\ncritical_is_high_risk: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	pack, err := LoadRiskPack(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := pack.Classify(models.Signal{Type: "CUSTOM_MELTDOWN", Severity: models.SeverityInfo}); got != models.RiskHigh {
		t.Fatalf("expected custom type high, got %s", got)
	}
	if got := pack.Classify(models.Signal{Type: "OTHER", Severity: models.SeverityCritical}); got != models.RiskLow {
		t.Fatalf("expected critical demoted when disabled, got %s", got)
	}
}

func TestLoadRiskPackMissingFileFallsBack(t *testing.T) {
	pack, err := LoadRiskPack(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := pack.Classify(models.Signal{Type: "DB_SCHEMA_CORRUPTION", Severity: models.SeverityWarn}); got != models.RiskHigh {
		t.Fatalf("expected defaults in effect, got %s", got)
	}
}
