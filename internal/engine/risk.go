package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/healflow/console-engine/internal/models"
)

// RiskPack classifies a signal's proposed remediation. The high-impact type
// list is an explicit immutable rule pack loaded at startup, not an ambient
// table.
type RiskPack struct {
	highImpactTypes map[string]struct{}
	criticalIsHigh  bool
	logger          *slog.Logger
}

type riskPackFile struct {
	HighImpactTypes    []string `yaml:"high_impact_types"`
	CriticalIsHighRisk *bool    `yaml:"critical_is_high_risk"`
}

// DefaultRiskPack returns the built-in classification rules.
func DefaultRiskPack(logger *slog.Logger) *RiskPack {
	return newRiskPack([]string{"DB_SCHEMA_CORRUPTION", "INVENTORY_SYNC_FAILED"}, true, logger)
}

// LoadRiskPack loads classification rules from a YAML file. An empty or
// missing path yields the built-in defaults.
func LoadRiskPack(path string, logger *slog.Logger) (*RiskPack, error) {
	if path == "" {
		return DefaultRiskPack(logger), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRiskPack(logger), nil
		}
		return nil, err
	}

	var file riskPackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	criticalIsHigh := true
	if file.CriticalIsHighRisk != nil {
		criticalIsHigh = *file.CriticalIsHighRisk
	}
	return newRiskPack(file.HighImpactTypes, criticalIsHigh, logger), nil
}

func newRiskPack(types []string, criticalIsHigh bool, logger *slog.Logger) *RiskPack {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		set[strings.ToUpper(t)] = struct{}{}
	}
	return &RiskPack{highImpactTypes: set, criticalIsHigh: criticalIsHigh, logger: logger}
}

// Classify grades the remediation risk for a signal. CRITICAL severity and
// known high-impact categories are high risk; ERROR and WARN are medium;
// everything else is low.
func (p *RiskPack) Classify(signal models.Signal) models.RiskLevel {
	if p.criticalIsHigh && signal.Severity == models.SeverityCritical {
		return models.RiskHigh
	}
	if _, ok := p.highImpactTypes[strings.ToUpper(signal.Type)]; ok {
		return models.RiskHigh
	}
	switch signal.Severity {
	case models.SeverityError, models.SeverityWarn:
		return models.RiskMedium
	}
	return models.RiskLow
}
