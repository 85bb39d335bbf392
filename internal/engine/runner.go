package engine

import (
	"context"
	"fmt"

	"github.com/healflow/console-engine/internal/models"
)

// OrientResult is the contextual summary produced by the orient stage.
type OrientResult struct {
	Context          string
	RelatedIncidents []string
}

// DecideResult carries the reasoning chain and the proposed remedy. The
// orchestrator stamps the risk level after classification; runners leave
// Solution.RiskLevel empty.
type DecideResult struct {
	ChainOfThought []string
	Solution       models.ProposedSolution
}

// StageRunner is the opaque diagnostic capability invoked by each pipeline
// stage. Implementations may call out to an external reasoning service; the
// orchestrator only depends on the completion signal and output.
type StageRunner interface {
	Observe(ctx context.Context, signal models.Signal) ([]string, error)
	Orient(ctx context.Context, signal models.Signal, findings []string) (OrientResult, error)
	Decide(ctx context.Context, signal models.Signal, orientation OrientResult) (DecideResult, error)
	Act(ctx context.Context, signal models.Signal, solution models.ProposedSolution) ([]models.Action, error)
}

// DefaultStageRunner produces deterministic diagnostic output so the
// pipeline runs end to end without an external reasoning service attached.
type DefaultStageRunner struct{}

// NewDefaultStageRunner constructs the built-in stage capability.
func NewDefaultStageRunner() *DefaultStageRunner {
	return &DefaultStageRunner{}
}

// Observe collects descriptive findings about the signal.
func (r *DefaultStageRunner) Observe(_ context.Context, signal models.Signal) ([]string, error) {
	endpoint := signal.Endpoint
	if endpoint == "" {
		endpoint = "N/A"
	}
	return []string{
		fmt.Sprintf("Detected %s signal: %s", signal.Severity, signal.Type),
		fmt.Sprintf("Source: %s", signal.Source),
		fmt.Sprintf("Endpoint affected: %s", endpoint),
		"Analyzing pattern against historical data",
		"Correlating with recent system changes",
	}, nil
}

// Orient produces a contextual summary for the signal.
func (r *DefaultStageRunner) Orient(_ context.Context, signal models.Signal, _ []string) (OrientResult, error) {
	context := fmt.Sprintf("Signal %s indicates potential system issue. Analyzing impact on checkout flow and revenue.", signal.Type)
	if signal.Severity == models.SeverityCritical {
		context = fmt.Sprintf("CRITICAL: %s detected at %s. Immediate intervention required.", signal.Type, signal.Source)
	}
	return OrientResult{
		Context: context,
		RelatedIncidents: []string{
			"Similar pattern observed 3 days ago",
			"Migration phase correlation detected",
		},
	}, nil
}

// Decide produces the reasoning chain and a proposed remedy.
func (r *DefaultStageRunner) Decide(_ context.Context, signal models.Signal, _ OrientResult) (DecideResult, error) {
	endpoint := signal.Endpoint
	if endpoint == "" {
		endpoint = "gateway"
	}
	chain := []string{
		fmt.Sprintf("Detecting abnormal spike in responses from %s.", endpoint),
		"Comparing current log pattern with migration schema v2.1. Identification: Missing legacy session mapping.",
		"Hypothesis: API Gateway middleware is dropping headers from legacy session tokens.",
	}

	solution := models.ProposedSolution{
		Type:        "config_change",
		Description: "Apply session mapping fix and enable token injection",
		Confidence:  94,
	}
	if signal.Type == "DB_SCHEMA_CORRUPTION" {
		solution = models.ProposedSolution{
			Type:        "schema_change",
			Description: "Recreate legacy_session table",
			Confidence:  88,
		}
		chain = append(chain, "Proposed Action: DROP and RECREATE legacy_session table.")
	} else {
		chain = append(chain, "Proposed Decision: Re-route traffic through Legacy-Bridge node and inject token-fix-script.")
	}

	return DecideResult{ChainOfThought: chain, Solution: solution}, nil
}

// Act applies the proposed remedy and reports the steps taken.
func (r *DefaultStageRunner) Act(_ context.Context, _ models.Signal, solution models.ProposedSolution) ([]models.Action, error) {
	if solution.Type == "schema_change" {
		return []models.Action{
			{Type: "schema_change", Description: "Recreated legacy_session table via Migration v2.1.4"},
			{Type: "verify", Description: "Verified table integrity: OK"},
		}, nil
	}
	return []models.Action{
		{Type: "config_update", Description: "Update session_mapping to strict_legacy_v2"},
		{Type: "enable_feature", Description: "Enable token_injection"},
		{Type: "deploy_script", Description: "Deploy legacy_fix_v1.js"},
	}, nil
}
