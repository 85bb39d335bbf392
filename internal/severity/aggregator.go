package severity

import "github.com/healflow/console-engine/internal/models"

// Aggregate projects a signal stream onto per-entity severity tiers. The
// result only contains entities that have at least one qualifying active
// signal; consumers report absent entities as nominal.
//
// Tiers only ever move upward (nominal < warn < critical), so the result is
// independent of signal order: a later WARN never downgrades an entity that
// a CRITICAL signal already marked.
func Aggregate(signals []models.Signal) map[string]models.Tier {
	tiers := make(map[string]models.Tier)
	for _, sig := range signals {
		if sig.EntityID == "" || sig.Status == models.SignalResolved {
			continue
		}
		switch sig.Severity {
		case models.SeverityCritical:
			tiers[sig.EntityID] = models.TierCritical
		case models.SeverityError, models.SeverityWarn:
			if tiers[sig.EntityID] != models.TierCritical {
				tiers[sig.EntityID] = models.TierWarn
			}
		}
	}
	return tiers
}

// TierOf reports the tier for a single entity, defaulting to nominal.
func TierOf(tiers map[string]models.Tier, entityID string) models.Tier {
	if tier, ok := tiers[entityID]; ok {
		return tier
	}
	return models.TierNominal
}
