package models

import "time"

// Tier is the coarse per-entity severity classification derived from the
// entity's active signals.
type Tier string

const (
	TierNominal  Tier = "nominal"
	TierWarn     Tier = "warn"
	TierCritical Tier = "critical"
)

// EntityTier is the commercial tier an entity belongs to; it participates in
// the operator filter set.
type EntityTier string

const (
	TierEnterprise EntityTier = "enterprise"
	TierMidMarket  EntityTier = "mid_market"
	TierSME        EntityTier = "sme"
)

// Entity is a named unit (merchant/tenant) signals may be attributed to.
type Entity struct {
	ID    string
	Name  string
	Tier  EntityTier
	Phase string
}

// Filters is the operator-selected filter set applied to backend reads.
type Filters struct {
	TimeWindow string
	Phase      string
	Tiers      []EntityTier
}

// DefaultFilters returns the filter set used before the operator changes it.
func DefaultFilters() Filters {
	return Filters{
		TimeWindow: "24h",
		Phase:      "all",
		Tiers:      []EntityTier{TierEnterprise, TierMidMarket, TierSME},
	}
}

// NotificationCategory buckets operator notifications.
type NotificationCategory string

const (
	NotifyCritical NotificationCategory = "critical"
	NotifyWarning  NotificationCategory = "warning"
	NotifyInfo     NotificationCategory = "info"
	NotifyHIL      NotificationCategory = "hil"
)

// NotificationEvent is one entry in the operator notification queue.
// SourceID identifies the originating event for deduplication.
type NotificationEvent struct {
	ID        string
	Category  NotificationCategory
	Title     string
	SourceID  string
	Read      bool
	CreatedAt time.Time
}

// Snapshot is the consistent local view assembled by the synchronization
// loop. Consumers must treat it as read-only.
type Snapshot struct {
	Signals          []Signal
	Agents           []Agent
	Processes        []Process
	HILRequests      []HILRequest
	Entities         []Entity
	EntitySeverities map[string]Tier
	Notifications    []NotificationEvent
	Filters          Filters
	RefreshedAt      time.Time
}
