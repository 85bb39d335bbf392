package api

import "github.com/healflow/console-engine/internal/models"

// Scenario is a canned signal template used for drills and demos.
type Scenario struct {
	Name     string
	Type     string
	Severity models.Severity
	Source   string
	Endpoint string
	Metadata map[string]any
}

// Scenarios returns the built-in drill catalogue, keyed by name.
func Scenarios() map[string]Scenario {
	catalogue := []Scenario{
		{
			Name:     "404-spike",
			Type:     "404_SPIKE_DETECTED",
			Severity: models.SeverityCritical,
			Source:   "Shopify_webhook",
			Endpoint: "/api/v1/checkout/payment",
			Metadata: map[string]any{"error": "NOT_FOUND", "affected_users": 1247, "revenue_at_risk": 45000},
		},
		{
			Name:     "stripe-latency",
			Type:     "STRIPE_LATENCY_HIGH",
			Severity: models.SeverityWarn,
			Source:   "PaymentGateway",
			Endpoint: "/api/v1/payments/process",
			Metadata: map[string]any{"latency": "847ms", "threshold": "200ms", "transactions_affected": 89},
		},
		{
			Name:     "token-invalid",
			Type:     "TOKEN_INVALID",
			Severity: models.SeverityError,
			Source:   "AuthService",
			Endpoint: "/api/v1/auth/verify",
			Metadata: map[string]any{"error": "JWT_EXPIRED", "failed_logins": 342},
		},
		{
			Name:     "inventory-sync",
			Type:     "INVENTORY_SYNC_FAILED",
			Severity: models.SeverityCritical,
			Source:   "InventoryService",
			Endpoint: "/api/v1/inventory/sync",
			Metadata: map[string]any{"error": "DB_CONNECTION_LOST", "products_affected": 1523},
		},
		{
			Name:     "cart-abandonment",
			Type:     "CART_ABANDONMENT_SPIKE",
			Severity: models.SeverityWarn,
			Source:   "AnalyticsEngine",
			Endpoint: "/api/v1/cart/status",
			Metadata: map[string]any{"abandonment_rate": "34%", "baseline": "12%", "carts_abandoned": 567},
		},
		{
			Name:     "db-corruption",
			Type:     "DB_SCHEMA_CORRUPTION",
			Severity: models.SeverityCritical,
			Source:   "DatabaseGuard",
			Endpoint: "/internal/db/migration",
			Metadata: map[string]any{"error": "TABLE_MISMATCH", "table": "legacy_sessions", "risk": "HIGH_DATA_LOSS"},
		},
	}

	byName := make(map[string]Scenario, len(catalogue))
	for _, scenario := range catalogue {
		byName[scenario.Name] = scenario
	}
	return byName
}
