package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/healflow/console-engine/internal/cache"
)

// RevenueAtRisk summarises revenue exposure over a trailing window.
type RevenueAtRisk struct {
	WindowHours int     `json:"window_hours"`
	TotalAmount float64 `json:"total_amount"`
	SignalCount int     `json:"signal_count"`
	Currency    string  `json:"currency"`
}

// ResolutionStats summarises resolution throughput over a trailing window.
type ResolutionStats struct {
	WindowDays        int     `json:"window_days"`
	Resolved          int     `json:"resolved"`
	Cancelled         int     `json:"cancelled"`
	AvgResolutionSecs float64 `json:"avg_resolution_seconds"`
	ApprovalRate      float64 `json:"approval_rate"`
}

// FrictionEntry is one row of the friction leaderboard: the endpoints or
// entities generating the most signals.
type FrictionEntry struct {
	Subject     string `json:"subject"`
	SignalCount int    `json:"signal_count"`
	TopSeverity string `json:"top_severity"`
}

// Brief is the generated operational summary for the current period.
type Brief struct {
	Headline    string    `json:"headline"`
	Body        string    `json:"body"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AuditEntry is one recorded operator or system action.
type AuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	SubjectID string    `json:"subject_id"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportingClient reads the backend's analytics endpoints. Results are
// cached because reporting queries are expensive upstream and the console
// re-requests them on every dashboard render.
type ReportingClient struct {
	backend *BackendClient
	cache   cache.Provider
	ttl     time.Duration
	logger  *slog.Logger
}

// NewReportingClient constructs a reporting reader over the backend base URL.
func NewReportingClient(baseURL string, timeout time.Duration, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *ReportingClient {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportingClient{
		backend: NewBackendClient(baseURL, timeout, 0),
		cache:   provider,
		ttl:     ttl,
		logger:  logger,
	}
}

// RevenueAtRisk reads the revenue exposure summary for the trailing window.
func (c *ReportingClient) RevenueAtRisk(ctx context.Context, hours int) (RevenueAtRisk, error) {
	if hours <= 0 {
		hours = 24
	}
	key := fmt.Sprintf("reporting:revenue_at_risk:%d", hours)
	endpoint := c.backend.resolvePath("/api/analytics/revenue-at-risk") + "?hours=" + strconv.Itoa(hours)
	var out RevenueAtRisk
	err := c.cachedGet(ctx, key, endpoint, &out)
	return out, err
}

// ResolutionStats reads resolution throughput for the trailing window.
func (c *ReportingClient) ResolutionStats(ctx context.Context, days int) (ResolutionStats, error) {
	if days <= 0 {
		days = 7
	}
	key := fmt.Sprintf("reporting:resolution_stats:%d", days)
	endpoint := c.backend.resolvePath("/api/analytics/resolution-stats") + "?days=" + strconv.Itoa(days)
	var out ResolutionStats
	err := c.cachedGet(ctx, key, endpoint, &out)
	return out, err
}

// FrictionLeaderboard reads the top signal-generating subjects.
func (c *ReportingClient) FrictionLeaderboard(ctx context.Context, limit int) ([]FrictionEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	key := fmt.Sprintf("reporting:friction:%d", limit)
	endpoint := c.backend.resolvePath("/api/analytics/friction") + "?limit=" + strconv.Itoa(limit)
	var out struct {
		Data []FrictionEntry `json:"data"`
	}
	if err := c.cachedGet(ctx, key, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Brief reads the generated operational summary.
func (c *ReportingClient) Brief(ctx context.Context) (Brief, error) {
	var out Brief
	err := c.cachedGet(ctx, "reporting:brief", c.backend.resolvePath("/api/brief"), &out)
	return out, err
}

// AuditLog reads the most recent recorded actions. Audit reads bypass the
// cache; stale audit data misleads operators.
func (c *ReportingClient) AuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	endpoint := c.backend.resolvePath("/api/audit-log") + "?limit=" + strconv.Itoa(limit)
	var out struct {
		Data []AuditEntry `json:"data"`
	}
	if err := c.backend.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("reporting audit-log request failed: %w", err)
	}
	return out.Data, nil
}

func (c *ReportingClient) cachedGet(ctx context.Context, key, endpoint string, out any) error {
	if data, err := c.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(data, out); err == nil {
			return nil
		}
		// Unreadable cache entry; drop it and fetch fresh.
		_ = c.cache.Del(ctx, key)
	} else if err != cache.ErrCacheMiss {
		c.logger.Warn("reporting cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	if err := c.backend.sendJSON(ctx, http.MethodGet, endpoint, nil, out); err != nil {
		return fmt.Errorf("reporting request failed: %w", err)
	}

	if data, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("reporting cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return nil
}
