package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/healflow/console-engine/internal/models"
	"github.com/healflow/console-engine/internal/utils"
)

// BackendClient wraps the incident backend's HTTP APIs consumed by the
// console: filterable list reads for the synchronization loop and the write
// operations the orchestrator and operator verbs need.
type BackendClient struct {
	baseURL     string
	signalLimit int
	httpClient  *http.Client
}

// NewBackendClient constructs a client targeting the configured backend.
func NewBackendClient(baseURL string, timeout time.Duration, signalLimit int) *BackendClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if signalLimit <= 0 {
		signalLimit = 50
	}
	return &BackendClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		signalLimit: signalLimit,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type signalPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Source    string         `json:"source"`
	Endpoint  string         `json:"endpoint,omitempty"`
	EntityID  string         `json:"merchant_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

func (p signalPayload) toDomain() models.Signal {
	status := models.SignalStatus(p.Status)
	if status == "" {
		status = models.SignalActive
	}
	return models.Signal{
		ID:        p.ID,
		Type:      p.Type,
		Severity:  models.Severity(p.Severity),
		Source:    p.Source,
		Endpoint:  p.Endpoint,
		EntityID:  p.EntityID,
		Metadata:  p.Metadata,
		Status:    status,
		CreatedAt: p.CreatedAt,
	}
}

// ListSignals fetches signals matching the operator filter set.
func (c *BackendClient) ListSignals(ctx context.Context, filters models.Filters) ([]models.Signal, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.signalLimit))
	if len(filters.Tiers) > 0 {
		tiers := make([]string, 0, len(filters.Tiers))
		for _, tier := range filters.Tiers {
			tiers = append(tiers, string(tier))
		}
		query.Set("tier", strings.Join(tiers, ","))
	}
	if filters.Phase != "" {
		query.Set("phase", filters.Phase)
	}
	if filters.TimeWindow != "" {
		query.Set("time_period", filters.TimeWindow)
	}

	var response struct {
		Data []signalPayload `json:"data"`
	}
	if err := c.getJSON(ctx, c.resolvePath("/api/signals")+"?"+query.Encode(), &response); err != nil {
		return nil, fmt.Errorf("backend signals request failed: %w", err)
	}

	signals := make([]models.Signal, 0, len(response.Data))
	for _, payload := range response.Data {
		signals = append(signals, payload.toDomain())
	}
	return signals, nil
}

// ListAgents fetches the diagnostic agent roster.
func (c *BackendClient) ListAgents(ctx context.Context) ([]models.Agent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var response struct {
		Data []struct {
			ID                  string `json:"id"`
			Name                string `json:"name"`
			Type                string `json:"type"`
			Status              string `json:"status"`
			CurrentTaskSignalID string `json:"current_task_signal_id"`
			CurrentTaskStage    string `json:"current_task_stage"`
			CurrentTaskProgress int    `json:"current_task_progress"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.resolvePath("/api/agents"), &response); err != nil {
		return nil, fmt.Errorf("backend agents request failed: %w", err)
	}

	agents := make([]models.Agent, 0, len(response.Data))
	for _, a := range response.Data {
		agents = append(agents, models.Agent{
			ID:                  a.ID,
			Name:                a.Name,
			Type:                a.Type,
			Status:              models.AgentStatus(a.Status),
			CurrentTaskSignalID: a.CurrentTaskSignalID,
			CurrentTaskStage:    a.CurrentTaskStage,
			CurrentTaskProgress: a.CurrentTaskProgress,
		})
	}
	return agents, nil
}

// ListHILRequests fetches pending backend-issued approval requests.
func (c *BackendClient) ListHILRequests(ctx context.Context) ([]models.HILRequest, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var response struct {
		Data []struct {
			ID             string `json:"id"`
			SignalID       string `json:"signal_id"`
			Title          string `json:"title"`
			Status         string `json:"status"`
			RiskLevel      string `json:"risk_level"`
			Notes          string `json:"notes"`
			ProposedAction struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			} `json:"proposed_action"`
			Metrics struct {
				Confidence    int     `json:"confidence"`
				RevenueAtRisk float64 `json:"revenue_at_risk"`
				ImpactScope   string  `json:"impact_scope"`
			} `json:"metrics"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.resolvePath("/api/hil-requests")+"?status=pending", &response); err != nil {
		return nil, fmt.Errorf("backend hil-requests request failed: %w", err)
	}

	requests := make([]models.HILRequest, 0, len(response.Data))
	for _, r := range response.Data {
		status := models.HILStatus(r.Status)
		if status == "" {
			status = models.HILPending
		}
		requests = append(requests, models.HILRequest{
			ID:       r.ID,
			SignalID: r.SignalID,
			Title:    r.Title,
			ProposedAction: models.ProposedSolution{
				Type:        r.ProposedAction.Type,
				Description: r.ProposedAction.Description,
				Confidence:  r.Metrics.Confidence,
				RiskLevel:   models.RiskLevel(r.RiskLevel),
			},
			RiskLevel: models.RiskLevel(r.RiskLevel),
			Metrics: models.HILMetrics{
				Confidence:    r.Metrics.Confidence,
				RevenueAtRisk: r.Metrics.RevenueAtRisk,
				ImpactScope:   r.Metrics.ImpactScope,
			},
			Origin:    models.OriginBackend,
			Status:    status,
			Notes:     r.Notes,
			CreatedAt: r.CreatedAt,
		})
	}
	return requests, nil
}

// ListEntities fetches the named entity roster.
func (c *BackendClient) ListEntities(ctx context.Context) ([]models.Entity, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var response struct {
		Data []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Tier  string `json:"tier"`
			Phase string `json:"migration_phase"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.resolvePath("/api/merchants"), &response); err != nil {
		return nil, fmt.Errorf("backend merchants request failed: %w", err)
	}

	entities := make([]models.Entity, 0, len(response.Data))
	for _, e := range response.Data {
		entities = append(entities, models.Entity{
			ID:    e.ID,
			Name:  e.Name,
			Tier:  models.EntityTier(e.Tier),
			Phase: e.Phase,
		})
	}
	return entities, nil
}

// CreateSignal registers an ingested signal with the backend.
func (c *BackendClient) CreateSignal(ctx context.Context, signal models.Signal) error {
	if err := c.ready(); err != nil {
		return err
	}

	payload := signalPayload{
		ID:        signal.ID,
		Type:      signal.Type,
		Severity:  string(signal.Severity),
		Source:    signal.Source,
		Endpoint:  signal.Endpoint,
		EntityID:  signal.EntityID,
		Metadata:  signal.Metadata,
		Status:    string(signal.Status),
		CreatedAt: signal.CreatedAt,
	}
	if err := c.postJSON(ctx, c.resolvePath("/api/signals"), payload, nil); err != nil {
		return fmt.Errorf("backend create signal failed: %w", err)
	}
	return nil
}

// UpdateSignalStatus writes a signal lifecycle change upstream.
func (c *BackendClient) UpdateSignalStatus(ctx context.Context, signalID string, status models.SignalStatus) error {
	if err := c.ready(); err != nil {
		return err
	}
	payload := map[string]string{"status": string(status)}
	endpoint := c.resolvePath("/api/signals/" + url.PathEscape(signalID))
	if err := c.sendJSON(ctx, http.MethodPut, endpoint, payload, nil); err != nil {
		return fmt.Errorf("backend update signal failed: %w", err)
	}
	return nil
}

// ResolveHILRequest resolves a backend-issued approval request upstream.
func (c *BackendClient) ResolveHILRequest(ctx context.Context, requestID string, decision models.HILDecision, notes string) error {
	if err := c.ready(); err != nil {
		return err
	}
	payload := map[string]any{"action": string(decision)}
	if notes != "" {
		payload["notes"] = notes
	}
	endpoint := c.resolvePath("/api/hil-requests/" + url.PathEscape(requestID) + "/resolve")
	if err := c.postJSON(ctx, endpoint, payload, nil); err != nil {
		return fmt.Errorf("backend resolve hil request failed: %w", err)
	}
	return nil
}

// TriggerScenario asks the backend to synthesize a signal for a named
// simulation scenario and returns the created signal.
func (c *BackendClient) TriggerScenario(ctx context.Context, scenarioType string, severity models.Severity) (models.Signal, error) {
	if err := c.ready(); err != nil {
		return models.Signal{}, err
	}

	payload := map[string]string{
		"type":     scenarioType,
		"severity": string(severity),
	}
	var response signalPayload
	if err := c.postJSON(ctx, c.resolvePath("/api/simulations/trigger"), payload, &response); err != nil {
		return models.Signal{}, fmt.Errorf("backend trigger scenario failed: %w", err)
	}
	return response.toDomain(), nil
}

func (c *BackendClient) ready() error {
	if c == nil {
		return fmt.Errorf("backend client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("backend base URL not configured")
	}
	return nil
}

func (c *BackendClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *BackendClient) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.sendJSON(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *BackendClient) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	return c.sendJSON(ctx, http.MethodPost, endpoint, payload, out)
}

func (c *BackendClient) sendJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return utils.NewAppError("backend", fmt.Sprintf("%s %s returned %s", method, endpoint, resp.Status), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
