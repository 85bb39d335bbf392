package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/healflow/console-engine/internal/engine"
	"github.com/healflow/console-engine/internal/gate"
	"github.com/healflow/console-engine/internal/models"
	"github.com/healflow/console-engine/internal/notify"
	"github.com/healflow/console-engine/internal/repo"
)

type fakeLoop struct {
	snapshot  models.Snapshot
	filters   models.Filters
	tracked   []models.Signal
	refreshes int
}

func (f *fakeLoop) Snapshot() models.Snapshot         { return f.snapshot }
func (f *fakeLoop) SetFilters(filters models.Filters) { f.filters = filters }
func (f *fakeLoop) TrackSignal(signal models.Signal)  { f.tracked = append(f.tracked, signal) }
func (f *fakeLoop) Refresh(_ context.Context)         { f.refreshes++ }

type fakeController struct {
	started    []models.Signal
	startErr   error
	resolveErr error
	decisions  map[string]models.HILDecision
}

func (f *fakeController) StartProcess(_ context.Context, signal models.Signal) (models.Process, error) {
	if f.startErr != nil {
		return models.Process{}, f.startErr
	}
	f.started = append(f.started, signal)
	return models.Process{ID: "proc-1", SignalID: signal.ID, Outcome: models.OutcomeRunning}, nil
}

func (f *fakeController) Approve(_ context.Context, requestID, _ string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	if f.decisions == nil {
		f.decisions = make(map[string]models.HILDecision)
	}
	f.decisions[requestID] = models.DecisionApproved
	return nil
}

func (f *fakeController) Reject(_ context.Context, requestID, _ string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	if f.decisions == nil {
		f.decisions = make(map[string]models.HILDecision)
	}
	f.decisions[requestID] = models.DecisionRejected
	return nil
}

type fakeBackend struct {
	created     []models.Signal
	createErr   error
	resolved    map[string]models.HILDecision
	resolveErr  error
	scenarioErr error
}

func (f *fakeBackend) CreateSignal(_ context.Context, signal models.Signal) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, signal)
	return nil
}

func (f *fakeBackend) ResolveHILRequest(_ context.Context, requestID string, decision models.HILDecision, _ string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	if f.resolved == nil {
		f.resolved = make(map[string]models.HILDecision)
	}
	f.resolved[requestID] = decision
	return nil
}

func (f *fakeBackend) TriggerScenario(_ context.Context, scenarioType string, severity models.Severity) (models.Signal, error) {
	if f.scenarioErr != nil {
		return models.Signal{}, f.scenarioErr
	}
	return models.Signal{
		ID: "sig-sim", Type: scenarioType, Severity: severity,
		Status: models.SignalActive, CreatedAt: time.Now().UTC(),
	}, nil
}

type fakeReporting struct {
	revenue repo.RevenueAtRisk
	err     error
}

func (f *fakeReporting) RevenueAtRisk(_ context.Context, _ int) (repo.RevenueAtRisk, error) {
	return f.revenue, f.err
}

func (f *fakeReporting) ResolutionStats(_ context.Context, _ int) (repo.ResolutionStats, error) {
	return repo.ResolutionStats{}, f.err
}

func (f *fakeReporting) FrictionLeaderboard(_ context.Context, _ int) ([]repo.FrictionEntry, error) {
	return nil, f.err
}

func (f *fakeReporting) Brief(_ context.Context) (repo.Brief, error) {
	return repo.Brief{}, f.err
}

func (f *fakeReporting) AuditLog(_ context.Context, _ int) ([]repo.AuditEntry, error) {
	return nil, f.err
}

func newTestServer(t *testing.T, loop *fakeLoop, controller *fakeController, backend *fakeBackend, reporting *fakeReporting) (*httptest.Server, *notify.Queue) {
	t.Helper()
	q := notify.NewQueue(100)
	handler := NewHandler(nil, loop, controller, backend, reporting, q)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server, q
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSnapshotEndpoint(t *testing.T) {
	loop := &fakeLoop{
		snapshot: models.Snapshot{
			Signals:          []models.Signal{{ID: "sig-1", Type: "TOKEN_INVALID", Severity: models.SeverityError, Status: models.SignalActive}},
			EntitySeverities: map[string]models.Tier{"ent-1": models.TierWarn},
			Filters:          models.DefaultFilters(),
			RefreshedAt:      time.Now().UTC(),
		},
	}
	server, _ := newTestServer(t, loop, &fakeController{}, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/snapshot", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body snapshotDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Signals) != 1 || body.Signals[0].ID != "sig-1" {
		t.Fatalf("unexpected signals %+v", body.Signals)
	}
	if body.EntitySeverities["ent-1"] != "warn" {
		t.Fatalf("unexpected severities %v", body.EntitySeverities)
	}
	if body.Filters.TimeWindow != "24h" {
		t.Fatalf("unexpected filters %+v", body.Filters)
	}
}

func TestInjectSignal(t *testing.T) {
	loop := &fakeLoop{}
	backend := &fakeBackend{}
	server, _ := newTestServer(t, loop, &fakeController{}, backend, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/signals", map[string]any{
		"type":     "404_SPIKE_DETECTED",
		"severity": "CRITICAL",
		"source":   "Shopify_webhook",
		"metadata": map[string]any{"revenue_at_risk": 45000},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var body signalDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID == "" || body.Status != "active" {
		t.Fatalf("unexpected signal %+v", body)
	}
	if len(backend.created) != 1 {
		t.Fatalf("expected backend create, got %d", len(backend.created))
	}
	if len(loop.tracked) != 1 {
		t.Fatalf("expected signal tracked locally, got %d", len(loop.tracked))
	}
}

func TestInjectSignalValidation(t *testing.T) {
	server, _ := newTestServer(t, &fakeLoop{}, &fakeController{}, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/signals", map[string]any{"severity": "CRITICAL"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing type, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/signals", map[string]any{"type": "X", "severity": "SHOUTING"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown severity, got %d", resp.StatusCode)
	}
}

func TestStartProcess(t *testing.T) {
	loop := &fakeLoop{
		snapshot: models.Snapshot{
			Signals: []models.Signal{{ID: "sig-1", Type: "TOKEN_INVALID", Severity: models.SeverityError, Status: models.SignalActive}},
		},
	}
	controller := &fakeController{}
	server, _ := newTestServer(t, loop, controller, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/signals/sig-1/process", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(controller.started) != 1 || controller.started[0].ID != "sig-1" {
		t.Fatalf("unexpected started signals %+v", controller.started)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/signals/missing/process", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown signal, got %d", resp.StatusCode)
	}
}

func TestStartProcessBusySignal(t *testing.T) {
	loop := &fakeLoop{
		snapshot: models.Snapshot{
			Signals: []models.Signal{{ID: "sig-1", Status: models.SignalActive}},
		},
	}
	controller := &fakeController{startErr: engine.ErrSignalBusy}
	server, _ := newTestServer(t, loop, controller, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/signals/sig-1/process", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestApproveLocalRequest(t *testing.T) {
	controller := &fakeController{}
	server, _ := newTestServer(t, &fakeLoop{}, controller, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/hil/hil-1/approve", map[string]string{"notes": "ok"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if controller.decisions["hil-1"] != models.DecisionApproved {
		t.Fatalf("decision not recorded: %v", controller.decisions)
	}
}

func TestApproveAlreadyResolvedConflicts(t *testing.T) {
	controller := &fakeController{resolveErr: gate.ErrAlreadyResolved}
	server, _ := newTestServer(t, &fakeLoop{}, controller, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/hil/hil-1/approve", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRejectFallsThroughToBackendRequest(t *testing.T) {
	loop := &fakeLoop{
		snapshot: models.Snapshot{
			HILRequests: []models.HILRequest{{ID: "hil-remote", Origin: models.OriginBackend, Status: models.HILPending}},
		},
	}
	controller := &fakeController{resolveErr: gate.ErrNotFound}
	backend := &fakeBackend{}
	server, _ := newTestServer(t, loop, controller, backend, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/hil/hil-remote/reject", map[string]string{"notes": "no"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if backend.resolved["hil-remote"] != models.DecisionRejected {
		t.Fatalf("backend resolution not forwarded: %v", backend.resolved)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/hil/hil-unknown/reject", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown request, got %d", resp.StatusCode)
	}
}

func TestSetFilters(t *testing.T) {
	loop := &fakeLoop{}
	server, _ := newTestServer(t, loop, &fakeController{}, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPut, server.URL+"/api/v1/filters", map[string]any{
		"time_window": "1h",
		"phase":       "migration",
		"tiers":       []string{"enterprise"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if loop.filters.TimeWindow != "1h" || loop.filters.Phase != "migration" {
		t.Fatalf("filters not applied: %+v", loop.filters)
	}
	if loop.refreshes != 1 {
		t.Fatalf("expected immediate refresh, got %d", loop.refreshes)
	}

	resp = doJSON(t, http.MethodPut, server.URL+"/api/v1/filters", map[string]any{"time_window": "90d"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad window, got %d", resp.StatusCode)
	}
}

func TestMarkNotificationsRead(t *testing.T) {
	server, q := newTestServer(t, &fakeLoop{}, &fakeController{}, &fakeBackend{}, &fakeReporting{})
	q.Push(models.NotificationEvent{Title: "critical", SourceID: "signal:s1"})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/notifications/read", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if q.UnreadCount() != 0 {
		t.Fatalf("expected cleared queue, got %d unread", q.UnreadCount())
	}
}

func TestTriggerScenario(t *testing.T) {
	loop := &fakeLoop{}
	server, _ := newTestServer(t, loop, &fakeController{}, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/scenarios/db-corruption", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var body signalDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Type != "DB_SCHEMA_CORRUPTION" {
		t.Fatalf("unexpected scenario signal %+v", body)
	}
	if len(loop.tracked) != 1 {
		t.Fatalf("expected signal tracked, got %d", len(loop.tracked))
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/scenarios/unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown scenario, got %d", resp.StatusCode)
	}
}

func TestTriggerScenarioFallsBackWhenBackendDown(t *testing.T) {
	loop := &fakeLoop{}
	backend := &fakeBackend{scenarioErr: errors.New("backend down")}
	server, _ := newTestServer(t, loop, &fakeController{}, backend, &fakeReporting{})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/scenarios/404-spike", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 despite backend failure, got %d", resp.StatusCode)
	}
	var body signalDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID == "" || body.Type != "404_SPIKE_DETECTED" {
		t.Fatalf("expected locally synthesized signal, got %+v", body)
	}
}

func TestReportingEndpoint(t *testing.T) {
	reporting := &fakeReporting{revenue: repo.RevenueAtRisk{WindowHours: 24, TotalAmount: 45000, Currency: "USD"}}
	server, _ := newTestServer(t, &fakeLoop{}, &fakeController{}, &fakeBackend{}, reporting)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/reporting/revenue-at-risk?hours=24", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body repo.RevenueAtRisk
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TotalAmount != 45000 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReportingUpstreamFailure(t *testing.T) {
	reporting := &fakeReporting{err: errors.New("upstream down")}
	server, _ := newTestServer(t, &fakeLoop{}, &fakeController{}, &fakeBackend{}, reporting)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/reporting/brief", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, &fakeLoop{}, &fakeController{}, &fakeBackend{}, &fakeReporting{})

	resp := doJSON(t, http.MethodGet, server.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
