package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/healflow/console-engine/internal/engine"
	"github.com/healflow/console-engine/internal/gate"
	"github.com/healflow/console-engine/internal/models"
	"github.com/healflow/console-engine/internal/notify"
	"github.com/healflow/console-engine/internal/repo"
)

// SnapshotSource is the synchronization loop surface the handlers read and
// steer.
type SnapshotSource interface {
	Snapshot() models.Snapshot
	SetFilters(filters models.Filters)
	TrackSignal(signal models.Signal)
	Refresh(ctx context.Context)
}

// ProcessController is the orchestration surface exposed to operators.
type ProcessController interface {
	StartProcess(ctx context.Context, signal models.Signal) (models.Process, error)
	Approve(ctx context.Context, requestID, notes string) error
	Reject(ctx context.Context, requestID, notes string) error
}

// BackendWriter covers the backend write paths the handlers proxy.
type BackendWriter interface {
	CreateSignal(ctx context.Context, signal models.Signal) error
	ResolveHILRequest(ctx context.Context, requestID string, decision models.HILDecision, notes string) error
	TriggerScenario(ctx context.Context, scenarioType string, severity models.Severity) (models.Signal, error)
}

// ReportingReader covers the analytics read paths.
type ReportingReader interface {
	RevenueAtRisk(ctx context.Context, hours int) (repo.RevenueAtRisk, error)
	ResolutionStats(ctx context.Context, days int) (repo.ResolutionStats, error)
	FrictionLeaderboard(ctx context.Context, limit int) ([]repo.FrictionEntry, error)
	Brief(ctx context.Context) (repo.Brief, error)
	AuditLog(ctx context.Context, limit int) ([]repo.AuditEntry, error)
}

// Handler wires the HTTP surface to the console internals.
type Handler struct {
	logger        *slog.Logger
	loop          SnapshotSource
	processes     ProcessController
	backend       BackendWriter
	reporting     ReportingReader
	notifications *notify.Queue
	scenarios     map[string]Scenario
}

// NewHandler constructs the HTTP handler set.
func NewHandler(
	logger *slog.Logger,
	loop SnapshotSource,
	processes ProcessController,
	backend BackendWriter,
	reporting ReportingReader,
	notifications *notify.Queue,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		loop:          loop,
		processes:     processes,
		backend:       backend,
		reporting:     reporting,
		notifications: notifications,
		scenarios:     Scenarios(),
	}
}

// Routes returns the request multiplexer for the console API.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /api/v1/snapshot", h.handleSnapshot)
	mux.HandleFunc("POST /api/v1/signals", h.handleInjectSignal)
	mux.HandleFunc("POST /api/v1/signals/{id}/process", h.handleStartProcess)
	mux.HandleFunc("POST /api/v1/hil/{id}/approve", h.handleApprove)
	mux.HandleFunc("POST /api/v1/hil/{id}/reject", h.handleReject)
	mux.HandleFunc("PUT /api/v1/filters", h.handleSetFilters)
	mux.HandleFunc("POST /api/v1/notifications/read", h.handleMarkNotificationsRead)
	mux.HandleFunc("POST /api/v1/scenarios/{name}", h.handleTriggerScenario)
	mux.HandleFunc("GET /api/v1/reporting/revenue-at-risk", h.handleRevenueAtRisk)
	mux.HandleFunc("GET /api/v1/reporting/resolution-stats", h.handleResolutionStats)
	mux.HandleFunc("GET /api/v1/reporting/friction", h.handleFriction)
	mux.HandleFunc("GET /api/v1/reporting/brief", h.handleBrief)
	mux.HandleFunc("GET /api/v1/reporting/audit-log", h.handleAuditLog)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.loop.Snapshot()
	unread := 0
	if h.notifications != nil {
		unread = h.notifications.UnreadCount()
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snapshot, unread))
}

type injectSignalRequest struct {
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	Source   string         `json:"source"`
	Endpoint string         `json:"endpoint"`
	EntityID string         `json:"entity_id"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) handleInjectSignal(w http.ResponseWriter, r *http.Request) {
	var body injectSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	severity := models.Severity(body.Severity)
	if !knownSeverity(severity) {
		writeError(w, http.StatusBadRequest, "unknown severity")
		return
	}

	signal := models.Signal{
		ID:        uuid.NewString(),
		Type:      body.Type,
		Severity:  severity,
		Source:    body.Source,
		Endpoint:  body.Endpoint,
		EntityID:  body.EntityID,
		Metadata:  body.Metadata,
		Status:    models.SignalActive,
		CreatedAt: time.Now().UTC(),
	}

	if h.backend != nil {
		if err := h.backend.CreateSignal(r.Context(), signal); err != nil {
			h.logger.Warn("backend signal create failed, keeping local copy",
				slog.String("signal_id", signal.ID),
				slog.Any("error", err))
		}
	}
	h.loop.TrackSignal(signal)

	writeJSON(w, http.StatusCreated, toSignalDTO(signal))
}

func (h *Handler) handleStartProcess(w http.ResponseWriter, r *http.Request) {
	signalID := r.PathValue("id")

	var signal models.Signal
	found := false
	for _, candidate := range h.loop.Snapshot().Signals {
		if candidate.ID == signalID {
			signal = candidate
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "signal not found")
		return
	}
	if signal.Status == models.SignalResolved {
		writeError(w, http.StatusConflict, "signal already resolved")
		return
	}

	process, err := h.processes.StartProcess(context.WithoutCancel(r.Context()), signal)
	if err != nil {
		if errors.Is(err, engine.ErrSignalBusy) {
			writeError(w, http.StatusConflict, "signal already has an active process")
			return
		}
		h.logger.Error("process start failed", slog.String("signal_id", signalID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "process start failed")
		return
	}

	writeJSON(w, http.StatusAccepted, toProcessDTO(process))
}

type resolveHILRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.resolveHIL(w, r, models.DecisionApproved)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.resolveHIL(w, r, models.DecisionRejected)
}

// resolveHIL routes a decision to the owner of the request: the local
// orchestrator first, then the backend for requests the synchronization loop
// pulled in.
func (h *Handler) resolveHIL(w http.ResponseWriter, r *http.Request, decision models.HILDecision) {
	requestID := r.PathValue("id")

	var body resolveHILRequest
	if r.Body != nil {
		// Empty bodies are fine; notes are optional.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var err error
	if decision == models.DecisionApproved {
		err = h.processes.Approve(r.Context(), requestID, body.Notes)
	} else {
		err = h.processes.Reject(r.Context(), requestID, body.Notes)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"id": requestID, "status": string(decision)})
	case errors.Is(err, gate.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "request already resolved")
	case errors.Is(err, gate.ErrNotFound):
		h.resolveBackendHIL(w, r, requestID, decision, body.Notes)
	default:
		h.logger.Error("hil resolution failed", slog.String("request_id", requestID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "resolution failed")
	}
}

func (h *Handler) resolveBackendHIL(w http.ResponseWriter, r *http.Request, requestID string, decision models.HILDecision, notes string) {
	if h.backend == nil || !h.isBackendRequest(requestID) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err := h.backend.ResolveHILRequest(r.Context(), requestID, decision, notes); err != nil {
		h.logger.Error("backend hil resolution failed", slog.String("request_id", requestID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "backend resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": requestID, "status": string(decision)})
}

func (h *Handler) isBackendRequest(requestID string) bool {
	for _, request := range h.loop.Snapshot().HILRequests {
		if request.ID == requestID && request.Origin == models.OriginBackend {
			return true
		}
	}
	return false
}

type setFiltersRequest struct {
	TimeWindow string   `json:"time_window"`
	Phase      string   `json:"phase"`
	Tiers      []string `json:"tiers"`
}

func (h *Handler) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var body setFiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	filters, err := filtersFromRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.loop.SetFilters(filters)
	h.loop.Refresh(r.Context())
	writeJSON(w, http.StatusOK, toFiltersDTO(filters))
}

func filtersFromRequest(body setFiltersRequest) (models.Filters, error) {
	filters := models.DefaultFilters()

	switch body.TimeWindow {
	case "":
	case "1h", "24h", "7d":
		filters.TimeWindow = body.TimeWindow
	default:
		return models.Filters{}, errors.New("time_window must be one of 1h, 24h, 7d")
	}

	switch body.Phase {
	case "":
	case "all", "pre", "migration", "post":
		filters.Phase = body.Phase
	default:
		return models.Filters{}, errors.New("phase must be one of all, pre, migration, post")
	}

	if len(body.Tiers) > 0 {
		tiers := make([]models.EntityTier, 0, len(body.Tiers))
		for _, raw := range body.Tiers {
			tier := models.EntityTier(raw)
			switch tier {
			case models.TierEnterprise, models.TierMidMarket, models.TierSME:
				tiers = append(tiers, tier)
			default:
				return models.Filters{}, errors.New("unknown tier " + raw)
			}
		}
		filters.Tiers = tiers
	}
	return filters, nil
}

func (h *Handler) handleMarkNotificationsRead(w http.ResponseWriter, _ *http.Request) {
	if h.notifications != nil {
		h.notifications.MarkAllRead()
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": 0})
}

func (h *Handler) handleTriggerScenario(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	scenario, ok := h.scenarios[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scenario")
		return
	}

	signal, err := h.triggerScenario(r.Context(), scenario)
	if err != nil {
		h.logger.Warn("backend scenario trigger failed, synthesizing locally",
			slog.String("scenario", name),
			slog.Any("error", err))
		signal = models.Signal{
			ID:        uuid.NewString(),
			Type:      scenario.Type,
			Severity:  scenario.Severity,
			Source:    scenario.Source,
			Endpoint:  scenario.Endpoint,
			Metadata:  scenario.Metadata,
			Status:    models.SignalActive,
			CreatedAt: time.Now().UTC(),
		}
	}
	h.loop.TrackSignal(signal)

	writeJSON(w, http.StatusAccepted, toSignalDTO(signal))
}

func (h *Handler) triggerScenario(ctx context.Context, scenario Scenario) (models.Signal, error) {
	if h.backend == nil {
		return models.Signal{}, errors.New("no backend configured")
	}
	return h.backend.TriggerScenario(ctx, scenario.Type, scenario.Severity)
}

func (h *Handler) handleRevenueAtRisk(w http.ResponseWriter, r *http.Request) {
	if h.reporting == nil {
		writeError(w, http.StatusNotFound, "reporting not configured")
		return
	}
	hours := queryInt(r, "hours", 24)
	out, err := h.reporting.RevenueAtRisk(r.Context(), hours)
	if err != nil {
		h.reportingError(w, "revenue-at-risk", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleResolutionStats(w http.ResponseWriter, r *http.Request) {
	if h.reporting == nil {
		writeError(w, http.StatusNotFound, "reporting not configured")
		return
	}
	days := queryInt(r, "days", 7)
	out, err := h.reporting.ResolutionStats(r.Context(), days)
	if err != nil {
		h.reportingError(w, "resolution-stats", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleFriction(w http.ResponseWriter, r *http.Request) {
	if h.reporting == nil {
		writeError(w, http.StatusNotFound, "reporting not configured")
		return
	}
	limit := queryInt(r, "limit", 10)
	out, err := h.reporting.FrictionLeaderboard(r.Context(), limit)
	if err != nil {
		h.reportingError(w, "friction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Handler) handleBrief(w http.ResponseWriter, r *http.Request) {
	if h.reporting == nil {
		writeError(w, http.StatusNotFound, "reporting not configured")
		return
	}
	out, err := h.reporting.Brief(r.Context())
	if err != nil {
		h.reportingError(w, "brief", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if h.reporting == nil {
		writeError(w, http.StatusNotFound, "reporting not configured")
		return
	}
	limit := queryInt(r, "limit", 50)
	out, err := h.reporting.AuditLog(r.Context(), limit)
	if err != nil {
		h.reportingError(w, "audit-log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Handler) reportingError(w http.ResponseWriter, endpoint string, err error) {
	h.logger.Error("reporting request failed", slog.String("endpoint", endpoint), slog.Any("error", err))
	writeError(w, http.StatusBadGateway, "reporting unavailable")
}

func knownSeverity(severity models.Severity) bool {
	for _, known := range models.KnownSeverities() {
		if severity == known {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
