package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type signal struct {
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

type agent struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	CurrentTaskSignalID string `json:"current_task_signal_id,omitempty"`
	CurrentTaskStage    string `json:"current_task_stage,omitempty"`
	CurrentTaskProgress int    `json:"current_task_progress,omitempty"`
}

type merchant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
	Phase string `json:"migration_phase"`
}

type hilRequest struct {
	ID             string         `json:"id"`
	SignalID       string         `json:"signal_id"`
	Title          string         `json:"title"`
	Status         string         `json:"status"`
	RiskLevel      string         `json:"risk_level"`
	Notes          string         `json:"notes,omitempty"`
	ProposedAction map[string]any `json:"proposed_action"`
	Metrics        map[string]any `json:"metrics"`
	CreatedAt      time.Time      `json:"created_at"`
}

type store struct {
	mu       sync.Mutex
	signals  []signal
	agents   []agent
	requests []hilRequest
	nextID   int
}

func newStore() *store {
	now := time.Now().UTC()
	return &store{
		nextID: 100,
		signals: []signal{
			{
				ID: "sig-1", Type: "STRIPE_LATENCY_HIGH", Severity: "WARN",
				Source: "PaymentGateway", Endpoint: "/api/v1/payments/process",
				EntityID: "merch-001",
				Metadata: map[string]any{"latency": "847ms", "threshold": "200ms"},
				Status:   "active", CreatedAt: now.Add(-10 * time.Minute),
			},
			{
				ID: "sig-2", Type: "TOKEN_INVALID", Severity: "ERROR",
				Source: "AuthService", Endpoint: "/api/v1/auth/verify",
				EntityID: "merch-002",
				Metadata: map[string]any{"error": "JWT_EXPIRED", "failed_logins": 342},
				Status:   "active", CreatedAt: now.Add(-5 * time.Minute),
			},
		},
		agents: []agent{
			{ID: "agent-1", Name: "Sentinel", Type: "observer", Status: "idle"},
			{ID: "agent-2", Name: "Pathfinder", Type: "diagnostics", Status: "idle"},
			{ID: "agent-3", Name: "Mechanic", Type: "remediation", Status: "idle"},
		},
	}
}

var merchants = []merchant{
	{ID: "merch-001", Name: "Northwind Traders", Tier: "enterprise", Phase: "migration"},
	{ID: "merch-002", Name: "Acme Outfitters", Tier: "mid_market", Phase: "post"},
	{ID: "merch-003", Name: "Bluebird Goods", Tier: "sme", Phase: "pre"},
}

func main() {
	st := newStore()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/signals", func(w http.ResponseWriter, r *http.Request) {
		tiers := map[string]bool{}
		if raw := r.URL.Query().Get("tier"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				tiers[t] = true
			}
		}
		phase := r.URL.Query().Get("phase")

		st.mu.Lock()
		out := make([]signal, 0, len(st.signals))
		for _, s := range st.signals {
			if !matchesMerchant(s.EntityID, tiers, phase) {
				continue
			}
			out = append(out, s)
		}
		st.mu.Unlock()
		writeJSON(w, map[string]any{"data": out, "count": len(out)})
	})

	mux.HandleFunc("POST /api/signals", func(w http.ResponseWriter, r *http.Request) {
		var s signal
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		st.mu.Lock()
		if s.ID == "" {
			s.ID = st.newID("sig")
		}
		if s.Status == "" {
			s.Status = "active"
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = time.Now().UTC()
		}
		st.signals = append([]signal{s}, st.signals...)
		st.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, s)
	})

	mux.HandleFunc("PUT /api/signals/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := r.PathValue("id")
		st.mu.Lock()
		defer st.mu.Unlock()
		for i := range st.signals {
			if st.signals[i].ID == id {
				st.signals[i].Status = body.Status
				writeJSON(w, st.signals[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("GET /api/agents", func(w http.ResponseWriter, _ *http.Request) {
		st.mu.Lock()
		out := append([]agent(nil), st.agents...)
		st.mu.Unlock()
		writeJSON(w, map[string]any{"data": out, "count": len(out)})
	})

	mux.HandleFunc("GET /api/hil-requests", func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		st.mu.Lock()
		out := make([]hilRequest, 0, len(st.requests))
		for _, req := range st.requests {
			if status == "" || req.Status == status {
				out = append(out, req)
			}
		}
		st.mu.Unlock()
		writeJSON(w, map[string]any{"data": out, "count": len(out)})
	})

	mux.HandleFunc("POST /api/hil-requests/{id}/resolve", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string `json:"action"`
			Notes  string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := r.PathValue("id")
		st.mu.Lock()
		defer st.mu.Unlock()
		for i := range st.requests {
			if st.requests[i].ID != id {
				continue
			}
			if st.requests[i].Status != "pending" {
				w.WriteHeader(http.StatusConflict)
				return
			}
			st.requests[i].Status = body.Action
			st.requests[i].Notes = body.Notes
			writeJSON(w, st.requests[i])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("GET /api/merchants", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"data": merchants, "count": len(merchants)})
	})

	mux.HandleFunc("POST /api/simulations/trigger", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type     string `json:"type"`
			Severity string `json:"severity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Type == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Severity == "" {
			body.Severity = "CRITICAL"
		}
		st.mu.Lock()
		s := signal{
			ID:        st.newID("sig"),
			Type:      body.Type,
			Severity:  body.Severity,
			Source:    "SimulationEngine",
			EntityID:  merchants[rand.Intn(len(merchants))].ID,
			Metadata:  map[string]any{"simulated": true},
			Status:    "active",
			CreatedAt: time.Now().UTC(),
		}
		st.signals = append([]signal{s}, st.signals...)
		st.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, s)
	})

	mux.HandleFunc("GET /api/analytics/revenue-at-risk", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"window_hours": 24, "total_amount": 45000.0, "signal_count": 3, "currency": "USD",
		})
	})

	mux.HandleFunc("GET /api/analytics/resolution-stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"window_days": 7, "resolved": 41, "cancelled": 4,
			"avg_resolution_seconds": 38.5, "approval_rate": 0.91,
		})
	})

	mux.HandleFunc("GET /api/analytics/friction", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]any{
				{"subject": "/api/v1/checkout/payment", "signal_count": 14, "top_severity": "CRITICAL"},
				{"subject": "/api/v1/auth/verify", "signal_count": 9, "top_severity": "ERROR"},
			},
			"count": 2,
		})
	})

	mux.HandleFunc("GET /api/brief", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"headline":     "Migration stable, payment latency elevated",
			"body":         "Two active signals. Stripe latency remains above threshold for enterprise merchants in migration.",
			"generated_at": time.Now().UTC(),
		})
	})

	mux.HandleFunc("GET /api/audit-log", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]any{
				{
					"id": "audit-1", "actor": "operator", "action": "hil_approved",
					"subject_id": "hil-9", "detail": "schema change approved",
					"created_at": time.Now().UTC().Add(-20 * time.Minute),
				},
			},
			"count": 1,
		})
	})

	logger := log.New(log.Writer(), "backend-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func (st *store) newID(prefix string) string {
	st.nextID++
	return fmt.Sprintf("%s-%d", prefix, st.nextID)
}

func matchesMerchant(merchantID string, tiers map[string]bool, phase string) bool {
	if merchantID == "" {
		return true
	}
	for _, m := range merchants {
		if m.ID != merchantID {
			continue
		}
		if len(tiers) > 0 && !tiers[m.Tier] {
			return false
		}
		if phase != "" && phase != "all" && m.Phase != phase {
			return false
		}
		return true
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
