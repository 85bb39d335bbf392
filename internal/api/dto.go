package api

import (
	"time"

	"github.com/healflow/console-engine/internal/models"
)

type signalDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Source    string         `json:"source"`
	Endpoint  string         `json:"endpoint,omitempty"`
	EntityID  string         `json:"entity_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

func toSignalDTO(s models.Signal) signalDTO {
	return signalDTO{
		ID:        s.ID,
		Type:      s.Type,
		Severity:  string(s.Severity),
		Source:    s.Source,
		Endpoint:  s.Endpoint,
		EntityID:  s.EntityID,
		Metadata:  s.Metadata,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
	}
}

type agentDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	CurrentTaskSignalID string `json:"current_task_signal_id,omitempty"`
	CurrentTaskStage    string `json:"current_task_stage,omitempty"`
	CurrentTaskProgress int    `json:"current_task_progress,omitempty"`
}

func toAgentDTO(a models.Agent) agentDTO {
	return agentDTO{
		ID:                  a.ID,
		Name:                a.Name,
		Type:                a.Type,
		Status:              string(a.Status),
		CurrentTaskSignalID: a.CurrentTaskSignalID,
		CurrentTaskStage:    a.CurrentTaskStage,
		CurrentTaskProgress: a.CurrentTaskProgress,
	}
}

type solutionDTO struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Confidence  int    `json:"confidence"`
	RiskLevel   string `json:"risk_level"`
}

type actionDTO struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type processDTO struct {
	ID       string `json:"id"`
	SignalID string `json:"signal_id"`

	Stages map[string]string `json:"stages"`

	ObserveFindings      []string     `json:"observe_findings,omitempty"`
	OrientContext        string       `json:"orient_context,omitempty"`
	OrientRelated        []string     `json:"orient_related,omitempty"`
	DecideChainOfThought []string     `json:"decide_chain_of_thought,omitempty"`
	ProposedSolution     *solutionDTO `json:"proposed_solution,omitempty"`
	ActionsTaken         []actionDTO  `json:"actions_taken,omitempty"`

	Outcome          string     `json:"outcome"`
	Stalled          bool       `json:"stalled,omitempty"`
	StepError        string     `json:"step_error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func toProcessDTO(p models.Process) processDTO {
	dto := processDTO{
		ID:       p.ID,
		SignalID: p.SignalID,
		Stages: map[string]string{
			string(models.StageObserve): string(p.ObserveStatus),
			string(models.StageOrient):  string(p.OrientStatus),
			string(models.StageDecide):  string(p.DecideStatus),
			string(models.StageAct):     string(p.ActStatus),
		},
		ObserveFindings:      p.ObserveFindings,
		OrientContext:        p.OrientContext,
		OrientRelated:        p.OrientRelated,
		DecideChainOfThought: p.DecideChainOfThought,
		Outcome:              string(p.Outcome),
		Stalled:              p.Stalled,
		StepError:            p.StepError,
		StartedAt:            p.StartedAt,
		LastTransitionAt:     p.LastTransitionAt,
	}
	if p.ProposedSolution != nil {
		dto.ProposedSolution = &solutionDTO{
			Type:        p.ProposedSolution.Type,
			Description: p.ProposedSolution.Description,
			Confidence:  p.ProposedSolution.Confidence,
			RiskLevel:   string(p.ProposedSolution.RiskLevel),
		}
	}
	for _, action := range p.ActionsTaken {
		dto.ActionsTaken = append(dto.ActionsTaken, actionDTO{Type: action.Type, Description: action.Description})
	}
	if !p.CompletedAt.IsZero() {
		completed := p.CompletedAt
		dto.CompletedAt = &completed
	}
	return dto
}

type hilMetricsDTO struct {
	Confidence    int     `json:"confidence"`
	RevenueAtRisk float64 `json:"revenue_at_risk"`
	ImpactScope   string  `json:"impact_scope"`
}

type hilRequestDTO struct {
	ID             string        `json:"id"`
	ProcessID      string        `json:"process_id,omitempty"`
	SignalID       string        `json:"signal_id"`
	Title          string        `json:"title"`
	ProposedAction solutionDTO   `json:"proposed_action"`
	RiskLevel      string        `json:"risk_level"`
	Metrics        hilMetricsDTO `json:"metrics"`
	Origin         string        `json:"origin"`
	Status         string        `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func toHILRequestDTO(r models.HILRequest) hilRequestDTO {
	return hilRequestDTO{
		ID:        r.ID,
		ProcessID: r.ProcessID,
		SignalID:  r.SignalID,
		Title:     r.Title,
		ProposedAction: solutionDTO{
			Type:        r.ProposedAction.Type,
			Description: r.ProposedAction.Description,
			Confidence:  r.ProposedAction.Confidence,
			RiskLevel:   string(r.ProposedAction.RiskLevel),
		},
		RiskLevel: string(r.RiskLevel),
		Metrics: hilMetricsDTO{
			Confidence:    r.Metrics.Confidence,
			RevenueAtRisk: r.Metrics.RevenueAtRisk,
			ImpactScope:   r.Metrics.ImpactScope,
		},
		Origin:    string(r.Origin),
		Status:    string(r.Status),
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
	}
}

type entityDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
	Phase string `json:"phase"`
}

type notificationDTO struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	SourceID  string    `json:"source_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type filtersDTO struct {
	TimeWindow string   `json:"time_window"`
	Phase      string   `json:"phase"`
	Tiers      []string `json:"tiers"`
}

func toFiltersDTO(f models.Filters) filtersDTO {
	tiers := make([]string, 0, len(f.Tiers))
	for _, tier := range f.Tiers {
		tiers = append(tiers, string(tier))
	}
	return filtersDTO{TimeWindow: f.TimeWindow, Phase: f.Phase, Tiers: tiers}
}

type snapshotDTO struct {
	Signals          []signalDTO       `json:"signals"`
	Agents           []agentDTO        `json:"agents"`
	Processes        []processDTO      `json:"processes"`
	HILRequests      []hilRequestDTO   `json:"hil_requests"`
	Entities         []entityDTO       `json:"entities"`
	EntitySeverities map[string]string `json:"entity_severities"`
	Notifications    []notificationDTO `json:"notifications"`
	UnreadCount      int               `json:"unread_count"`
	Filters          filtersDTO        `json:"filters"`
	RefreshedAt      time.Time         `json:"refreshed_at"`
}

func toSnapshotDTO(s models.Snapshot, unread int) snapshotDTO {
	dto := snapshotDTO{
		Signals:          make([]signalDTO, 0, len(s.Signals)),
		Agents:           make([]agentDTO, 0, len(s.Agents)),
		Processes:        make([]processDTO, 0, len(s.Processes)),
		HILRequests:      make([]hilRequestDTO, 0, len(s.HILRequests)),
		Entities:         make([]entityDTO, 0, len(s.Entities)),
		EntitySeverities: make(map[string]string, len(s.EntitySeverities)),
		Notifications:    make([]notificationDTO, 0, len(s.Notifications)),
		UnreadCount:      unread,
		Filters:          toFiltersDTO(s.Filters),
		RefreshedAt:      s.RefreshedAt,
	}
	for _, signal := range s.Signals {
		dto.Signals = append(dto.Signals, toSignalDTO(signal))
	}
	for _, agent := range s.Agents {
		dto.Agents = append(dto.Agents, toAgentDTO(agent))
	}
	for _, process := range s.Processes {
		dto.Processes = append(dto.Processes, toProcessDTO(process))
	}
	for _, request := range s.HILRequests {
		dto.HILRequests = append(dto.HILRequests, toHILRequestDTO(request))
	}
	for _, entity := range s.Entities {
		dto.Entities = append(dto.Entities, entityDTO{
			ID:    entity.ID,
			Name:  entity.Name,
			Tier:  string(entity.Tier),
			Phase: entity.Phase,
		})
	}
	for id, tier := range s.EntitySeverities {
		dto.EntitySeverities[id] = string(tier)
	}
	for _, event := range s.Notifications {
		dto.Notifications = append(dto.Notifications, notificationDTO{
			ID:        event.ID,
			Category:  string(event.Category),
			Title:     event.Title,
			SourceID:  event.SourceID,
			CreatedAt: event.CreatedAt,
		})
	}
	return dto
}
