// Package memory provides the operator's durable memory: episodes,
// decisions, reflections, quality scores, playbooks, research findings,
// project outcomes and strategic principles, stored in SQLite.
//
// Failure semantics are deliberate: reads return empty collections on
// any storage error and writes are best-effort. The cognitive loop must
// make progress under partial storage failure, so nothing in this
// package panics or aborts a caller.
package memory

import "time"

// Episode is a free-form event record ("perceive", "act", "act_error",
// "cycle_complete", ...).
type Episode struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Decision records one reasoning step of the loop.
type Decision struct {
	ID         string    `json:"id"`
	Phase      string    `json:"phase"`
	Inputs     string    `json:"inputs"`
	Reasoning  string    `json:"reasoning"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	TraceID    string    `json:"trace_id,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reflection records what a finished job taught the operator.
type Reflection struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Outcome    string    `json:"outcome"`
	Quality    float64   `json:"quality"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	Goal       string    `json:"goal,omitempty"`
	WentWell   string    `json:"went_well,omitempty"`
	WentWrong  string    `json:"went_wrong,omitempty"`
	Learnings  string    `json:"learnings,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// QualityRecord scores one job in [0, 1].
type QualityRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Score      float64   `json:"score"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Playbook is a domain-keyed strategy with an evolving success rate.
type Playbook struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Strategy    string    `json:"strategy"`
	Evidence    string    `json:"evidence,omitempty"`
	SuccessRate float64   `json:"success_rate"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Admission states for research findings.
const (
	AdmissionPending     = "pending"
	AdmissionAccepted    = "accepted"
	AdmissionQuarantined = "quarantined"
)

// ResearchFinding is extracted content admitted into memory.
type ResearchFinding struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Excerpt        string    `json:"excerpt"`
	NoveltyScore   float64   `json:"novelty_score"`
	AdmissionState string    `json:"admission_state"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProjectOutcome records how a research project ended, with the gate
// metrics frozen at decision time for later threshold calibration.
type ProjectOutcome struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Status          string    `json:"status"`
	CriticScore     float64   `json:"critic_score"`
	GateMetricsJSON string    `json:"gate_metrics_json,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Principle types.
const (
	PrincipleGuiding    = "guiding"
	PrincipleCautionary = "cautionary"
)

// StrategicPrinciple is a distilled lesson carried verbatim into the
// Think prompt.
type StrategicPrinciple struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	PrincipleType string    `json:"principle_type"`
	MetricScore   float64   `json:"metric_score"`
	Evidence      string    `json:"evidence,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Retrieved is one ranked result from RetrieveWithUtility. Exactly one
// of the record pointers is set, matching Kind.
type Retrieved struct {
	Kind       string              `json:"kind"` // finding | reflection | principle
	Score      float64             `json:"score"`
	Finding    *ResearchFinding    `json:"finding,omitempty"`
	Reflection *Reflection         `json:"reflection,omitempty"`
	Principle  *StrategicPrinciple `json:"principle,omitempty"`
}

// StateSummary is the bounded view Perceive feeds into the prompt.
type StateSummary struct {
	RecentReflections []Reflection `json:"recent_reflections"`
}
