package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store provides durable operator memory backed by SQLite.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the memory database under dir. This is the one
// place in the operator where a storage error is fatal: without memory
// the loop cannot learn, so construction refuses to proceed.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	dbPath := filepath.Join(dir, "memory.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT,
		trace_id TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		inputs TEXT,
		reasoning TEXT,
		decision TEXT,
		confidence REAL,
		trace_id TEXT,
		job_id TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reflections (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		outcome TEXT,
		quality REAL NOT NULL,
		workflow_id TEXT,
		goal TEXT,
		went_well TEXT,
		went_wrong TEXT,
		learnings TEXT,
		trace_id TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS quality (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		score REAL NOT NULL,
		workflow_id TEXT,
		notes TEXT,
		trace_id TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS playbooks (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL UNIQUE,
		strategy TEXT NOT NULL,
		evidence TEXT,
		success_rate REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS research_findings (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		excerpt TEXT,
		novelty_score REAL NOT NULL DEFAULT 0.5,
		admission_state TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS project_outcomes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		status TEXT NOT NULL,
		critic_score REAL NOT NULL,
		gate_metrics_json TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS strategic_principles (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		principle_type TEXT NOT NULL,
		metric_score REAL NOT NULL,
		evidence TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_project ON research_findings(project_id, admission_state);
	CREATE INDEX IF NOT EXISTS idx_reflections_quality ON reflections(quality);
	CREATE INDEX IF NOT EXISTS idx_outcomes_score ON project_outcomes(critic_score);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordEpisode stores a free-form event. Best-effort: the error is
// logged and returned but callers treat it as advisory.
func (s *Store) RecordEpisode(kind, text string, metadata map[string]any, traceID string) error {
	var meta []byte
	if metadata != nil {
		meta, _ = json.Marshal(metadata)
	}
	_, err := s.db.Exec(
		`INSERT INTO episodes (id, kind, text, metadata, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), kind, text, string(meta), traceID, time.Now().UTC(),
	)
	if err != nil {
		s.log.Warn("record episode failed", "kind", kind, "error", err)
	}
	return err
}

// RecordDecision stores a reasoning step.
func (s *Store) RecordDecision(d Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO decisions (id, phase, inputs, reasoning, decision, confidence, trace_id, job_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Phase, d.Inputs, d.Reasoning, d.Decision, d.Confidence, d.TraceID, d.JobID, d.CreatedAt,
	)
	if err != nil {
		s.log.Warn("record decision failed", "phase", d.Phase, "error", err)
	}
	return err
}

// RecordReflection stores what a job taught us.
func (s *Store) RecordReflection(r Reflection) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO reflections (id, job_id, outcome, quality, workflow_id, goal, went_well, went_wrong, learnings, trace_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.Outcome, r.Quality, r.WorkflowID, r.Goal, r.WentWell, r.WentWrong, r.Learnings, r.TraceID, r.CreatedAt,
	)
	if err != nil {
		s.log.Warn("record reflection failed", "job_id", r.JobID, "error", err)
	}
	return err
}

// RecordQuality stores a job quality score.
func (s *Store) RecordQuality(q QualityRecord) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO quality (id, job_id, score, workflow_id, notes, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.JobID, q.Score, q.WorkflowID, q.Notes, q.TraceID, q.CreatedAt,
	)
	if err != nil {
		s.log.Warn("record quality failed", "job_id", q.JobID, "error", err)
	}
	return err
}

// UpsertPlaybook inserts or updates the playbook for a domain. The
// success rate is smoothed toward the new value rather than replaced:
// rate' = 0.7*old + 0.3*new. Strategy and evidence take the new values.
func (s *Store) UpsertPlaybook(domain, strategy, evidence string, successRate float64) error {
	now := time.Now().UTC()
	var existing float64
	err := s.db.QueryRow(`SELECT success_rate FROM playbooks WHERE domain = ?`, domain).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(
			`INSERT INTO playbooks (id, domain, strategy, evidence, success_rate, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), domain, strategy, evidence, clamp01(successRate), now,
		)
	case err == nil:
		smoothed := clamp01(0.7*existing + 0.3*successRate)
		_, err = s.db.Exec(
			`UPDATE playbooks SET strategy = ?, evidence = ?, success_rate = ?, updated_at = ? WHERE domain = ?`,
			strategy, evidence, smoothed, now, domain,
		)
	}
	if err != nil {
		s.log.Warn("upsert playbook failed", "domain", domain, "error", err)
	}
	return err
}

// AddResearchFinding stores a finding; admission defaults to pending.
func (s *Store) AddResearchFinding(f ResearchFinding) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.AdmissionState == "" {
		f.AdmissionState = AdmissionPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO research_findings (id, project_id, url, title, excerpt, novelty_score, admission_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ProjectID, f.URL, f.Title, f.Excerpt, f.NoveltyScore, f.AdmissionState, f.CreatedAt,
	)
	if err != nil {
		s.log.Warn("add finding failed", "project_id", f.ProjectID, "error", err)
	}
	return err
}

// SetAdmissionState moves a finding between pending/accepted/quarantined.
func (s *Store) SetAdmissionState(findingID, state string) error {
	_, err := s.db.Exec(`UPDATE research_findings SET admission_state = ? WHERE id = ?`, state, findingID)
	if err != nil {
		s.log.Warn("set admission state failed", "finding_id", findingID, "error", err)
	}
	return err
}

// RecordOutcome stores how a project ended.
func (s *Store) RecordOutcome(o ProjectOutcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO project_outcomes (id, project_id, status, critic_score, gate_metrics_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.ProjectID, o.Status, o.CriticScore, o.GateMetricsJSON, o.CreatedAt,
	)
	if err != nil {
		s.log.Warn("record outcome failed", "project_id", o.ProjectID, "error", err)
	}
	return err
}

// AddStrategicPrinciple stores a distilled lesson.
func (s *Store) AddStrategicPrinciple(p StrategicPrinciple) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PrincipleType == "" {
		p.PrincipleType = PrincipleGuiding
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO strategic_principles (id, description, principle_type, metric_score, evidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Description, p.PrincipleType, clamp01(p.MetricScore), p.Evidence, p.CreatedAt,
	)
	if err != nil {
		s.log.Warn("add principle failed", "error", err)
	}
	return err
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
