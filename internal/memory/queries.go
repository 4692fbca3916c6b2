package memory

import (
	"sort"
	"strings"
)

// Every query here returns an empty collection on storage error. The
// caller gets less context, not a failed cycle.

// AcceptedFindings returns accepted findings, newest first. An empty
// projectID returns findings across all projects.
func (s *Store) AcceptedFindings(projectID string, limit int) []ResearchFinding {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, project_id, url, title, excerpt, novelty_score, admission_state, created_at
	          FROM research_findings WHERE admission_state = ?`
	args := []any{AdmissionAccepted}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.log.Warn("accepted findings query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []ResearchFinding
	for rows.Next() {
		var f ResearchFinding
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.URL, &f.Title, &f.Excerpt, &f.NoveltyScore, &f.AdmissionState, &f.CreatedAt); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// RecentReflections returns reflections at or above minQuality, newest first.
func (s *Store) RecentReflections(limit int, minQuality float64) []Reflection {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, job_id, outcome, quality, workflow_id, goal, went_well, went_wrong, learnings, trace_id, created_at
		 FROM reflections WHERE quality >= ? ORDER BY created_at DESC LIMIT ?`,
		minQuality, limit,
	)
	if err != nil {
		s.log.Warn("recent reflections query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []Reflection
	for rows.Next() {
		var r Reflection
		if err := rows.Scan(&r.ID, &r.JobID, &r.Outcome, &r.Quality, &r.WorkflowID, &r.Goal, &r.WentWell, &r.WentWrong, &r.Learnings, &r.TraceID, &r.CreatedAt); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SuccessfulOutcomes returns project outcomes with critic_score >= minCritic,
// newest first. Used by the threshold calibrator.
func (s *Store) SuccessfulOutcomes(minCritic float64, limit int) []ProjectOutcome {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, project_id, status, critic_score, gate_metrics_json, created_at
		 FROM project_outcomes WHERE critic_score >= ? ORDER BY created_at DESC LIMIT ?`,
		minCritic, limit,
	)
	if err != nil {
		s.log.Warn("successful outcomes query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []ProjectOutcome
	for rows.Next() {
		var o ProjectOutcome
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Status, &o.CriticScore, &o.GateMetricsJSON, &o.CreatedAt); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Playbooks returns stored playbooks ordered by success rate.
func (s *Store) Playbooks(limit int) []Playbook {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, domain, strategy, evidence, success_rate, updated_at
		 FROM playbooks ORDER BY success_rate DESC LIMIT ?`, limit,
	)
	if err != nil {
		s.log.Warn("playbooks query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []Playbook
	for rows.Next() {
		var p Playbook
		if err := rows.Scan(&p.ID, &p.Domain, &p.Strategy, &p.Evidence, &p.SuccessRate, &p.UpdatedAt); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Principles returns strategic principles, highest metric score first.
func (s *Store) Principles(limit int) []StrategicPrinciple {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, description, principle_type, metric_score, evidence, created_at
		 FROM strategic_principles ORDER BY metric_score DESC LIMIT ?`, limit,
	)
	if err != nil {
		s.log.Warn("principles query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []StrategicPrinciple
	for rows.Next() {
		var p StrategicPrinciple
		if err := rows.Scan(&p.ID, &p.Description, &p.PrincipleType, &p.MetricScore, &p.Evidence, &p.CreatedAt); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// StateSummary is the bounded memory view fed into the Think prompt.
// Only reflections with quality >= 0.6 are included.
func (s *Store) StateSummary() StateSummary {
	return StateSummary{
		RecentReflections: s.RecentReflections(10, 0.6),
	}
}

// retrievalScanLimit bounds how many recent rows the utility ranking
// considers per type.
const retrievalScanLimit = 500

// RetrieveWithUtility ranks memories of the given type against a query.
// The score is keyword overlap weighted by the record's own utility
// signal (novelty for findings, quality for reflections, metric score
// for principles). memoryType is one of "finding", "reflection",
// "principle". Returns at most k results, best first.
func (s *Store) RetrieveWithUtility(query, memoryType string, k int) []Retrieved {
	if k <= 0 {
		k = 5
	}
	words := tokenize(query)
	if len(words) == 0 {
		return nil
	}

	var out []Retrieved
	switch memoryType {
	case "finding":
		for _, f := range s.AcceptedFindings("", retrievalScanLimit) {
			f := f
			score := overlap(words, f.Title+" "+f.Excerpt) * utilityWeight(f.NoveltyScore)
			if score > 0 {
				out = append(out, Retrieved{Kind: "finding", Score: score, Finding: &f})
			}
		}
	case "reflection":
		for _, r := range s.RecentReflections(retrievalScanLimit, 0) {
			r := r
			score := overlap(words, r.Outcome+" "+r.Learnings+" "+r.Goal) * utilityWeight(r.Quality)
			if score > 0 {
				out = append(out, Retrieved{Kind: "reflection", Score: score, Reflection: &r})
			}
		}
	case "principle":
		for _, p := range s.Principles(retrievalScanLimit) {
			p := p
			score := overlap(words, p.Description+" "+p.Evidence) * utilityWeight(p.MetricScore)
			if score > 0 {
				out = append(out, Retrieved{Kind: "principle", Score: score, Principle: &p})
			}
		}
	default:
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// utilityWeight keeps zero-utility records retrievable at a discount.
func utilityWeight(v float64) float64 {
	return 0.25 + 0.75*clamp01(v)
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, w := range fields {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// overlap returns the fraction of query words present in text.
func overlap(queryWords []string, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range queryWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryWords))
}
