// Package brief compiles the bounded context bundle fed into the Think
// phase. The bundle is a plain map because it is serialized into the
// prompt as JSON; keys matter to downstream consumers, in particular
// "strategic_principles" is only present when ranked retrieval ran.
package brief

import (
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

// Hard bounds on the bundle. A bigger bundle is not a better one: the
// Think prompt is truncated downstream, so low-signal entries crowd out
// high-signal ones.
const (
	maxProjects            = 10
	maxFindingsPerProject  = 5
	maxReflections         = 10
	minReflectionQuality   = 0.6
	utilityFindingPoolSize = maxProjects * maxFindingsPerProject
)

// MemorySource is what the compiler needs from memory.
type MemorySource interface {
	AcceptedFindings(projectID string, limit int) []memory.ResearchFinding
	RecentReflections(limit int, minQuality float64) []memory.Reflection
}

// utilityRetriever is the optional ranked-retrieval capability. When the
// source supports it and a query is given, the compiler switches to the
// utility path and includes strategic principles.
type utilityRetriever interface {
	RetrieveWithUtility(query, memoryType string, k int) []memory.Retrieved
}

// Compile builds the context bundle. With an empty query (or a source
// without ranked retrieval) the static path runs: findings in storage
// order bucketed by project, recent high-quality reflections, totals.
// With a query and a capable source, findings and reflections are
// ranked against the query and the bundle additionally carries
// strategic_principles and totals.principles_count.
func Compile(mem MemorySource, query string) map[string]any {
	retriever, ok := mem.(utilityRetriever)
	if query == "" || !ok {
		return compileStatic(mem)
	}
	return compileUtility(retriever, query)
}

func compileStatic(mem MemorySource) map[string]any {
	findings := mem.AcceptedFindings("", utilityFindingPoolSize*2)
	byProject := bucketByProject(findings)

	reflections := mem.RecentReflections(maxReflections, minReflectionQuality)

	return map[string]any{
		"accepted_findings_by_project": byProject,
		"high_quality_reflections":     reflectionSummaries(reflections),
		"totals": map[string]any{
			"projects_count":    len(byProject),
			"findings_count":    countFindings(byProject),
			"reflections_count": len(reflections),
		},
	}
}

func compileUtility(retriever utilityRetriever, query string) map[string]any {
	var findings []memory.ResearchFinding
	for _, r := range retriever.RetrieveWithUtility(query, "finding", utilityFindingPoolSize) {
		if r.Finding != nil {
			findings = append(findings, *r.Finding)
		}
	}
	byProject := bucketByProject(findings)

	var reflections []memory.Reflection
	for _, r := range retriever.RetrieveWithUtility(query, "reflection", maxReflections*2) {
		if r.Reflection == nil || r.Reflection.Quality < minReflectionQuality {
			continue
		}
		reflections = append(reflections, *r.Reflection)
		if len(reflections) == maxReflections {
			break
		}
	}

	principles := make([]map[string]any, 0)
	for _, r := range retriever.RetrieveWithUtility(query, "principle", maxReflections) {
		if r.Principle == nil {
			continue
		}
		principles = append(principles, map[string]any{
			"description":    r.Principle.Description,
			"principle_type": r.Principle.PrincipleType,
			"metric_score":   r.Principle.MetricScore,
		})
	}

	return map[string]any{
		"accepted_findings_by_project": byProject,
		"high_quality_reflections":     reflectionSummaries(reflections),
		"strategic_principles":         principles,
		"totals": map[string]any{
			"projects_count":    len(byProject),
			"findings_count":    countFindings(byProject),
			"reflections_count": len(reflections),
			"principles_count":  len(principles),
		},
	}
}

// bucketByProject groups findings by project id preserving input order,
// keeping at most maxProjects projects of maxFindingsPerProject each.
func bucketByProject(findings []memory.ResearchFinding) map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, f := range findings {
		bucket, exists := out[f.ProjectID]
		if !exists && len(out) == maxProjects {
			continue
		}
		if len(bucket) == maxFindingsPerProject {
			continue
		}
		out[f.ProjectID] = append(bucket, map[string]any{
			"url":           f.URL,
			"title":         f.Title,
			"excerpt":       f.Excerpt,
			"novelty_score": f.NoveltyScore,
		})
	}
	return out
}

func reflectionSummaries(reflections []memory.Reflection) []map[string]any {
	out := make([]map[string]any, 0, len(reflections))
	for _, r := range reflections {
		out = append(out, map[string]any{
			"job_id":    r.JobID,
			"outcome":   r.Outcome,
			"quality":   r.Quality,
			"learnings": r.Learnings,
		})
	}
	return out
}

func countFindings(byProject map[string][]map[string]any) int {
	total := 0
	for _, fs := range byProject {
		total += len(fs)
	}
	return total
}
