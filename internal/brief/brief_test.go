package brief

import (
	"fmt"
	"testing"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

// staticSource implements MemorySource without ranked retrieval.
type staticSource struct {
	findings    []memory.ResearchFinding
	reflections []memory.Reflection
}

func (s *staticSource) AcceptedFindings(projectID string, limit int) []memory.ResearchFinding {
	if limit < len(s.findings) {
		return s.findings[:limit]
	}
	return s.findings
}

func (s *staticSource) RecentReflections(limit int, minQuality float64) []memory.Reflection {
	var out []memory.Reflection
	for _, r := range s.reflections {
		if r.Quality >= minQuality {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

// utilitySource adds ranked retrieval on top of staticSource.
type utilitySource struct {
	staticSource
	principles []memory.StrategicPrinciple
}

func (s *utilitySource) RetrieveWithUtility(query, memoryType string, k int) []memory.Retrieved {
	var out []memory.Retrieved
	switch memoryType {
	case "finding":
		for i := range s.findings {
			out = append(out, memory.Retrieved{Kind: "finding", Finding: &s.findings[i]})
		}
	case "reflection":
		for i := range s.reflections {
			out = append(out, memory.Retrieved{Kind: "reflection", Reflection: &s.reflections[i]})
		}
	case "principle":
		for i := range s.principles {
			out = append(out, memory.Retrieved{Kind: "principle", Principle: &s.principles[i]})
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func TestStaticPathOmitsPrinciples(t *testing.T) {
	src := &staticSource{
		findings: []memory.ResearchFinding{
			{ProjectID: "proj-1", URL: "https://a.com", Title: "A"},
		},
		reflections: []memory.Reflection{{JobID: "j1", Quality: 0.8}},
	}

	bundle := Compile(src, "")
	if _, present := bundle["strategic_principles"]; present {
		t.Error("static path must not carry the strategic_principles key")
	}
	if _, present := bundle["accepted_findings_by_project"]; !present {
		t.Error("bundle missing accepted_findings_by_project")
	}
}

func TestStaticPathOnSourceWithoutRetrieval(t *testing.T) {
	src := &staticSource{}
	// A query with no ranked retrieval still takes the static path.
	bundle := Compile(src, "quantum error correction")
	if _, present := bundle["strategic_principles"]; present {
		t.Error("source without ranked retrieval must use the static path")
	}
}

func TestUtilityPathIncludesPrinciples(t *testing.T) {
	src := &utilitySource{
		staticSource: staticSource{
			findings:    []memory.ResearchFinding{{ProjectID: "proj-1", URL: "https://a.com"}},
			reflections: []memory.Reflection{{JobID: "j1", Quality: 0.9, Learnings: "verify early"}},
		},
		principles: []memory.StrategicPrinciple{
			{Description: "Prefer primary sources", PrincipleType: memory.PrincipleGuiding, MetricScore: 0.7},
		},
	}

	bundle := Compile(src, "sources")
	principles, present := bundle["strategic_principles"]
	if !present {
		t.Fatal("utility path must carry strategic_principles")
	}
	list := principles.([]map[string]any)
	if len(list) != 1 || list[0]["principle_type"] != memory.PrincipleGuiding {
		t.Errorf("principles = %v", list)
	}

	totals := bundle["totals"].(map[string]any)
	if totals["principles_count"] != 1 {
		t.Errorf("principles_count = %v, want 1", totals["principles_count"])
	}
}

func TestUtilityPathPrinciplesKeyPresentWhenEmpty(t *testing.T) {
	src := &utilitySource{}
	bundle := Compile(src, "anything")
	if _, present := bundle["strategic_principles"]; !present {
		t.Error("key must be present on the utility path even with no principles")
	}
}

func TestBucketBounds(t *testing.T) {
	var findings []memory.ResearchFinding
	for p := 0; p < 15; p++ {
		for f := 0; f < 8; f++ {
			findings = append(findings, memory.ResearchFinding{
				ProjectID: fmt.Sprintf("proj-%d", p),
				URL:       fmt.Sprintf("https://p%d-f%d.com", p, f),
			})
		}
	}
	src := &staticSource{findings: findings}

	bundle := Compile(src, "")
	byProject := bundle["accepted_findings_by_project"].(map[string][]map[string]any)
	if len(byProject) > 10 {
		t.Errorf("%d projects in bundle, max is 10", len(byProject))
	}
	for id, fs := range byProject {
		if len(fs) > 5 {
			t.Errorf("project %s has %d findings, max is 5", id, len(fs))
		}
	}
}

func TestReflectionQualityFloorOnUtilityPath(t *testing.T) {
	src := &utilitySource{
		staticSource: staticSource{
			reflections: []memory.Reflection{
				{JobID: "good", Quality: 0.7},
				{JobID: "bad", Quality: 0.3},
			},
		},
	}
	bundle := Compile(src, "query")
	reflections := bundle["high_quality_reflections"].([]map[string]any)
	for _, r := range reflections {
		if r["job_id"] == "bad" {
			t.Error("low-quality reflection leaked into the bundle")
		}
	}
}
