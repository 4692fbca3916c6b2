// Package research reads and writes the on-disk research records: one
// directory per project holding project.json plus findings, sources,
// verification artifacts and reports produced by the shell workflows.
//
// Readers here are tolerant by design. A malformed file is skipped, a
// missing directory reads as empty. The evidence gate and the brain
// both depend on reads never failing hard.
package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Project statuses. Anything prefixed failed_ is terminal too.
const (
	StatusRunning    = "running"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
	StatusAbandoned  = "abandoned"
	StatusAEMBlocked = "aem_blocked"
)

// Research modes.
const (
	ModeStandard  = "standard"
	ModeFrontier  = "frontier"
	ModeDiscovery = "discovery"
)

// ProjectConfig holds per-project settings.
type ProjectConfig struct {
	ResearchMode string `json:"research_mode,omitempty"`
}

// QualityGateRecord is the gate's verdict stored on the project.
type QualityGateRecord struct {
	Status      string         `json:"status"`
	FailCode    string         `json:"fail_code,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Project is a persisted research task.
type Project struct {
	ID          string             `json:"id"`
	Question    string             `json:"question"`
	Phase       string             `json:"phase,omitempty"`
	Status      string             `json:"status"`
	ParentID    string             `json:"parent_id,omitempty"`
	Config      *ProjectConfig     `json:"config,omitempty"`
	QualityGate *QualityGateRecord `json:"quality_gate,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	LastPhaseAt time.Time          `json:"last_phase_at"`

	// Dir is where the project was loaded from. Not serialized.
	Dir string `json:"-"`
}

// Mode returns the project's research mode, defaulting to standard.
func (p *Project) Mode() string {
	if p.Config != nil && p.Config.ResearchMode != "" {
		return p.Config.ResearchMode
	}
	return ModeStandard
}

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusDone, StatusCancelled, StatusAbandoned:
		return true
	}
	return strings.HasPrefix(status, "failed_")
}

// LoadProject reads project.json from a project directory.
func LoadProject(dir string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, "project.json"))
	if err != nil {
		return nil, err
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project.json in %s: %w", dir, err)
	}
	p.Dir = dir
	return &p, nil
}

// SaveProject writes project.json back to the project directory.
func SaveProject(p *Project) error {
	if p.Dir == "" {
		return fmt.Errorf("project %s has no directory", p.ID)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.Dir, "project.json"), data, 0644)
}

// ErrTerminalTransition is returned when a status change would move a
// terminal project back to a non-terminal status.
var ErrTerminalTransition = fmt.Errorf("terminal project status cannot transition to non-terminal")

// SetStatus transitions the project status, enforcing the terminal
// invariant: once terminal, a project never becomes non-terminal again.
func SetStatus(p *Project, status string) error {
	if IsTerminal(p.Status) && !IsTerminal(status) {
		return ErrTerminalTransition
	}
	p.Status = status
	return nil
}

// ListProjects scans researchDir for project directories. Ordering:
// non-done projects first, then by last_phase_at descending, capped at
// 25 entries. Directories without a readable project.json are skipped.
func ListProjects(researchDir string) []*Project {
	entries, err := os.ReadDir(researchDir)
	if err != nil {
		return nil
	}

	var projects []*Project
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "proj-") {
			continue
		}
		p, err := LoadProject(filepath.Join(researchDir, e.Name()))
		if err != nil {
			continue
		}
		projects = append(projects, p)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		iDone := projects[i].Status == StatusDone
		jDone := projects[j].Status == StatusDone
		if iDone != jDone {
			return !iDone
		}
		return projects[i].LastPhaseAt.After(projects[j].LastPhaseAt)
	})

	if len(projects) > 25 {
		projects = projects[:25]
	}
	return projects
}

// maxFollowUpDepth bounds recursion over follow-up chains. Parent links
// should form a tree, but a corrupted record could introduce a cycle.
const maxFollowUpDepth = 5

// FollowUps returns the children of rootID (projects whose parent chain
// leads to it), walking at most maxFollowUpDepth levels.
func FollowUps(projects []*Project, rootID string) []*Project {
	byParent := make(map[string][]*Project)
	for _, p := range projects {
		if p.ParentID != "" {
			byParent[p.ParentID] = append(byParent[p.ParentID], p)
		}
	}

	var out []*Project
	frontier := []string{rootID}
	for depth := 0; depth < maxFollowUpDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, child := range byParent[id] {
				out = append(out, child)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return out
}

// PlaybookFile is a strategy hint stored under research/playbooks/.
type PlaybookFile struct {
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
}

// LoadPlaybookFiles reads research/playbooks/*.json, skipping malformed files.
func LoadPlaybookFiles(researchDir string) []PlaybookFile {
	matches, _ := filepath.Glob(filepath.Join(researchDir, "playbooks", "*.json"))
	var out []PlaybookFile
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var pb PlaybookFile
		if err := json.Unmarshal(data, &pb); err != nil {
			continue
		}
		out = append(out, pb)
	}
	return out
}
