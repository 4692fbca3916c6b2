package brain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/brief"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

const (
	recentJobWindow  = 10
	maxGoalNoteBytes = 4000
)

// JobSummary is the perception view of one recent job.
type JobSummary struct {
	ID        string  `json:"id"`
	Workflow  string  `json:"workflow"`
	Status    string  `json:"status"`
	DurationS float64 `json:"duration_s"`
	Error     string  `json:"error,omitempty"`
}

// ProjectSummary is the perception view of one research project.
type ProjectSummary struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Status   string `json:"status"`
	Phase    string `json:"phase,omitempty"`
	Mode     string `json:"mode"`
}

// Perception is everything the operator can see in one glance: system
// health, recent work, open research, and the compiled memory context.
type Perception struct {
	Time        time.Time               `json:"time"`
	DiskUsedPct float64                 `json:"disk_used_pct"`
	LoadAvg1    float64                 `json:"load_avg_1m"`
	RecentJobs  []JobSummary            `json:"recent_jobs"`
	Workflows   []string                `json:"workflows"`
	Clients     []string                `json:"clients,omitempty"`
	GoalNotes   string                  `json:"goal_notes,omitempty"`
	Projects    []ProjectSummary        `json:"projects"`
	Playbooks   []research.PlaybookFile `json:"playbooks,omitempty"`
	Memory      memory.StateSummary     `json:"memory"`
	Context     map[string]any          `json:"context"`
}

// Perceive gathers the full perception snapshot and records it as an
// episode. It never fails: missing pieces just come back empty.
func (b *Brain) Perceive(ctx context.Context, trace string) *Perception {
	p := &Perception{
		Time:        time.Now().UTC(),
		DiskUsedPct: b.diskUsedPct(ctx),
		LoadAvg1:    loadAvg1(),
		Workflows:   b.workflowNames(),
		Clients:     b.clientNames(),
		GoalNotes:   b.goalNotes(),
		Playbooks:   research.LoadPlaybookFiles(b.cfg.ResearchDir()),
		Memory:      b.mem.StateSummary(),
	}

	for _, j := range jobs.Recent(b.cfg.JobsDir(), recentJobWindow) {
		p.RecentJobs = append(p.RecentJobs, JobSummary{
			ID:        j.ID,
			Workflow:  j.WorkflowID,
			Status:    j.Status,
			DurationS: j.DurationS,
			Error:     j.Error,
		})
	}

	projects := research.ListProjects(b.cfg.ResearchDir())
	var query string
	for _, proj := range projects {
		p.Projects = append(p.Projects, ProjectSummary{
			ID:       proj.ID,
			Question: proj.Question,
			Status:   proj.Status,
			Phase:    proj.Phase,
			Mode:     proj.Mode(),
		})
		if query == "" && !research.IsTerminal(proj.Status) {
			query = proj.Question
		}
	}
	p.Context = brief.Compile(b.mem, query)

	_ = b.mem.RecordEpisode("perceive",
		fmt.Sprintf("disk %.0f%%, load %.2f, %d recent jobs, %d projects",
			p.DiskUsedPct, p.LoadAvg1, len(p.RecentJobs), len(p.Projects)),
		map[string]any{
			"disk_used_pct": p.DiskUsedPct,
			"load_avg_1m":   p.LoadAvg1,
			"recent_jobs":   len(p.RecentJobs),
			"projects":      len(p.Projects),
		}, trace)
	return p
}

// diskUsedPct parses df for the filesystem holding the operator root.
func (b *Brain) diskUsedPct(ctx context.Context) float64 {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := execCommand(cctx, "df", "-Pk", b.cfg.Root).Output()
	if err != nil {
		return 0
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return 0
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return 0
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(fields[4], "%"), 64)
	if err != nil {
		return 0
	}
	return pct
}

func loadAvg1() float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

func (b *Brain) workflowNames() []string {
	scripts, err := filepath.Glob(filepath.Join(b.cfg.WorkflowsDir(), "*.sh"))
	if err != nil {
		return nil
	}
	sort.Strings(scripts)
	names := make([]string, 0, len(scripts))
	for _, s := range scripts {
		names = append(names, strings.TrimSuffix(filepath.Base(s), ".sh"))
	}
	return names
}

// clientNames reads the conf/clients.yaml registry. Both a plain list
// of names and a list of {name: ...} entries are accepted.
func (b *Brain) clientNames() []string {
	data, err := os.ReadFile(filepath.Join(b.cfg.ConfDir(), "clients.yaml"))
	if err != nil {
		return nil
	}
	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var names []string
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func (b *Brain) goalNotes() string {
	data, err := os.ReadFile(filepath.Join(b.cfg.ConfDir(), "goals.md"))
	if err != nil {
		return ""
	}
	if len(data) > maxGoalNoteBytes {
		data = data[:maxGoalNoteBytes]
	}
	return string(data)
}
