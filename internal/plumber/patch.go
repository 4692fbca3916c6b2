package plumber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
)

const rollbackFailureThreshold = 2

// PatchRecord is the side-car metadata written next to every .patch.
type PatchRecord struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	Workflow  string    `json:"workflow,omitempty"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Applied   bool      `json:"applied"`
	Reverted  bool      `json:"reverted,omitempty"`
	DiffLines int       `json:"diff_lines"`
}

// PatchImpact aggregates the patch history for reporting.
type PatchImpact struct {
	Total       int `json:"total"`
	Applied     int `json:"applied"`
	Reverted    int `json:"reverted"`
	FromLLM     int `json:"from_llm"`
	LastSession int `json:"last_session"`
}

func (p *Plumber) patchesDir() string {
	return filepath.Join(p.cfg.PlumberDir(), "patches")
}

// writePatch records a unified diff plus side-car for a candidate fix.
// The patch is written whether or not the fix is applied, so dry runs
// leave the same audit trail as real repairs.
func (p *Plumber) writePatch(ctx context.Context, path, workflow, oldContent, newContent, summary string, applied bool) (*PatchRecord, error) {
	diff, err := unifiedDiff(ctx, path, oldContent, newContent)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.patchesDir(), 0755); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), filepath.Base(path))
	if err := os.WriteFile(filepath.Join(p.patchesDir(), id+".patch"), []byte(diff), 0644); err != nil {
		return nil, err
	}
	rec := &PatchRecord{
		ID:        id,
		File:      path,
		Workflow:  workflow,
		Summary:   summary,
		Source:    patchSource(summary),
		CreatedAt: time.Now().UTC(),
		Applied:   applied,
		DiffLines: countChangedLines(diff),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	return rec, os.WriteFile(filepath.Join(p.patchesDir(), id+".json"), data, 0644)
}

func patchSource(summary string) string {
	if strings.HasPrefix(summary, "llm") {
		return "llm"
	}
	return "deterministic"
}

// unifiedDiff shells out to diff -u. Exit status 1 just means the
// files differ.
func unifiedDiff(ctx context.Context, label, oldContent, newContent string) (string, error) {
	dir, err := os.MkdirTemp("", "plumber-diff-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	oldPath := filepath.Join(dir, "a")
	newPath := filepath.Join(dir, "b")
	if err := os.WriteFile(oldPath, []byte(oldContent), 0644); err != nil {
		return "", err
	}
	if err := os.WriteFile(newPath, []byte(newContent), 0644); err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, shellCheckTimeout)
	defer cancel()
	out, err := execCommand(cctx, "diff", "-u",
		"--label", label, "--label", label, oldPath, newPath).Output()
	if err != nil {
		// diff exits 1 on difference, which is the expected case.
		if ee, ok := err.(interface{ ExitCode() int }); !ok || ee.ExitCode() != 1 {
			return "", fmt.Errorf("diff: %w", err)
		}
	}
	return string(out), nil
}

// countChangedLines counts added plus removed lines in a unified diff,
// excluding the file headers.
func countChangedLines(diff string) int {
	n := 0
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			n++
		}
	}
	return n
}

// autoRollback reverse-applies LLM patches whose workflow kept failing
// after the patch landed. Returns the ids of reverted patches.
func (p *Plumber) autoRollback(ctx context.Context) []string {
	records := p.loadPatchRecords()
	if len(records) == 0 {
		return nil
	}
	recent := jobs.Recent(p.cfg.JobsDir(), failureScanWindow)

	var reverted []string
	for _, rec := range records {
		if rec.Source != "llm" || !rec.Applied || rec.Reverted {
			continue
		}
		failures := 0
		for _, j := range recent {
			if j.Status != jobs.StatusFailed || j.CreatedAt.Before(rec.CreatedAt) {
				continue
			}
			if rec.Workflow == "" || j.WorkflowID == rec.Workflow {
				failures++
			}
		}
		if failures < rollbackFailureThreshold {
			continue
		}
		if err := p.reverseApply(ctx, rec); err != nil {
			p.log.Warn("rollback failed", "patch", rec.ID, "error", err)
			continue
		}
		rec.Reverted = true
		p.savePatchRecord(rec)
		p.log.Info("patch rolled back", "patch", rec.ID, "failures_after", failures)
		reverted = append(reverted, rec.ID)
	}
	return reverted
}

func (p *Plumber) reverseApply(ctx context.Context, rec *PatchRecord) error {
	if ok, err := p.inSafeZone(rec.File); err != nil || !ok {
		return fmt.Errorf("outside safe zone: %s", rec.File)
	}
	cctx, cancel := context.WithTimeout(ctx, shellCheckTimeout)
	defer cancel()
	patchPath := filepath.Join(p.patchesDir(), rec.ID+".patch")
	out, err := execCommand(cctx, "patch", "-R", "--force", rec.File, patchPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("patch -R: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *Plumber) loadPatchRecords() []*PatchRecord {
	sidecars, err := filepath.Glob(filepath.Join(p.patchesDir(), "*.json"))
	if err != nil {
		return nil
	}
	sort.Strings(sidecars)
	var records []*PatchRecord
	for _, sc := range sidecars {
		data, err := os.ReadFile(sc)
		if err != nil {
			continue
		}
		var rec PatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records
}

func (p *Plumber) savePatchRecord(rec *PatchRecord) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(p.patchesDir(), rec.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		p.log.Warn("patch record write failed", "patch", rec.ID, "error", err)
	}
}

func (p *Plumber) patchImpact() PatchImpact {
	var impact PatchImpact
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, rec := range p.loadPatchRecords() {
		impact.Total++
		if rec.Applied {
			impact.Applied++
		}
		if rec.Reverted {
			impact.Reverted++
		}
		if rec.Source == "llm" {
			impact.FromLLM++
		}
		if rec.CreatedAt.After(cutoff) {
			impact.LastSession++
		}
	}
	return impact
}
