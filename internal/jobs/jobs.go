// Package jobs reads workflow job records and dispatches new jobs
// through the external op CLI.
package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Job statuses surfaced by the op engine.
const (
	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)

// Job is the per-job record at jobs/<date>/<job-id>/job.json.
type Job struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	DurationS  float64   `json:"duration_s"`
	Error      string    `json:"error,omitempty"`
	Request    string    `json:"request,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// Dir is where the record was loaded from. Not serialized.
	Dir string `json:"-"`
}

// Load reads job.json from a job directory.
func Load(dir string) (*Job, error) {
	data, err := os.ReadFile(filepath.Join(dir, "job.json"))
	if err != nil {
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	j.Dir = dir
	return &j, nil
}

// Recent returns up to limit job records, newest first. The layout is
// jobs/<date>/<job-id>/job.json; unreadable records are skipped.
func Recent(jobsDir string, limit int) []*Job {
	if limit <= 0 {
		limit = 10
	}
	dates, err := os.ReadDir(jobsDir)
	if err != nil {
		return nil
	}

	var jobs []*Job
	for _, d := range dates {
		if !d.IsDir() {
			continue
		}
		ids, err := os.ReadDir(filepath.Join(jobsDir, d.Name()))
		if err != nil {
			continue
		}
		for _, id := range ids {
			if !id.IsDir() {
				continue
			}
			j, err := Load(filepath.Join(jobsDir, d.Name(), id.Name()))
			if err != nil {
				continue
			}
			jobs = append(jobs, j)
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// LogTail returns up to maxBytes from the end of the job's log.txt.
func LogTail(jobDir string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = 2000
	}
	data, err := os.ReadFile(filepath.Join(jobDir, "log.txt"))
	if err != nil {
		return ""
	}
	if len(data) > maxBytes {
		data = data[len(data)-maxBytes:]
	}
	return string(data)
}

// Artifacts lists filenames under the job's artifacts directory.
func Artifacts(jobDir string) []string {
	entries, err := os.ReadDir(filepath.Join(jobDir, "artifacts"))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
