// Package fingerprint is the operator's persistent error-repetition
// memory. Each distinct (workflow, error) pair maps to a stable 16-hex
// fingerprint with counters, a cooldown, and a permanent non-repairable
// classification. The ledger is what keeps the plumber from thrashing
// on the same failure.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Cooldown policy: after maxFailedAttempts fix attempts with zero
// successes, the fingerprint is parked for cooldownPeriod.
const (
	maxFailedAttempts = 3
	cooldownPeriod    = 6 * time.Hour
)

// Entry is one row of the ledger.
type Entry struct {
	Fingerprint      string    `json:"fingerprint"`
	Workflow         string    `json:"workflow"`
	ErrorSample      string    `json:"error_sample"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Occurrences      int       `json:"occurrences"`
	FixAttempts      int       `json:"fix_attempts"`
	FixSuccesses     int       `json:"fix_successes"`
	LastAction       string    `json:"last_action,omitempty"`
	Category         string    `json:"category,omitempty"`
	NonRepairable    bool      `json:"non_repairable"`
	NonRepairableWhy string    `json:"non_repairable_reason,omitempty"`
	CooldownUntil    time.Time `json:"cooldown_until,omitempty"`
}

// Ledger persists entries as a single JSON object keyed by fingerprint.
// Concurrent writers may lose an increment; the next occurrence of the
// same error corrects it, so no lock is taken.
type Ledger struct {
	path    string
	entries map[string]*Entry
	log     *slog.Logger
	now     func() time.Time
}

// Load opens the ledger at plumberDir/fingerprints.json. A missing or
// malformed file starts empty.
func Load(plumberDir string, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{
		path:    filepath.Join(plumberDir, "fingerprints.json"),
		entries: make(map[string]*Entry),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
	data, err := os.ReadFile(l.path)
	if err == nil {
		if err := json.Unmarshal(data, &l.entries); err != nil {
			log.Warn("fingerprint ledger unreadable, starting empty", "error", err)
			l.entries = make(map[string]*Entry)
		}
	}
	return l
}

func (l *Ledger) save() {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.log.Warn("fingerprint ledger dir", "error", err)
		return
	}
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		l.log.Warn("fingerprint ledger write failed", "error", err)
	}
}

// Record upserts the row for (workflow, error), bumping counters.
func (l *Ledger) Record(workflow, errText string, fixAttempted, fixSucceeded bool, action, category string) *Entry {
	fp := Fingerprint(workflow, errText)
	now := l.now()

	e, ok := l.entries[fp]
	if !ok {
		e = &Entry{
			Fingerprint: fp,
			Workflow:    workflow,
			ErrorSample: truncate(Normalize(errText), 200),
			FirstSeen:   now,
		}
		l.entries[fp] = e
	}
	e.LastSeen = now
	e.Occurrences++
	if fixAttempted {
		e.FixAttempts++
	}
	if fixSucceeded {
		e.FixSuccesses++
	}
	if action != "" {
		e.LastAction = action
	}
	if category != "" {
		e.Category = category
	}

	// Classify before any fix is ever considered.
	if !e.NonRepairable {
		if code, reason, ok := ClassifyNonRepairable(errText); ok {
			e.NonRepairable = true
			e.NonRepairableWhy = code + ": " + reason
		}
	}

	l.save()
	return e
}

// IsOnCooldown reports whether fixes for this error are currently
// blocked: the fingerprint is non-repairable, a cooldown is pending, or
// the attempt budget is exhausted without a single success (in which
// case a fresh cooldown is set and persisted).
func (l *Ledger) IsOnCooldown(workflow, errText string) bool {
	e, ok := l.entries[Fingerprint(workflow, errText)]
	if !ok {
		return false
	}
	now := l.now()
	if e.NonRepairable {
		return true
	}
	if e.CooldownUntil.After(now) {
		return true
	}
	if e.FixAttempts >= maxFailedAttempts && e.FixSuccesses == 0 {
		e.CooldownUntil = now.Add(cooldownPeriod)
		l.save()
		return true
	}
	return false
}

// MarkNonRepairable permanently blocks fixes for this error.
func (l *Ledger) MarkNonRepairable(workflow, errText, code string) {
	fp := Fingerprint(workflow, errText)
	e, ok := l.entries[fp]
	if !ok {
		e = &Entry{
			Fingerprint: fp,
			Workflow:    workflow,
			ErrorSample: truncate(Normalize(errText), 200),
			FirstSeen:   l.now(),
			LastSeen:    l.now(),
			Occurrences: 1,
		}
		l.entries[fp] = e
	}
	e.NonRepairable = true
	e.NonRepairableWhy = code
	l.save()
}

// Get returns the entry for (workflow, error), or nil.
func (l *Ledger) Get(workflow, errText string) *Entry {
	return l.entries[Fingerprint(workflow, errText)]
}

// Entries returns all rows.
func (l *Ledger) Entries() []*Entry {
	out := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}

// Stats summarizes the ledger for reports.
type Stats struct {
	Total         int `json:"total"`
	NonRepairable int `json:"non_repairable"`
	OnCooldown    int `json:"on_cooldown"`
	FixAttempts   int `json:"fix_attempts"`
	FixSuccesses  int `json:"fix_successes"`
}

// Summary computes ledger statistics.
func (l *Ledger) Summary() Stats {
	now := l.now()
	var s Stats
	for _, e := range l.entries {
		s.Total++
		if e.NonRepairable {
			s.NonRepairable++
		}
		if e.CooldownUntil.After(now) {
			s.OnCooldown++
		}
		s.FixAttempts += e.FixAttempts
		s.FixSuccesses += e.FixSuccesses
	}
	return s
}

var (
	reTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	reJobDir    = regexp.MustCompile(`jobs/[\w.-]+/[\w.-]+`)
	rePID       = regexp.MustCompile(`\bpid[= ]?\d+\b|\[\d{2,7}\]`)
	reBigInt    = regexp.MustCompile(`\b\d{6,}\b`)
)

// Normalize strips the volatile parts of an error text so that repeats
// of the same failure hash identically.
func Normalize(text string) string {
	text = reTimestamp.ReplaceAllString(text, "<TS>")
	text = reJobDir.ReplaceAllString(text, "jobs/<JOB>")
	text = rePID.ReplaceAllString(text, "<PID>")
	text = reBigInt.ReplaceAllString(text, "<N>")
	return text
}

// Fingerprint derives the stable 16-hex id for a (workflow, error) pair.
func Fingerprint(workflow, errText string) string {
	norm := Normalize(errText)
	if len(norm) > 500 {
		norm = norm[:500]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%s", workflow, norm)))
	return hex.EncodeToString(sum[:])[:16]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
