package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/logging"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

// newProject lays out a project directory with the given mode.
func newProject(t *testing.T, mode string) string {
	t.Helper()
	dir := t.TempDir()
	p := map[string]any{
		"id":       "proj-test",
		"question": "what is the state of the art?",
		"status":   "running",
	}
	if mode != "" {
		p["config"] = map[string]any{"research_mode": mode}
	}
	data, _ := json.Marshal(p)
	if err := os.WriteFile(filepath.Join(dir, "project.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"findings", "sources", "verify", "explore"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func addFindings(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "findings", fmt.Sprintf("f%02d.json", i))
		content := fmt.Sprintf(`{"url":"https://site%d.com/page","title":"finding %d"}`, i, i)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func addSources(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "sources", fmt.Sprintf("s%02d.json", i))
		content := fmt.Sprintf(`{"url":"https://source%d.com","title":"source %d"}`, i, i)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func addLedger(t *testing.T, dir string, verified, total int) {
	t.Helper()
	ledger := research.ClaimLedger{}
	for i := 0; i < total; i++ {
		ledger.Claims = append(ledger.Claims, research.ClaimLedgerEntry{
			ClaimID:    fmt.Sprintf("claim-%d", i),
			IsVerified: i < verified,
		})
	}
	data, _ := json.Marshal(ledger)
	if err := os.WriteFile(filepath.Join(dir, "verify", "claim_ledger.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeReadStats(t *testing.T, dir string, attempts, successes, failures int) {
	t.Helper()
	content := fmt.Sprintf(`{"read_attempts":%d,"read_successes":%d,"read_failures":%d}`,
		attempts, successes, failures)
	if err := os.WriteFile(filepath.Join(dir, "explore", "read_stats.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func evaluate(t *testing.T, dir string) *Result {
	t.Helper()
	g := New(Thresholds{}, nil, logging.Discard())
	res, err := g.Evaluate(dir)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestEmptyProjectFailsInsufficientEvidence(t *testing.T) {
	dir := newProject(t, "")
	res := evaluate(t, dir)

	if res.Pass {
		t.Error("empty project must not pass")
	}
	if res.Decision != DecisionFail || res.FailCode != FailInsufficientEvidence {
		t.Errorf("decision=%s fail_code=%s, want fail/%s", res.Decision, res.FailCode, FailInsufficientEvidence)
	}
	if res.Metrics.FindingsCount != 0 {
		t.Errorf("findings_count = %d, want 0", res.Metrics.FindingsCount)
	}
}

func TestReaderPipelineFailure(t *testing.T) {
	dir := newProject(t, "")
	addSources(t, dir, 3)
	writeReadStats(t, dir, 3, 0, 3)

	res := evaluate(t, dir)
	if res.Pass || res.FailCode != FailReaderPipeline {
		t.Errorf("got pass=%v fail_code=%s, want failed_reader_pipeline", res.Pass, res.FailCode)
	}
}

func TestStandardModePassOnFiveVerified(t *testing.T) {
	dir := newProject(t, "")
	addFindings(t, dir, 9)
	addSources(t, dir, 6)
	addLedger(t, dir, 5, 6)

	res := evaluate(t, dir)
	if !res.Pass || res.Decision != DecisionPass {
		t.Errorf("result = %+v, want pass", res)
	}
	if res.FailCode != "" {
		t.Errorf("passing result carries fail code %q", res.FailCode)
	}
}

func TestStandardModePendingReview(t *testing.T) {
	dir := newProject(t, "")
	addFindings(t, dir, 9)
	addSources(t, dir, 6)
	// 3 verified of 7 total: rate ~0.43, in the [0.4, 0.5) review band
	addLedger(t, dir, 3, 7)

	res := evaluate(t, dir)
	if res.Decision != DecisionPendingReview {
		t.Errorf("decision = %s, want pending_review (metrics %+v)", res.Decision, res.Metrics)
	}
	if res.Pass {
		t.Error("pending_review must not pass")
	}
	if res.FailCode != "" {
		t.Errorf("pending_review must carry no fail code, got %q", res.FailCode)
	}
}

func TestStandardModeVerificationInconclusive(t *testing.T) {
	dir := newProject(t, "")
	addFindings(t, dir, 9)
	addSources(t, dir, 6)
	addLedger(t, dir, 1, 8)

	res := evaluate(t, dir)
	if res.FailCode != FailVerificationInconclusive {
		t.Errorf("fail_code = %s, want %s", res.FailCode, FailVerificationInconclusive)
	}
}

func TestFrontierModeBroadEvidencePass(t *testing.T) {
	dir := newProject(t, research.ModeFrontier)
	addFindings(t, dir, 8)
	addSources(t, dir, 5)
	// no verified claims, no reliability data: frontier passes on breadth

	res := evaluate(t, dir)
	if !res.Pass {
		t.Errorf("frontier breadth should pass, got %+v", res)
	}
}

func TestFrontierModePendingReview(t *testing.T) {
	dir := newProject(t, research.ModeFrontier)
	addFindings(t, dir, 6)
	addSources(t, dir, 5)
	writeReadStats(t, dir, 10, 4, 6) // degraded reader lowers the findings floor to 4

	res := evaluate(t, dir)
	if res.Decision != DecisionPendingReview {
		t.Errorf("decision = %s, want pending_review (metrics %+v)", res.Decision, res.Metrics)
	}
}

func TestDiscoveryModeTable(t *testing.T) {
	// Base thresholds as a calibrated gate would set them, so the lower
	// discovery tiers are reachable past the hard minima.
	base := Thresholds{MinFindings: 5, MinSources: 3}
	tests := []struct {
		name     string
		findings int
		sources  int
		stats    [3]int // attempts, successes, failures
		want     string
	}{
		{"rich base passes", 10, 8, [3]int{0, 0, 0}, DecisionPass},
		{"adequate base passes", 6, 4, [3]int{0, 0, 0}, DecisionPass},
		{"thin base pends", 4, 3, [3]int{10, 3, 7}, DecisionPendingReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newProject(t, research.ModeDiscovery)
			addFindings(t, dir, tt.findings)
			addSources(t, dir, tt.sources)
			if tt.stats[0] > 0 {
				writeReadStats(t, dir, tt.stats[0], tt.stats[1], tt.stats[2])
			}

			g := New(base, nil, logging.Discard())
			res, err := g.Evaluate(dir)
			if err != nil {
				t.Fatal(err)
			}
			if res.Decision != tt.want {
				t.Errorf("decision = %s, want %s (metrics %+v)", res.Decision, tt.want, res.Metrics)
			}
		})
	}
}

func TestAdaptiveFindingsFloor(t *testing.T) {
	m := Metrics{ReadAttempts: 10, ReadSuccesses: 2} // 20% success
	got := effectiveMinFindings(8, m)
	// 8 * 0.2 * 1.5 = 2.4 -> floored at 3
	if got != 3 {
		t.Errorf("effectiveMinFindings = %d, want 3", got)
	}

	m = Metrics{ReadAttempts: 10, ReadSuccesses: 4} // 40% success
	got = effectiveMinFindings(8, m)
	// 8 * 0.4 * 1.5 = 4.8 -> 4
	if got != 4 {
		t.Errorf("effectiveMinFindings = %d, want 4", got)
	}

	m = Metrics{ReadAttempts: 10, ReadSuccesses: 8} // healthy reader keeps baseline
	if got = effectiveMinFindings(8, m); got != 8 {
		t.Errorf("effectiveMinFindings = %d, want baseline 8", got)
	}

	m = Metrics{} // no attempts keeps baseline
	if got = effectiveMinFindings(8, m); got != 8 {
		t.Errorf("effectiveMinFindings = %d, want baseline 8", got)
	}
}

func TestEvaluateWritesQualityGateRecordAndAudit(t *testing.T) {
	dir := newProject(t, "")
	res := evaluate(t, dir)
	if res.Pass {
		t.Fatal("setup error: empty project passed")
	}

	p, err := research.LoadProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	if p.QualityGate == nil {
		t.Fatal("quality_gate record not written")
	}
	if p.QualityGate.Status != DecisionFail || p.QualityGate.FailCode != FailInsufficientEvidence {
		t.Errorf("quality_gate = %+v", p.QualityGate)
	}
	if p.Status != "running" {
		t.Errorf("gate mutated project status to %q", p.Status)
	}

	if _, err := os.Stat(filepath.Join(dir, "quality_gate_audit.jsonl")); err != nil {
		t.Error("audit line not appended")
	}
}

func TestPassAndFailMutuallyExclusive(t *testing.T) {
	dir := newProject(t, "")
	addFindings(t, dir, 9)
	addSources(t, dir, 6)
	addLedger(t, dir, 5, 5)

	res := evaluate(t, dir)
	if res.Pass && res.Decision == DecisionFail {
		t.Error("pass and fail must be mutually exclusive")
	}
	if res.Pass && res.FailCode != "" {
		t.Error("pass must carry no fail code")
	}
}
