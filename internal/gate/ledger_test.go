package gate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

func writeVerifyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	verify := filepath.Join(dir, "verify")
	if err := os.MkdirAll(verify, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(verify, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSingleSourceClaimUnverified(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"the sky is green","supporting_sources":["https://one.com"]}]}`)
	writeVerifyFile(t, dir, "source_reliability.json",
		`{"sources":[{"url":"https://one.com","score":0.9}]}`)

	ledger := BuildLedger(dir)
	if len(ledger.Claims) != 1 {
		t.Fatalf("got %d claims", len(ledger.Claims))
	}
	entry := ledger.Claims[0]
	if entry.IsVerified {
		t.Error("single-source claim must not verify, regardless of reliability")
	}
	if !strings.Contains(strings.ToLower(entry.VerificationReason), "source") {
		t.Errorf("reason %q should mention sources", entry.VerificationReason)
	}
	if entry.VerificationTier != research.TierUnverified {
		t.Errorf("tier = %s", entry.VerificationTier)
	}
}

func TestTwoSourceClaimVerified(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"x exceeds y","supporting_sources":["https://a.com","https://b.com"]}]}`)

	ledger := BuildLedger(dir)
	entry := ledger.Claims[0]
	if !entry.IsVerified || entry.VerificationTier != research.TierVerified {
		t.Errorf("two-source undisputed claim should verify: %+v", entry)
	}
}

func TestDuplicateSourcesCountOnce(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"x","supporting_sources":["https://a.com","https://a.com"]}]}`)

	entry := BuildLedger(dir).Claims[0]
	if entry.IsVerified {
		t.Error("duplicate urls are one source; claim must not verify")
	}
	if len(entry.SupportingSourceIDs) != 1 {
		t.Errorf("supporting_source_ids = %v, want deduped", entry.SupportingSourceIDs)
	}
}

func TestDisputedClaimUnverified(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"the reactor produced net positive energy in 2025","supporting_sources":["https://a.com","https://b.com"]}]}`)
	writeVerifyFile(t, dir, "fact_check.json",
		`{"facts":[{"text":"the reactor produced net positive energy in 2025 is contested","disputed":true,"reason":"measurement methodology contested"}]}`)

	entry := BuildLedger(dir).Claims[0]
	if entry.IsVerified {
		t.Error("disputed claim must not verify")
	}
	if entry.VerificationTier != research.TierUnverified {
		t.Errorf("tier = %s, want UNVERIFIED", entry.VerificationTier)
	}
	if !strings.Contains(strings.ToLower(entry.VerificationReason), "disput") {
		t.Errorf("reason %q should mention the dispute", entry.VerificationReason)
	}
}

func TestUnrelatedDisputeDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"solar capacity doubled in region A","supporting_sources":["https://a.com","https://b.com"]}]}`)
	writeVerifyFile(t, dir, "fact_check.json",
		`{"facts":[{"text":"an entirely different topic about maritime shipping lanes","disputed":true}]}`)

	entry := BuildLedger(dir).Claims[0]
	if !entry.IsVerified {
		t.Errorf("dispute with low overlap must not block: %s", entry.VerificationReason)
	}
}

func TestCoveOverrideForcesUnverified(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"model Z outperforms all baselines","supporting_sources":["https://a.com","https://b.com"]}]}`)
	writeVerifyFile(t, dir, "cove_overlay.json",
		`{"claims":[{"claim":"model Z outperforms all baselines","cove_supports":false}]}`)

	entry := BuildLedger(dir).Claims[0]
	if entry.IsVerified {
		t.Error("cove_supports=false must force UNVERIFIED")
	}
	if !strings.Contains(entry.VerificationReason, "CoVe") {
		t.Errorf("reason %q should mention CoVe", entry.VerificationReason)
	}
}

func TestCoveSupportingVerdictDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"model Z outperforms all baselines","supporting_sources":["https://a.com","https://b.com"]}]}`)
	writeVerifyFile(t, dir, "cove_overlay.json",
		`{"claims":[{"claim":"model Z outperforms all baselines","cove_supports":true}]}`)

	if entry := BuildLedger(dir).Claims[0]; !entry.IsVerified {
		t.Errorf("supporting CoVe verdict must not block: %s", entry.VerificationReason)
	}
}

func TestClaimTextTruncatedAt500(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("evidence ", 100) // 900 chars
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"`+long+`","supporting_sources":["https://a.com","https://b.com"]}]}`)

	entry := BuildLedger(dir).Claims[0]
	if len(entry.Text) != 500 {
		t.Errorf("text length = %d, want 500", len(entry.Text))
	}
}

func TestCredibilityWeightAveragesReliability(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"x","supporting_sources":["https://a.com","https://b.com"]}]}`)
	writeVerifyFile(t, dir, "source_reliability.json",
		`{"sources":[{"url":"https://a.com","score":0.9}]}`)

	entry := BuildLedger(dir).Claims[0]
	// (0.9 + default 0.5) / 2
	if entry.CredibilityWeight < 0.69 || entry.CredibilityWeight > 0.71 {
		t.Errorf("credibility = %v, want 0.7", entry.CredibilityWeight)
	}
}

func TestJaccard(t *testing.T) {
	if got := jaccard("a b c d", "a b c d"); got != 1 {
		t.Errorf("identical texts = %v, want 1", got)
	}
	if got := jaccard("a b c d", "e f g h"); got != 0 {
		t.Errorf("disjoint texts = %v, want 0", got)
	}
	// overlap {b,c} of union {a,b,c,d} = 0.5
	if got := jaccard("a b c", "b c d"); got != 0.5 {
		t.Errorf("jaccard = %v, want 0.5", got)
	}
}

func TestBuildAndSaveLedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeVerifyFile(t, dir, "claim_verification.json",
		`{"claims":[{"claim":"x","supporting_sources":["https://a.com","https://b.com"]}]}`)

	if _, err := BuildAndSaveLedger(dir); err != nil {
		t.Fatal(err)
	}
	loaded, ok := research.LoadClaimLedger(dir)
	if !ok || len(loaded.Claims) != 1 {
		t.Fatalf("ledger did not round-trip: ok=%v", ok)
	}
	if !loaded.Claims[0].IsVerified {
		t.Error("verified flag lost in round trip")
	}
}
