package research

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Finding is extracted content from a single source URL.
type Finding struct {
	URL          string  `json:"url"`
	Title        string  `json:"title,omitempty"`
	Excerpt      string  `json:"excerpt,omitempty"`
	FindingID    string  `json:"finding_id,omitempty"`
	NoveltyScore float64 `json:"novelty_score,omitempty"`
}

// Source is a discovered URL before (or independent of) extraction.
type Source struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Evidence links a claim to a supporting snippet.
type Evidence struct {
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Verification tiers.
const (
	TierVerified   = "VERIFIED"
	TierUnverified = "UNVERIFIED"
)

// ClaimLedgerEntry is one verified or unverified claim.
type ClaimLedgerEntry struct {
	ClaimID             string     `json:"claim_id"`
	Text                string     `json:"text"`
	IsVerified          bool       `json:"is_verified"`
	VerificationReason  string     `json:"verification_reason"`
	VerificationTier    string     `json:"verification_tier"`
	SupportingSourceIDs []string   `json:"supporting_source_ids"`
	SupportingEvidence  []Evidence `json:"supporting_evidence,omitempty"`
	CredibilityWeight   float64    `json:"credibility_weight"`
}

// ClaimLedger is the verify/claim_ledger.json artifact.
type ClaimLedger struct {
	Claims      []ClaimLedgerEntry `json:"claims"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// VerifiedClaim is one entry of verify/claim_verification.json, the raw
// per-claim verdicts before ledger construction.
type VerifiedClaim struct {
	ClaimID            string     `json:"claim_id,omitempty"`
	Claim              string     `json:"claim"`
	Verified           bool       `json:"verified"`
	SupportingSources  []string   `json:"supporting_sources,omitempty"`
	SupportingEvidence []Evidence `json:"supporting_evidence,omitempty"`
	Reason             string     `json:"reason,omitempty"`
}

type claimVerificationFile struct {
	Claims []VerifiedClaim `json:"claims"`
}

// SourceReliability scores one source URL in [0, 1].
type SourceReliability struct {
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type reliabilityFile struct {
	Sources []SourceReliability `json:"sources"`
}

// DisputedFact is one entry of verify/fact_check.json.
type DisputedFact struct {
	Text     string `json:"text"`
	Disputed bool   `json:"disputed"`
	Reason   string `json:"reason,omitempty"`
}

type factCheckFile struct {
	Facts []DisputedFact `json:"facts"`
}

// CoveClaim is one entry of verify/cove_overlay.json, a chain-of-
// verification verdict matched against claims by prefix.
type CoveClaim struct {
	Claim        string `json:"claim"`
	CoveSupports *bool  `json:"cove_supports,omitempty"`
}

type coveOverlayFile struct {
	Claims []CoveClaim `json:"claims"`
}

// ReadStats is explore/read_stats.json.
type ReadStats struct {
	ReadAttempts  int `json:"read_attempts"`
	ReadSuccesses int `json:"read_successes"`
	ReadFailures  int `json:"read_failures"`
}

// CountFindings counts *.json under findings/, excluding raw content
// files (names containing "_content").
func CountFindings(projectDir string) int {
	matches, _ := filepath.Glob(filepath.Join(projectDir, "findings", "*.json"))
	count := 0
	for _, path := range matches {
		if strings.Contains(filepath.Base(path), "_content") {
			continue
		}
		count++
	}
	return count
}

// UniqueSourceCount counts distinct url values across sources/*.json,
// excluding *_content.json files. Files holding either a single source
// object or a list of sources are both accepted.
func UniqueSourceCount(projectDir string) int {
	matches, _ := filepath.Glob(filepath.Join(projectDir, "sources", "*.json"))
	seen := make(map[string]bool)
	for _, path := range matches {
		if strings.HasSuffix(filepath.Base(path), "_content.json") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var one Source
		if err := json.Unmarshal(data, &one); err == nil && one.URL != "" {
			seen[one.URL] = true
			continue
		}
		var many []Source
		if err := json.Unmarshal(data, &many); err == nil {
			for _, s := range many {
				if s.URL != "" {
					seen[s.URL] = true
				}
			}
		}
	}
	return len(seen)
}

// LoadClaimLedger reads verify/claim_ledger.json. A missing file
// returns (nil, false).
func LoadClaimLedger(projectDir string) (*ClaimLedger, bool) {
	data, err := os.ReadFile(filepath.Join(projectDir, "verify", "claim_ledger.json"))
	if err != nil {
		return nil, false
	}
	var ledger ClaimLedger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, false
	}
	return &ledger, true
}

// SaveClaimLedger writes verify/claim_ledger.json.
func SaveClaimLedger(projectDir string, ledger *ClaimLedger) error {
	dir := filepath.Join(projectDir, "verify")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "claim_ledger.json"), data, 0644)
}

// LoadClaimVerification reads verify/claim_verification.json.
func LoadClaimVerification(projectDir string) []VerifiedClaim {
	data, err := os.ReadFile(filepath.Join(projectDir, "verify", "claim_verification.json"))
	if err != nil {
		return nil
	}
	var file claimVerificationFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Claims) > 0 {
		return file.Claims
	}
	var bare []VerifiedClaim
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

// LoadReliability reads verify/source_reliability.json.
func LoadReliability(projectDir string) []SourceReliability {
	data, err := os.ReadFile(filepath.Join(projectDir, "verify", "source_reliability.json"))
	if err != nil {
		return nil
	}
	var file reliabilityFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Sources) > 0 {
		return file.Sources
	}
	var bare []SourceReliability
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

// LoadFactCheck reads verify/fact_check.json.
func LoadFactCheck(projectDir string) []DisputedFact {
	data, err := os.ReadFile(filepath.Join(projectDir, "verify", "fact_check.json"))
	if err != nil {
		return nil
	}
	var file factCheckFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Facts) > 0 {
		return file.Facts
	}
	var bare []DisputedFact
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

// LoadCoveOverlay reads verify/cove_overlay.json.
func LoadCoveOverlay(projectDir string) []CoveClaim {
	data, err := os.ReadFile(filepath.Join(projectDir, "verify", "cove_overlay.json"))
	if err != nil {
		return nil
	}
	var file coveOverlayFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Claims) > 0 {
		return file.Claims
	}
	var bare []CoveClaim
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

// LoadReadStats reads explore/read_stats.json; missing reads as zeros.
func LoadReadStats(projectDir string) ReadStats {
	var stats ReadStats
	data, err := os.ReadFile(filepath.Join(projectDir, "explore", "read_stats.json"))
	if err != nil {
		return stats
	}
	_ = json.Unmarshal(data, &stats)
	return stats
}

// AppendGateAudit appends one JSON line to the project's gate audit log.
func AppendGateAudit(projectDir string, entry any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(
		filepath.Join(projectDir, "quality_gate_audit.jsonl"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}
