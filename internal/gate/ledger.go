package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

// Claim verification constants. A claim is verified only when at least
// minSupportingSources distinct urls back it, no disputed fact overlaps
// it, and no chain-of-verification verdict rejects it.
const (
	minSupportingSources = 2
	disputeJaccardFloor  = 0.4
	maxClaimTextLen      = 500
	covePrefixLen        = 80
	defaultCredibility   = 0.5
)

// BuildLedger constructs the claim ledger for a project from the raw
// verification artifacts: claim_verification.json, fact_check.json,
// cove_overlay.json and source_reliability.json.
func BuildLedger(projectDir string) *research.ClaimLedger {
	claims := research.LoadClaimVerification(projectDir)
	facts := research.LoadFactCheck(projectDir)
	cove := research.LoadCoveOverlay(projectDir)

	reliability := make(map[string]float64)
	for _, s := range research.LoadReliability(projectDir) {
		reliability[s.URL] = s.Score
	}

	ledger := &research.ClaimLedger{GeneratedAt: time.Now().UTC()}
	for i, claim := range claims {
		ledger.Claims = append(ledger.Claims, buildEntry(i, claim, facts, cove, reliability))
	}
	return ledger
}

// BuildAndSaveLedger builds the ledger and writes verify/claim_ledger.json.
func BuildAndSaveLedger(projectDir string) (*research.ClaimLedger, error) {
	ledger := BuildLedger(projectDir)
	if err := research.SaveClaimLedger(projectDir, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

func buildEntry(idx int, claim research.VerifiedClaim, facts []research.DisputedFact, cove []research.CoveClaim, reliability map[string]float64) research.ClaimLedgerEntry {
	entry := research.ClaimLedgerEntry{
		ClaimID:            claim.ClaimID,
		Text:               truncateText(claim.Claim, maxClaimTextLen),
		SupportingEvidence: claim.SupportingEvidence,
	}
	if entry.ClaimID == "" {
		entry.ClaimID = fmt.Sprintf("claim-%03d", idx+1)
	}

	entry.SupportingSourceIDs = dedupe(claim.SupportingSources)
	entry.CredibilityWeight = credibility(entry.SupportingSourceIDs, reliability)

	switch {
	case len(entry.SupportingSourceIDs) < minSupportingSources:
		entry.VerificationReason = fmt.Sprintf(
			"only %d supporting source(s); at least %d independent sources required",
			len(entry.SupportingSourceIDs), minSupportingSources)

	case disputedBy(entry.Text, facts) != "":
		entry.VerificationReason = "disputed by fact check: " + disputedBy(entry.Text, facts)

	case coveRejects(entry.Text, cove):
		entry.VerificationReason = "CoVe verification does not support this claim"

	default:
		entry.IsVerified = true
		entry.VerificationReason = fmt.Sprintf(
			"supported by %d independent sources", len(entry.SupportingSourceIDs))
	}

	if entry.IsVerified {
		entry.VerificationTier = research.TierVerified
	} else {
		entry.VerificationTier = research.TierUnverified
	}
	return entry
}

// disputedBy returns the reason (or text) of the first disputed fact
// whose word overlap with the claim reaches the Jaccard floor.
func disputedBy(claimText string, facts []research.DisputedFact) string {
	for _, fact := range facts {
		if !fact.Disputed {
			continue
		}
		if jaccard(claimText, fact.Text) >= disputeJaccardFloor {
			if fact.Reason != "" {
				return fact.Reason
			}
			return truncateText(fact.Text, 120)
		}
	}
	return ""
}

// coveRejects reports whether a chain-of-verification verdict with a
// matching claim prefix explicitly does not support the claim.
func coveRejects(claimText string, cove []research.CoveClaim) bool {
	for _, c := range cove {
		if c.CoveSupports == nil || *c.CoveSupports {
			continue
		}
		if prefixMatches(claimText, c.Claim) {
			return true
		}
	}
	return false
}

// prefixMatches compares the case-folded first covePrefixLen characters.
func prefixMatches(a, b string) bool {
	pa := foldPrefix(a)
	pb := foldPrefix(b)
	if pa == "" || pb == "" {
		return false
	}
	return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
}

func foldPrefix(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > covePrefixLen {
		s = s[:covePrefixLen]
	}
	return s
}

// jaccard computes word-set Jaccard similarity between two texts.
func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func credibility(sources []string, reliability map[string]float64) float64 {
	if len(sources) == 0 {
		return 0
	}
	total := 0.0
	for _, u := range sources {
		if score, ok := reliability[u]; ok {
			total += score
		} else {
			total += defaultCredibility
		}
	}
	return total / float64(len(sources))
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
