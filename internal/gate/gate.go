// Package gate implements the evidence quality gate: the single
// deterministic policy point deciding whether a research project has
// accumulated enough evidence to synthesize a report. It also builds
// the claim ledger the gate reads from and calibrates thresholds from
// past successful outcomes.
package gate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

// Decisions.
const (
	DecisionPass          = "pass"
	DecisionPendingReview = "pending_review"
	DecisionFail          = "fail"
)

// Fail codes.
const (
	FailInsufficientEvidence     = "failed_insufficient_evidence"
	FailVerificationInconclusive = "failed_verification_inconclusive"
	FailSourceDiversity          = "failed_source_diversity"
	FailReaderPipeline           = "failed_reader_pipeline"
)

// Thresholds are the gate minima. Calibration may replace the defaults,
// never dropping below the floors.
type Thresholds struct {
	MinFindings    int     `json:"findings_count"`
	MinSources     int     `json:"unique_source_count"`
	MinVerified    int     `json:"verified_claim_count"`
	MinSupportRate float64 `json:"claim_support_rate"`
	MinReliability float64 `json:"high_reliability_source_ratio"`
}

// DefaultThresholds are the uncalibrated minima.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFindings:    8,
		MinSources:     5,
		MinVerified:    2,
		MinSupportRate: 0.5,
		MinReliability: 0.5,
	}
}

// Floors bound calibration from below.
func Floors() Thresholds {
	return Thresholds{
		MinFindings:    5,
		MinSources:     3,
		MinVerified:    1,
		MinSupportRate: 0.3,
		MinReliability: 0.3,
	}
}

// Metrics are the evidence measurements the decision is made over. The
// JSON keys are stable: calibration reads them back from stored outcomes.
type Metrics struct {
	FindingsCount        int     `json:"findings_count"`
	UniqueSourceCount    int     `json:"unique_source_count"`
	VerifiedClaimCount   int     `json:"verified_claim_count"`
	TotalClaimCount      int     `json:"total_claim_count"`
	ClaimSupportRate     float64 `json:"claim_support_rate"`
	HighReliabilityRatio float64 `json:"high_reliability_source_ratio"`
	HasReliabilityData   bool    `json:"has_reliability_data"`
	ReadAttempts         int     `json:"read_attempts"`
	ReadSuccesses        int     `json:"read_successes"`
	ReadFailures         int     `json:"read_failures"`
	EffectiveMinFindings int     `json:"effective_min_findings"`
}

// Result is the gate's verdict.
type Result struct {
	Pass     bool     `json:"pass"`
	Decision string   `json:"decision"`
	FailCode string   `json:"fail_code,omitempty"`
	Metrics  Metrics  `json:"metrics"`
	Reasons  []string `json:"reasons"`
}

// OutcomeSource supplies past outcomes for threshold calibration.
type OutcomeSource interface {
	SuccessfulOutcomes(minCritic float64, limit int) []memory.ProjectOutcome
}

// Gate evaluates projects against calibrated thresholds.
type Gate struct {
	base Thresholds
	mem  OutcomeSource
	log  *slog.Logger
}

// New builds a gate. base overrides replace defaults field-by-field for
// non-zero values; mem may be nil to disable calibration.
func New(base Thresholds, mem OutcomeSource, log *slog.Logger) *Gate {
	defaults := DefaultThresholds()
	if base.MinFindings > 0 {
		defaults.MinFindings = base.MinFindings
	}
	if base.MinSources > 0 {
		defaults.MinSources = base.MinSources
	}
	if base.MinVerified > 0 {
		defaults.MinVerified = base.MinVerified
	}
	if base.MinSupportRate > 0 {
		defaults.MinSupportRate = base.MinSupportRate
	}
	if base.MinReliability > 0 {
		defaults.MinReliability = base.MinReliability
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{base: defaults, mem: mem, log: log}
}

// highReliabilityScore is the per-source score counted as reliable.
const highReliabilityScore = 0.6

// CollectMetrics measures the project's evidence.
func CollectMetrics(projectDir string) Metrics {
	m := Metrics{
		FindingsCount:     research.CountFindings(projectDir),
		UniqueSourceCount: research.UniqueSourceCount(projectDir),
	}

	if ledger, ok := research.LoadClaimLedger(projectDir); ok {
		m.TotalClaimCount = len(ledger.Claims)
		for _, c := range ledger.Claims {
			if c.IsVerified {
				m.VerifiedClaimCount++
			}
		}
	} else {
		claims := research.LoadClaimVerification(projectDir)
		m.TotalClaimCount = len(claims)
		for _, c := range claims {
			if c.Verified {
				m.VerifiedClaimCount++
			}
		}
	}
	if m.TotalClaimCount > 0 {
		m.ClaimSupportRate = float64(m.VerifiedClaimCount) / float64(m.TotalClaimCount)
	}

	reliability := research.LoadReliability(projectDir)
	if len(reliability) > 0 {
		m.HasReliabilityData = true
		high := 0
		for _, s := range reliability {
			if s.Score >= highReliabilityScore {
				high++
			}
		}
		m.HighReliabilityRatio = float64(high) / float64(len(reliability))
	}

	stats := research.LoadReadStats(projectDir)
	m.ReadAttempts = stats.ReadAttempts
	m.ReadSuccesses = stats.ReadSuccesses
	m.ReadFailures = stats.ReadFailures
	return m
}

// Evaluate runs the gate over a project directory. The only mutations
// are the audit line and the project's quality_gate record.
func (g *Gate) Evaluate(projectDir string) (*Result, error) {
	project, err := research.LoadProject(projectDir)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	thresholds := g.effectiveThresholds()
	metrics := CollectMetrics(projectDir)
	result := decide(project.Mode(), thresholds, metrics)

	audit := map[string]any{
		"project_id":   project.ID,
		"mode":         project.Mode(),
		"decision":     result.Decision,
		"fail_code":    result.FailCode,
		"metrics":      result.Metrics,
		"reasons":      result.Reasons,
		"evaluated_at": time.Now().UTC(),
	}
	if err := research.AppendGateAudit(projectDir, audit); err != nil {
		g.log.Warn("gate audit append failed", "project", project.ID, "error", err)
	}

	project.QualityGate = &research.QualityGateRecord{
		Status:      result.Decision,
		FailCode:    result.FailCode,
		Metrics:     metricsMap(result.Metrics),
		EvaluatedAt: time.Now().UTC(),
	}
	if err := research.SaveProject(project); err != nil {
		g.log.Warn("quality gate record write failed", "project", project.ID, "error", err)
	}

	return result, nil
}

func (g *Gate) effectiveThresholds() Thresholds {
	if g.mem == nil {
		return g.base
	}
	if calibrated := Calibrate(g.mem); calibrated != nil {
		return *calibrated
	}
	return g.base
}

// decide applies the decision procedure: reader-pipeline failure, then
// hard minima, then the mode-specific table.
func decide(mode string, t Thresholds, m Metrics) *Result {
	result := &Result{Metrics: m}

	m.EffectiveMinFindings = effectiveMinFindings(t.MinFindings, m)
	result.Metrics.EffectiveMinFindings = m.EffectiveMinFindings

	// 1. Reader pipeline produced nothing despite discovered sources.
	if m.FindingsCount == 0 && m.UniqueSourceCount >= 1 && m.ReadAttempts > 0 && m.ReadSuccesses == 0 {
		result.Decision = DecisionFail
		result.FailCode = FailReaderPipeline
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("reader pipeline failure: %d sources discovered, %d read attempts, 0 successes",
				m.UniqueSourceCount, m.ReadAttempts))
		return result
	}

	// 2. Hard minima on findings and sources.
	if m.FindingsCount < m.EffectiveMinFindings || m.UniqueSourceCount < t.MinSources {
		result.Decision = DecisionFail
		result.FailCode = FailInsufficientEvidence
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("findings %d/%d, sources %d/%d",
				m.FindingsCount, m.EffectiveMinFindings, m.UniqueSourceCount, t.MinSources))
		return result
	}

	// 3. Mode-specific decision.
	switch mode {
	case research.ModeFrontier:
		decideFrontier(result, m)
	case research.ModeDiscovery:
		decideDiscovery(result, m)
	default:
		decideStandard(result, t, m)
	}
	return result
}

// effectiveMinFindings lowers the findings floor when the reader is
// degraded: with a success rate below 0.5, demanding the full baseline
// would block projects the reader physically cannot feed.
func effectiveMinFindings(baseline int, m Metrics) int {
	if m.ReadAttempts == 0 {
		return baseline
	}
	rate := float64(m.ReadSuccesses) / float64(m.ReadAttempts)
	if rate >= 0.5 {
		return baseline
	}
	lowered := int(float64(baseline) * rate * 1.5)
	if lowered < 3 {
		lowered = 3
	}
	if lowered > baseline {
		return baseline
	}
	return lowered
}

func decideStandard(result *Result, t Thresholds, m Metrics) {
	switch {
	case m.VerifiedClaimCount >= 5:
		pass(result, fmt.Sprintf("%d verified claims", m.VerifiedClaimCount))
	case m.VerifiedClaimCount >= 3 && m.ClaimSupportRate >= 0.5:
		pass(result, fmt.Sprintf("%d verified claims with %.0f%% support rate",
			m.VerifiedClaimCount, m.ClaimSupportRate*100))
	case m.VerifiedClaimCount >= 3 && m.ClaimSupportRate >= 0.4:
		result.Decision = DecisionPendingReview
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("borderline support rate %.0f%%, needs review", m.ClaimSupportRate*100))
	case m.VerifiedClaimCount < t.MinVerified:
		fail(result, FailVerificationInconclusive,
			fmt.Sprintf("only %d verified claims, need %d", m.VerifiedClaimCount, t.MinVerified))
	case m.ClaimSupportRate < t.MinSupportRate:
		fail(result, FailVerificationInconclusive,
			fmt.Sprintf("claim support rate %.2f below %.2f", m.ClaimSupportRate, t.MinSupportRate))
	case m.HasReliabilityData && m.HighReliabilityRatio < t.MinReliability:
		fail(result, FailSourceDiversity,
			fmt.Sprintf("high-reliability source ratio %.2f below %.2f", m.HighReliabilityRatio, t.MinReliability))
	default:
		fail(result, FailInsufficientEvidence, "verification thresholds unmet")
	}
}

func decideFrontier(result *Result, m Metrics) {
	reliabilityOK := !m.HasReliabilityData || m.HighReliabilityRatio >= 0.3
	switch {
	case m.VerifiedClaimCount >= 5:
		pass(result, fmt.Sprintf("%d verified claims", m.VerifiedClaimCount))
	case m.FindingsCount >= 8 && m.UniqueSourceCount >= 5 && reliabilityOK:
		pass(result, fmt.Sprintf("broad evidence base: %d findings, %d sources",
			m.FindingsCount, m.UniqueSourceCount))
	case m.FindingsCount >= 5 && m.UniqueSourceCount >= 3:
		result.Decision = DecisionPendingReview
		result.Reasons = append(result.Reasons, "frontier evidence thin, needs review")
	case m.HasReliabilityData && m.HighReliabilityRatio < 0.3:
		fail(result, FailSourceDiversity,
			fmt.Sprintf("high-reliability source ratio %.2f below 0.30", m.HighReliabilityRatio))
	default:
		fail(result, FailInsufficientEvidence, "frontier evidence thresholds unmet")
	}
}

func decideDiscovery(result *Result, m Metrics) {
	switch {
	case m.FindingsCount >= 10 && m.UniqueSourceCount >= 8:
		pass(result, fmt.Sprintf("rich discovery base: %d findings, %d sources",
			m.FindingsCount, m.UniqueSourceCount))
	case m.FindingsCount >= 6 && m.UniqueSourceCount >= 4:
		pass(result, fmt.Sprintf("adequate discovery base: %d findings, %d sources",
			m.FindingsCount, m.UniqueSourceCount))
	case m.FindingsCount >= 4:
		result.Decision = DecisionPendingReview
		result.Reasons = append(result.Reasons, "discovery evidence thin, needs review")
	default:
		fail(result, FailInsufficientEvidence, "discovery evidence thresholds unmet")
	}
}

func pass(result *Result, reason string) {
	result.Pass = true
	result.Decision = DecisionPass
	result.Reasons = append(result.Reasons, reason)
}

func fail(result *Result, code, reason string) {
	result.Decision = DecisionFail
	result.FailCode = code
	result.Reasons = append(result.Reasons, reason)
}

func metricsMap(m Metrics) map[string]any {
	return map[string]any{
		"findings_count":                m.FindingsCount,
		"unique_source_count":           m.UniqueSourceCount,
		"verified_claim_count":          m.VerifiedClaimCount,
		"total_claim_count":             m.TotalClaimCount,
		"claim_support_rate":            m.ClaimSupportRate,
		"high_reliability_source_ratio": m.HighReliabilityRatio,
		"has_reliability_data":          m.HasReliabilityData,
		"read_attempts":                 m.ReadAttempts,
		"read_successes":                m.ReadSuccesses,
		"read_failures":                 m.ReadFailures,
		"effective_min_findings":        m.EffectiveMinFindings,
	}
}
