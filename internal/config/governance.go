package config

// GovernanceLevel controls how much autonomy the operator has. Decide
// translates the level into an approval; the plumber translates it into
// diagnose-only, dry-run, or apply behavior.
type GovernanceLevel int

const (
	// ReportOnly observes and records; nothing is executed or patched.
	ReportOnly GovernanceLevel = 0

	// Suggest records what it would do; nothing is executed or patched.
	Suggest GovernanceLevel = 1

	// ActAndReport executes approved decisions and produces dry-run patches.
	ActAndReport GovernanceLevel = 2

	// FullAutonomous executes approved decisions and applies verified patches.
	FullAutonomous GovernanceLevel = 3
)

// ClampGovernance truncates out-of-range values into [0, 3].
func ClampGovernance(n int) GovernanceLevel {
	if n < 0 {
		return ReportOnly
	}
	if n > 3 {
		return FullAutonomous
	}
	return GovernanceLevel(n)
}

// String returns the canonical mode name.
func (g GovernanceLevel) String() string {
	switch g {
	case ReportOnly:
		return "report_only"
	case Suggest:
		return "suggest"
	case ActAndReport:
		return "act_and_report"
	case FullAutonomous:
		return "full_autonomous"
	}
	return "unknown"
}

// Approves reports whether decisions at this level may be executed.
func (g GovernanceLevel) Approves() bool {
	return g >= ActAndReport
}

// AppliesFixes reports whether plumber patches may be written to files.
func (g GovernanceLevel) AppliesFixes() bool {
	return g >= FullAutonomous
}

// ProducesPatches reports whether plumber patches are generated at all.
func (g GovernanceLevel) ProducesPatches() bool {
	return g >= ActAndReport
}
