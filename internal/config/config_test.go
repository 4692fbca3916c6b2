package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClampGovernance(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want GovernanceLevel
	}{
		{"negative clamps to report_only", -5, ReportOnly},
		{"zero", 0, ReportOnly},
		{"one", 1, Suggest},
		{"two", 2, ActAndReport},
		{"three", 3, FullAutonomous},
		{"above range clamps to full_autonomous", 9, FullAutonomous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampGovernance(tt.in); got != tt.want {
				t.Errorf("ClampGovernance(%d) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGovernanceApproval(t *testing.T) {
	if ReportOnly.Approves() || Suggest.Approves() {
		t.Error("levels 0 and 1 must not approve execution")
	}
	if !ActAndReport.Approves() || !FullAutonomous.Approves() {
		t.Error("levels 2 and 3 must approve execution")
	}
	if ActAndReport.AppliesFixes() {
		t.Error("level 2 must produce dry-run patches only")
	}
	if !FullAutonomous.AppliesFixes() {
		t.Error("level 3 must apply fixes")
	}
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.env")
	content := "# comment line\nFOO_KEY=abc\nBAR_KEY=left=right\n\nBROKEN LINE\nEXISTING_KEY=new\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EXISTING_KEY", "original")
	os.Unsetenv("FOO_KEY")
	os.Unsetenv("BAR_KEY")
	t.Cleanup(func() {
		os.Unsetenv("FOO_KEY")
		os.Unsetenv("BAR_KEY")
	})

	if err := LoadSecrets(path); err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}

	if got := os.Getenv("FOO_KEY"); got != "abc" {
		t.Errorf("FOO_KEY = %q, want abc", got)
	}
	// Split on the first = only.
	if got := os.Getenv("BAR_KEY"); got != "left=right" {
		t.Errorf("BAR_KEY = %q, want left=right", got)
	}
	if got := os.Getenv("EXISTING_KEY"); got != "original" {
		t.Errorf("EXISTING_KEY = %q, existing values must not be overridden", got)
	}
}

func TestLoadSecretsMissingFile(t *testing.T) {
	if err := LoadSecrets(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing secrets file should not be an error, got %v", err)
	}
}

func TestLoadReadsOperatorYAML(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0755); err != nil {
		t.Fatal(err)
	}
	yaml := "gate:\n  min_findings: 12\nplumber:\n  first_party:\n    - mytools\n"
	if err := os.WriteFile(filepath.Join(root, "conf", "operator.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gate.MinFindings != 12 {
		t.Errorf("MinFindings = %d, want 12", cfg.Gate.MinFindings)
	}
	if len(cfg.Plumber.FirstParty) != 1 || cfg.Plumber.FirstParty[0] != "mytools" {
		t.Errorf("FirstParty = %v, want [mytools]", cfg.Plumber.FirstParty)
	}
	if cfg.Governance != ActAndReport {
		t.Errorf("Governance = %v, want act_and_report", cfg.Governance)
	}
}

func TestResolveRootPrecedence(t *testing.T) {
	t.Setenv("OPERATOR_ROOT", "/env/operator")

	got, err := ResolveRoot("/flag/operator")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/flag/operator" {
		t.Errorf("flag should win over env, got %q", got)
	}

	got, err = ResolveRoot("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/env/operator" {
		t.Errorf("env should win when flag is empty, got %q", got)
	}
}
