// Package config provides configuration for the operator.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (OPERATOR_ROOT, PLUMBER_*, RESEARCH_*)
// 3. conf/operator.yaml under the operator root
// 4. Defaults
//
// Secrets are loaded from conf/secrets.env and exported into the
// process environment without overriding values already set.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all operator configuration.
type Config struct {
	// Root is the operator directory holding workflows/, tools/, jobs/,
	// research/, plumber/, memory/, conf/ and logs/.
	Root string `yaml:"-" json:"root"`

	// Governance controls whether decisions are approved and fixes applied.
	Governance GovernanceLevel `yaml:"-" json:"governance"`

	// Gate holds evidence-gate threshold overrides.
	Gate GateConfig `yaml:"gate" json:"gate"`

	// Plumber holds self-healing settings.
	Plumber PlumberConfig `yaml:"plumber" json:"plumber"`

	// Models holds model name overrides.
	Models ModelConfig `yaml:"models" json:"models"`
}

// GateConfig holds evidence-gate threshold overrides. Zero values mean
// "use the default".
type GateConfig struct {
	MinFindings    int     `yaml:"min_findings" json:"min_findings"`
	MinSources     int     `yaml:"min_sources" json:"min_sources"`
	MinVerified    int     `yaml:"min_verified" json:"min_verified"`
	MinSupportRate float64 `yaml:"min_support_rate" json:"min_support_rate"`
	MinReliability float64 `yaml:"min_reliability" json:"min_reliability"`
}

// PlumberConfig holds self-healing settings.
type PlumberConfig struct {
	// AllowedPackages is the trusted allow-list for dependency auto-install.
	AllowedPackages []string `yaml:"allowed_packages" json:"allowed_packages"`

	// FirstParty lists import names treated as first-party rather than
	// missing external requirements.
	FirstParty []string `yaml:"first_party" json:"first_party"`

	// EssentialPackages must be importable in the venv for it to be healthy.
	EssentialPackages []string `yaml:"essential_packages" json:"essential_packages"`

	// LLMFix enables the LLM fix fallback. The PLUMBER_LLM_FIX environment
	// variable (1|true|yes) overrides this to true.
	LLMFix bool `yaml:"llm_fix" json:"llm_fix"`
}

// ModelConfig holds model name overrides. Environment variables
// RESEARCH_BRAIN_MODEL and PLUMBER_LLM_MODEL take priority.
type ModelConfig struct {
	Brain   string `yaml:"brain" json:"brain"`
	Plumber string `yaml:"plumber" json:"plumber"`
}

// DefaultAllowedPackages is the built-in trusted install allow-list.
var DefaultAllowedPackages = []string{
	"requests", "beautifulsoup4", "lxml", "html5lib", "httpx",
	"pyyaml", "python-dateutil", "feedparser", "readability-lxml",
}

// DefaultFirstParty lists import names that belong to the operator itself.
var DefaultFirstParty = []string{"operator_lib", "research_lib", "tools"}

// DefaultEssentialPackages must be present for the venv to be considered healthy.
var DefaultEssentialPackages = []string{"requests", "bs4", "yaml"}

// Load resolves the operator root, loads secrets into the environment,
// and reads the optional conf/operator.yaml file.
func Load(rootFlag string, governance int) (*Config, error) {
	root, err := ResolveRoot(rootFlag)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Root:       root,
		Governance: ClampGovernance(governance),
		Plumber: PlumberConfig{
			AllowedPackages:   DefaultAllowedPackages,
			FirstParty:        DefaultFirstParty,
			EssentialPackages: DefaultEssentialPackages,
		},
	}

	if err := LoadSecrets(filepath.Join(root, "conf", "secrets.env")); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	path := filepath.Join(root, "conf", "operator.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("PLUMBER_LLM_FIX"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			cfg.Plumber.LLMFix = true
		}
	}
	if v := os.Getenv("RESEARCH_BRAIN_MODEL"); v != "" {
		cfg.Models.Brain = v
	}
	if v := os.Getenv("PLUMBER_LLM_MODEL"); v != "" {
		cfg.Models.Plumber = v
	}

	return cfg, nil
}

// ResolveRoot determines the operator root: flag > OPERATOR_ROOT > ~/operator.
func ResolveRoot(flag string) (string, error) {
	root := flag
	if root == "" {
		root = os.Getenv("OPERATOR_ROOT")
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		root = filepath.Join(home, "operator")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve operator root: %w", err)
	}
	return abs, nil
}

// LoadSecrets parses a KEY=VALUE secrets file and exports each pair into
// the process environment. Lines starting with # are comments; values
// containing = are split on the first occurrence only. Existing
// environment values are never overridden. A missing file is not an error.
func LoadSecrets(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// Path helpers. Everything the operator touches lives under Root.

func (c *Config) WorkflowsDir() string { return filepath.Join(c.Root, "workflows") }
func (c *Config) ToolsDir() string     { return filepath.Join(c.Root, "tools") }
func (c *Config) JobsDir() string      { return filepath.Join(c.Root, "jobs") }
func (c *Config) ResearchDir() string  { return filepath.Join(c.Root, "research") }
func (c *Config) PlumberDir() string   { return filepath.Join(c.Root, "plumber") }
func (c *Config) MemoryDir() string    { return filepath.Join(c.Root, "memory") }
func (c *Config) LogsDir() string      { return filepath.Join(c.Root, "logs") }
func (c *Config) ConfDir() string      { return filepath.Join(c.Root, "conf") }

// PhaseScriptsDir holds the research phase scripts scanned for tool references.
func (c *Config) PhaseScriptsDir() string {
	return filepath.Join(c.Root, "workflows", "research", "phases")
}

// BrainModel returns the model used by the cognitive loop.
func (c *Config) BrainModel() string {
	if c.Models.Brain != "" {
		return c.Models.Brain
	}
	return "gpt-4o-mini"
}

// PlumberModel returns the model used for LLM fixes.
func (c *Config) PlumberModel() string {
	if c.Models.Plumber != "" {
		return c.Models.Plumber
	}
	return c.BrainModel()
}
