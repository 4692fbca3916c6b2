package plumber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const pipTimeout = 60 * time.Second

var reImport = regexp.MustCompile(`(?m)^(?:import|from)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// importToPyPI maps import names to their distribution names where the
// two differ. Everything else round-trips as-is (case-folded, with
// underscores treated as hyphens).
var importToPyPI = map[string]string{
	"bs4":      "beautifulsoup4",
	"yaml":     "pyyaml",
	"PIL":      "pillow",
	"dotenv":   "python-dotenv",
	"dateutil": "python-dateutil",
	"fitz":     "pymupdf",
	"sklearn":  "scikit-learn",
	"cv2":      "opencv-python",
	"docx":     "python-docx",
	"Crypto":   "pycryptodome",
}

// pythonStdlib is the subset of the standard library the operator's
// tools actually reach for. Not exhaustive on purpose: an unknown
// module surfacing as "missing" is a prompt to extend the table.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"collections": true, "concurrent": true, "contextlib": true,
	"csv": true, "dataclasses": true, "datetime": true, "enum": true,
	"functools": true, "glob": true, "hashlib": true, "html": true,
	"http": true, "importlib": true, "io": true, "itertools": true,
	"json": true, "logging": true, "math": true, "os": true,
	"pathlib": true, "pickle": true, "queue": true, "random": true,
	"re": true, "shutil": true, "signal": true, "socket": true,
	"sqlite3": true, "statistics": true, "string": true,
	"subprocess": true, "sys": true, "tempfile": true, "textwrap": true,
	"threading": true, "time": true, "traceback": true, "typing": true,
	"unicodedata": true, "urllib": true, "uuid": true, "xml": true,
	"zipfile": true,
}

// CheckDependencies cross-references the imports of every python tool
// and library file against the venv's installed distributions. Missing
// allow-listed packages are auto-installed at full autonomy;
// everything else is reported.
func (p *Plumber) CheckDependencies(ctx context.Context) []Issue {
	imports := p.collectToolImports()
	if len(imports) == 0 {
		return nil
	}
	installed, ok := p.installedDistributions(ctx)
	if !ok {
		return []Issue{{
			Category: CategoryDeps,
			Severity: SeverityWarning,
			Message:  "pip freeze unavailable, dependency check skipped",
		}}
	}

	var missing []string
	for imp := range imports {
		if pythonStdlib[imp] || p.isFirstParty(imp) {
			continue
		}
		if !installed[distName(imp)] {
			missing = append(missing, imp)
		}
	}
	sort.Strings(missing)

	var issues []Issue
	for _, imp := range missing {
		dist := distName(imp)
		issue := Issue{
			Category: CategoryDeps,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("import %q has no installed distribution %q", imp, dist),
			Detail:   strings.Join(imports[imp], ", "),
		}
		issue.FixOutcome = p.installDependency(ctx, imp, dist)
		issues = append(issues, issue)
	}
	return issues
}

// collectToolImports maps import name to the tool or library files
// using it. The walk covers tools/ recursively so local library
// packages contribute their imports too.
func (p *Plumber) collectToolImports() map[string][]string {
	root := p.cfg.ToolsDir()
	var files []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".py") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	imports := make(map[string][]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		rel, relErr := filepath.Rel(root, file)
		if relErr != nil {
			rel = filepath.Base(file)
		}
		for _, m := range reImport.FindAllStringSubmatch(string(data), -1) {
			imports[m[1]] = append(imports[m[1]], rel)
		}
	}
	return imports
}

func (p *Plumber) isFirstParty(imp string) bool {
	for _, fp := range p.cfg.Plumber.FirstParty {
		if imp == fp {
			return true
		}
	}
	// A sibling tools/<imp>.py or local package tools/<imp>/ is
	// first-party by construction.
	if _, err := os.Stat(filepath.Join(p.cfg.ToolsDir(), imp+".py")); err == nil {
		return true
	}
	if info, err := os.Stat(filepath.Join(p.cfg.ToolsDir(), imp)); err == nil && info.IsDir() {
		return true
	}
	return false
}

// installedDistributions parses pip freeze output into a set of
// normalized distribution names.
func (p *Plumber) installedDistributions(ctx context.Context) (map[string]bool, bool) {
	cctx, cancel := context.WithTimeout(ctx, pipTimeout)
	defer cancel()
	out, err := execCommand(cctx, p.pythonBin(), "-m", "pip", "freeze").Output()
	if err != nil {
		return nil, false
	}
	installed := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		name := line
		for _, sep := range []string{"==", ">=", "<=", " @ "} {
			if i := strings.Index(name, sep); i >= 0 {
				name = name[:i]
			}
		}
		name = normalizeDist(name)
		if name != "" {
			installed[name] = true
		}
	}
	return installed, true
}

func distName(imp string) string {
	if dist, ok := importToPyPI[imp]; ok {
		return normalizeDist(dist)
	}
	return normalizeDist(imp)
}

func normalizeDist(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
}

// installDependency installs an allow-listed package and verifies the
// import actually resolves afterwards.
func (p *Plumber) installDependency(ctx context.Context, imp, dist string) string {
	if !p.allowListed(dist) {
		return FixBlocked
	}
	if !p.cfg.Governance.AppliesFixes() {
		if p.cfg.Governance.ProducesPatches() {
			return FixDryRun
		}
		return FixBlocked
	}
	cctx, cancel := context.WithTimeout(ctx, pipTimeout)
	defer cancel()
	if out, err := execCommand(cctx, p.pythonBin(), "-m", "pip", "install", dist).CombinedOutput(); err != nil {
		p.log.Warn("pip install failed", "dist", dist, "output", strings.TrimSpace(string(out)))
		return FixFailedVerification
	}
	if msg := p.runPython(ctx, "-c", "import "+imp); msg != "" {
		return FixFailedVerification
	}
	p.log.Info("dependency installed", "dist", dist, "import", imp)
	return FixApplied
}

func (p *Plumber) allowListed(dist string) bool {
	for _, allowed := range p.cfg.Plumber.AllowedPackages {
		if normalizeDist(allowed) == dist {
			return true
		}
	}
	return false
}
