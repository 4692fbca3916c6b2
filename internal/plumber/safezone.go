package plumber

import (
	"fmt"
	"path/filepath"
	"strings"
)

// inSafeZone reports whether path resolves, after following symlinks,
// to a location under the workflows/ or tools/ directory of the
// operator root. Every write the plumber performs goes through this
// check first.
func (p *Plumber) inSafeZone(path string) (bool, error) {
	resolved, err := resolveExisting(path)
	if err != nil {
		return false, err
	}
	for _, zone := range []string{p.cfg.WorkflowsDir(), p.cfg.ToolsDir()} {
		zoneReal, err := resolveExisting(zone)
		if err != nil {
			continue
		}
		if resolved == zoneReal || strings.HasPrefix(resolved, zoneReal+string(filepath.Separator)) {
			return true, nil
		}
	}
	return false, nil
}

// resolveExisting resolves symlinks for path. If the final component
// does not exist yet, its parent is resolved instead so that new files
// can still be zone-checked.
func resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}
