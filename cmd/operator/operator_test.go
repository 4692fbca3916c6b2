package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/config"
)

func TestResolveProjectDir(t *testing.T) {
	cfg := &config.Config{Root: t.TempDir()}

	existing := filepath.Join(t.TempDir(), "proj-x")
	if err := os.MkdirAll(existing, 0755); err != nil {
		t.Fatal(err)
	}
	if got := resolveProjectDir(cfg, existing); got != existing {
		t.Errorf("existing dir: got %q, want %q", got, existing)
	}

	want := filepath.Join(cfg.ResearchDir(), "proj-a1")
	if got := resolveProjectDir(cfg, "proj-a1"); got != want {
		t.Errorf("bare id: got %q, want %q", got, want)
	}
}

func TestOutputResultJSON(t *testing.T) {
	origOut, origFormat := os.Stdout, output
	defer func() { os.Stdout = origOut; output = origFormat }()

	tmp, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = tmp
	output = "json"

	if err := outputResult(map[string]any{"status": "ok"}, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"status": "ok"`) {
		t.Errorf("unexpected json output: %s", data)
	}
}
