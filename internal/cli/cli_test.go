package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand_HasRunSubcommand(t *testing.T) {
	root := NewRootCommand()
	for _, cmd := range root.Commands() {
		if cmd.Name() == "run" {
			return
		}
	}
	t.Fatalf("root command is missing the run subcommand")
}

func TestRunCommand_RequiresConfig(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "config") {
		t.Fatalf("expected missing --config error, got %v", err)
	}
}

func TestRunCommand_ConfigLoadFailure(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", filepath.Join(t.TempDir(), "absent.yaml")})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for missing parameter file")
	}
}

func TestRunCommand_RejectsBadStart(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "params.yaml")
	body := `noise: []
tle1: "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
tle2: "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
cycles: 0
output_dir: ` + filepath.Join(dir, "out") + `
`
	if err := os.WriteFile(config, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", config, "--start", "not-a-time"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--start") {
		t.Fatalf("expected --start parse error, got %v", err)
	}
}

func TestRunCommand_ZeroCyclesCompletes(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "params.yaml")
	body := `noise: ["Altimeter", "Karin"]
tle1: "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
tle2: "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
cycles: 0
output_dir: ` + filepath.Join(dir, "out") + `
`
	if err := os.WriteFile(config, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", config, "--start", "2021-10-02T00:00:00Z",
		"--task-timeout", "30s"})

	if err := root.Execute(); err != nil {
		t.Fatalf("run with zero cycles should be a no-op, got %v", err)
	}
}

func TestRunCommand_RejectsBadTaskTimeout(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", "params.yaml", "--task-timeout", "soon"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unparseable --task-timeout")
	}
}
