package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/petal-labs/multitool/journal"
	mtotel "github.com/petal-labs/multitool/otel"
	"github.com/petal-labs/multitool/registry"
	"github.com/petal-labs/multitool/runtime"
	"github.com/petal-labs/multitool/tools/fft"
)

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// isolateEnv points settings discovery at path (or at nothing) and disables
// telemetry export.
func isolateEnv(t *testing.T, settingsPath string) {
	t.Helper()
	if settingsPath == "" {
		settingsPath = writeTestFile(t, t.TempDir(), "empty.yaml", "{}\n")
	}
	t.Setenv(EnvConfig, settingsPath)
	t.Setenv(EnvLogLevel, "")
	t.Setenv(mtotel.EnvOTLPEndpoint, "")
}

func newRootRegistry() *registry.Registry {
	reg := registry.New(registry.WithReservedOptions(DeclareReserved))
	reg.MustRegister(fft.Name, fft.New)
	return reg
}

func TestRootCmd_RunsToolAndJournals(t *testing.T) {
	dir := t.TempDir()
	settings := writeTestFile(t, dir, "multitool.yaml", "journal: runs.db\ndevices: 1\nlog_level: debug\n")
	isolateEnv(t, settings)

	_, stderr, err := executeCommand(NewRootCmd(newRootRegistry()), "fft", "--model", "--ipus=2", "--size=16")
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "selected tool") {
		t.Errorf("expected selected tool log line, got %q", stderr)
	}

	store, err := journal.NewSQLiteStore(journal.SQLiteStoreConfig{DSN: filepath.Join(dir, "runs.db")})
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer store.Close()

	runs, err := store.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 journaled run, got %d", len(runs))
	}
	if runs[0].Tool != "fft" || runs[0].Status != runtime.StatusCompleted {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestRootCmd_NoTool(t *testing.T) {
	isolateEnv(t, "")

	stdout, stderr, err := executeCommand(NewRootCmd(newRootRegistry()), "--list-tools")
	assertErrorAs[*UsageError](t, err)
	if !strings.Contains(stdout, "Usage: multitool tool-name [--help]") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "  fft") {
		t.Errorf("stderr should list tools, got %q", stderr)
	}
	if strings.Contains(stderr, "Error:") {
		t.Errorf("usage error should not be reported twice: %q", stderr)
	}
}

func TestRootCmd_Help(t *testing.T) {
	isolateEnv(t, "")

	stdout, _, err := executeCommand(NewRootCmd(newRootRegistry()), "fft", "--help")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stdout, "fft Options:") || !strings.Contains(stdout, "--size") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRootCmd_InvalidOption(t *testing.T) {
	isolateEnv(t, "")

	_, stderr, err := executeCommand(NewRootCmd(newRootRegistry()), "fft", "--bogus")
	assertErrorAs[*InvalidOptionError](t, err)
	if !strings.Contains(stderr, "Error: invalid option for tool \"fft\"") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRootCmd_HardwareUnavailable(t *testing.T) {
	isolateEnv(t, writeTestFile(t, t.TempDir(), "multitool.yaml", "devices: 1\n"))

	_, _, err := executeCommand(NewRootCmd(newRootRegistry()), "fft", "--ipus=2")
	if code := ExitCode(err); code != runtime.ExitFailure {
		t.Errorf("ExitCode = %d, want %d (err %v)", code, runtime.ExitFailure, err)
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		args     []string
		want     int
	}{
		{"simulated run", "", []string{"fft", "--model"}, 0},
		{"help", "", []string{"fft", "-h"}, 0},
		{"no arguments", "", nil, exitValidation},
		{"unknown tool", "", []string{"ifft"}, exitValidation},
		{"mutually exclusive", "", []string{"fft", "--save-exe=a", "--load-exe=b"}, exitValidation},
		{"bad tool option", "", []string{"fft", "--model", "--size=12"}, exitRuntime},
		{"bad settings", "devices: -3\n", []string{"fft", "--model"}, exitValidation},
		{"simulated device count overflow", "", []string{"fft", "--model", "--ipus=18446744073709551615"}, exitValidation},
		{"hardware device count overflow", "devices: 2\n", []string{"fft", "--ipus=18446744073709551615"}, exitValidation},
		{"unknown flag before unknown tool", "", []string{"--bogus", "ifft"}, exitValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := ""
			if tt.settings != "" {
				settings = writeTestFile(t, t.TempDir(), "multitool.yaml", tt.settings)
			}
			isolateEnv(t, settings)

			var stdout, stderr bytes.Buffer
			if got := Execute(context.Background(), newRootRegistry(), tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("Execute(%q) = %d, want %d\nstderr: %s", tt.args, got, tt.want, stderr.String())
			}
		})
	}
}
