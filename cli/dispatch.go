package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/petal-labs/multitool/core"
	"github.com/petal-labs/multitool/registry"
)

// Backend runs a configured tool's executable work and reports a process
// exit status. runtime.Manager is the production implementation.
type Backend interface {
	Run(ctx context.Context, toolName string, builder core.Builder, cfg core.RuntimeConfig) int
}

// Result describes one dispatch.
type Result struct {
	Tool   string
	Config core.RuntimeConfig
	Status int

	// Help is set when --help was handled and nothing ran.
	Help bool
}

// Dispatcher selects a tool from the command line, parses and validates its
// options, resolves the runtime configuration and hands the tool's work to
// the backend.
type Dispatcher struct {
	Registry *registry.Registry
	Backend  Backend

	// Settings supplies option defaults. May be nil.
	Settings *Settings

	// Program is the name printed in usage lines.
	Program string

	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Dispatch runs the full selection, parse, configure and run sequence for
// args. A non-zero backend status is returned as *ExitError carrying it.
func (d *Dispatcher) Dispatch(ctx context.Context, args []string) (Result, error) {
	stdout, stderr, logger := d.outputs()
	program := d.Program
	if program == "" {
		program = "multitool"
	}

	name, factory, err := ResolveTool(args, d.Registry, program)
	if err != nil {
		var (
			usageErr   *UsageError
			unknownErr *UnknownToolError
		)
		switch {
		case errors.As(err, &usageErr):
			fmt.Fprintln(stdout, usageErr.Usage)
			fmt.Fprintln(stderr, "Please choose a tool to run from the following:")
			fmt.Fprintln(stderr, formatToolList(usageErr.Tools))
		case errors.As(err, &unknownErr):
			fmt.Fprintf(stderr, "Unrecognised tool: '%s'\n", unknownErr.Name)
			fmt.Fprintln(stderr, "Please choose a tool to run from the following:")
			fmt.Fprintln(stderr, formatToolList(unknownErr.Tools))
		}
		return Result{}, err
	}
	logger.Info("selected tool", "tool", name)
	result := Result{Tool: name}

	tool := factory()
	if tool == nil {
		return result, fmt.Errorf("tool %q: factory returned nil", name)
	}

	schema, err := NewSchema(name, tool)
	if err != nil {
		return result, err
	}
	defaults := d.Settings.DefaultsFor(name)
	opts, err := schema.Parse(args, defaults)
	if errors.Is(err, ErrHelpRequested) {
		fmt.Fprint(stdout, schema.Help(program))
		result.Help = true
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if ignored := unknownDefaults(schema, defaults); len(ignored) > 0 {
		logger.Debug("ignoring settings defaults the tool does not declare", "tool", name, "options", ignored)
	}

	cfg, err := ResolveConfig(opts)
	if err != nil {
		return result, err
	}
	result.Config = cfg
	logger.Debug("resolved runtime config",
		"devices", cfg.DeviceCount,
		"simulated", cfg.UseSimulator,
		"image", cfg.ImagePath,
		"persist", cfg.Persist,
		"restore", cfg.Restore,
		"compile_only", cfg.CompileOnly,
		"defer_attach", cfg.DeferAttach,
	)

	if err := tool.Configure(opts, cfg); err != nil {
		return result, err
	}

	result.Status = d.Backend.Run(ctx, name, tool.Builder(), cfg)
	if result.Status != exitSuccess {
		return result, exitError(result.Status, "tool %q exited with status %d", name, result.Status)
	}
	return result, nil
}

func (d *Dispatcher) outputs() (io.Writer, io.Writer, *slog.Logger) {
	stdout, stderr, logger := d.Stdout, d.Stderr, d.Logger
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return stdout, stderr, logger
}

func unknownDefaults(schema *Schema, defaults map[string]string) []string {
	var out []string
	for name := range defaults {
		if schema.All.Lookup(name) == nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
