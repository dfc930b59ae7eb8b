package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/petal-labs/multitool/core"
	"github.com/petal-labs/multitool/registry"
	"github.com/petal-labs/multitool/runtime"
)

// General option names.
const (
	OptHelp        = "help"
	OptModel       = "model"
	OptIPUs        = "ipus"
	OptSaveExe     = "save-exe"
	OptLoadExe     = "load-exe"
	OptCompileOnly = "compile-only"
	OptDeferAttach = "defer-attach"
)

// Tool selection option names. They are only meaningful while resolving the
// tool name and are accepted but hidden in the strict parse.
const (
	optListTools = "list-tools"
	optToolName  = "tool-name"
)

// DeclareGeneral adds the options every tool accepts.
func DeclareGeneral(fs *pflag.FlagSet) {
	fs.BoolP(OptHelp, "h", false, "Show help for the specified tool.")
	fs.Bool(OptModel, false, "If set then use the simulated device model instead of hardware.")
	fs.Uint(OptIPUs, 1, "Number of devices to use.")
	fs.String(OptSaveExe, "", "Save the executable image after compilation using this name (prefix).")
	fs.String(OptLoadExe, "", "Load a previously saved executable with this name (prefix) and skip the build step.")
	fs.Bool(OptCompileOnly, false, "If set and save-exe is also set then exit after compiling and saving the image.")
	fs.Bool(OptDeferAttach, false, "If false (default) devices are reserved before compilation, otherwise they are not acquired until the program is ready to run.")
}

func declareSelection(fs *pflag.FlagSet) {
	fs.Bool(optListTools, false, "Print a list of available tools and exit.")
	fs.String(optToolName, "", "Choose the tool to be executed.")
}

// DeclareReserved adds every option a tool may not redeclare: the general
// options and the tool selection options.
func DeclareReserved(fs *pflag.FlagSet) {
	DeclareGeneral(fs)
	declareSelection(fs)
}

// Schema is the merged option schema for one selected tool: the general
// options followed by the tool's own options.
type Schema struct {
	Tool    string
	General *pflag.FlagSet
	Own     *pflag.FlagSet
	All     *pflag.FlagSet
}

// NewSchema asks t to declare its options and merges them with the general
// options. A tool option that collides with a general or selection option
// is a *registry.SchemaConflictError.
func NewSchema(toolName string, t core.Tool) (*Schema, error) {
	general := newFlagSet("General")
	DeclareGeneral(general)

	own := newFlagSet(toolName)
	t.DeclareOptions(own)
	reserved := newFlagSet("reserved")
	DeclareReserved(reserved)
	if err := registry.CheckSchema(toolName, reserved, own); err != nil {
		return nil, err
	}

	selection := newFlagSet("selection")
	declareSelection(selection)

	all := newFlagSet(toolName)
	all.AddFlagSet(general)
	all.AddFlagSet(selection)
	all.AddFlagSet(own)
	for _, name := range []string{optListTools, optToolName} {
		if err := all.MarkHidden(name); err != nil {
			return nil, err
		}
	}

	return &Schema{Tool: toolName, General: general, Own: own, All: all}, nil
}

// Parse performs the strict parse of args against the merged schema. Every
// flag must be declared and the only positional token allowed is the tool
// name itself. defaults supply values for options the command line left
// unset; names the schema does not declare are skipped.
//
// When --help is present Parse returns the options together with
// ErrHelpRequested before any other validation.
func (s *Schema) Parse(args []string, defaults map[string]string) (*core.Options, error) {
	if err := s.All.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return core.NewOptions(s.All), ErrHelpRequested
		}
		return nil, &InvalidOptionError{Tool: s.Tool, Err: err}
	}
	opts := core.NewOptions(s.All)
	if opts.Bool(OptHelp) {
		return opts, ErrHelpRequested
	}

	if err := s.applyDefaults(defaults); err != nil {
		return nil, &InvalidOptionError{Tool: s.Tool, Err: err}
	}

	rest := s.All.Args()
	if len(rest) > 0 && rest[0] == s.Tool {
		rest = rest[1:]
	}
	if len(rest) > 0 {
		return nil, &InvalidOptionError{Tool: s.Tool, Err: fmt.Errorf("unexpected positional argument %q", rest[0])}
	}

	if ipus := opts.Uint(OptIPUs); ipus == 0 || ipus > runtime.MaxDevices {
		return nil, &InvalidOptionError{Tool: s.Tool, Err: fmt.Errorf("--%s must be between 1 and %d, got %d", OptIPUs, runtime.MaxDevices, ipus)}
	}
	return opts, nil
}

func (s *Schema) applyDefaults(defaults map[string]string) error {
	for name, value := range defaults {
		switch name {
		case OptHelp, optListTools, optToolName:
			continue
		}
		if s.All.Lookup(name) == nil || s.All.Changed(name) {
			continue
		}
		if err := s.All.Set(name, value); err != nil {
			return fmt.Errorf("settings default for --%s: %w", name, err)
		}
	}
	return nil
}

// Help renders the merged help text: the general options, then the tool's own.
func (s *Schema) Help(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage: %s %s [options]\n\n", program, s.Tool)
	b.WriteString("General Options:\n")
	b.WriteString(s.General.FlagUsages())
	if s.Own.HasFlags() {
		fmt.Fprintf(&b, "\n%s Options:\n", s.Tool)
		b.WriteString(s.Own.FlagUsages())
	}
	return b.String()
}

// ParseOptions builds the merged schema for t and strictly parses args
// against it.
func ParseOptions(args []string, toolName string, t core.Tool, defaults map[string]string) (*core.Options, error) {
	schema, err := NewSchema(toolName, t)
	if err != nil {
		return nil, err
	}
	return schema.Parse(args, defaults)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return fs
}
