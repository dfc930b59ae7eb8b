package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/petal-labs/multitool/core"
	"github.com/petal-labs/multitool/registry"
)

// Selection is the outcome of the lenient first pass over the command line.
type Selection struct {
	// Name is the selected tool name, empty when none was given.
	Name string

	// ListTools is set when --list-tools was given.
	ListTools bool

	// Misc holds positional tokens after the tool name. They are ignored here
	// and rejected later by the strict parse.
	Misc []string
}

// SelectTool performs the lenient first pass. Only the selection flags are
// interpreted. The general options are mirrored as untyped values so their
// arguments are consumed without validation. Every other flag may belong to
// the tool's own schema, which is not known yet, so it is dropped without
// taking a value. Malformed values are left for the strict parse to report.
func SelectTool(args []string) Selection {
	typed := newFlagSet("selection")
	declareSelection(typed)
	DeclareGeneral(typed)

	fs := newFlagSet("selection")
	fs.ParseErrorsWhitelist.UnknownFlags = true
	typed.VisitAll(func(f *pflag.Flag) {
		fs.StringP(f.Name, f.Shorthand, "", f.Usage)
		fs.Lookup(f.Name).NoOptDefVal = f.NoOptDefVal
	})

	args = knownFlagsOnly(args, typed)

	var sel Selection
	if err := fs.Parse(args); err != nil {
		// pflag stops before collecting positionals, e.g. on a trailing
		// "--save-exe" with no value; fall back to the first bare token.
		sel.Name, sel.Misc = firstBareToken(args)
		return sel
	}

	if v, _ := fs.GetString(optListTools); v != "" {
		listTools, err := strconv.ParseBool(v)
		sel.ListTools = listTools || err != nil
	}
	positional := fs.Args()
	if len(positional) > 0 {
		sel.Name = positional[0]
		sel.Misc = positional[1:]
	} else {
		sel.Name, _ = fs.GetString(optToolName)
	}
	sel.Name = strings.TrimSpace(sel.Name)
	return sel
}

// ResolveTool extracts the tool name from args and looks it up in reg.
// No tool name yields *UsageError; an unregistered one *UnknownToolError.
// Both carry the sorted list of registered tool names.
func ResolveTool(args []string, reg *registry.Registry, program string) (string, core.Factory, error) {
	sel := SelectTool(args)
	if sel.Name == "" {
		return "", nil, &UsageError{
			Usage: "Usage: " + program + " tool-name [--help]",
			Tools: reg.Names(),
		}
	}

	factory, ok := reg.Lookup(sel.Name)
	if !ok {
		return "", nil, &UnknownToolError{Name: sel.Name, Tools: reg.Names()}
	}
	return sel.Name, factory, nil
}

// knownFlagsOnly drops every flag typed does not declare. The value token of
// a declared flag is kept even when it starts with a dash, and everything
// after "--" is kept as is.
func knownFlagsOnly(args []string, typed *pflag.FlagSet) []string {
	out := make([]string, 0, len(args))
	takesValue := false
	for i, arg := range args {
		if takesValue {
			out = append(out, arg)
			takesValue = false
			continue
		}
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			out = append(out, arg)
			continue
		}
		f, ok := lookupFlag(arg, typed)
		if !ok {
			continue
		}
		out = append(out, arg)
		takesValue = f != nil && f.NoOptDefVal == "" && !strings.Contains(arg, "=")
	}
	return out
}

// lookupFlag reports whether every flag named by arg is declared in typed.
// For "--name" and a single shorthand the flag is returned; for grouped
// shorthands it is the last one, the only one that can take a value.
func lookupFlag(arg string, typed *pflag.FlagSet) (*pflag.Flag, bool) {
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		name, _, _ = strings.Cut(name, "=")
		f := typed.Lookup(name)
		return f, f != nil
	}
	shorthands, _, _ := strings.Cut(arg[1:], "=")
	var f *pflag.Flag
	for i := 0; i < len(shorthands); i++ {
		if f = typed.ShorthandLookup(shorthands[i : i+1]); f == nil {
			return nil, false
		}
	}
	return f, f != nil
}

func firstBareToken(args []string) (string, []string) {
	for i, arg := range args {
		if arg == "--" {
			if i+1 < len(args) {
				return args[i+1], args[i+2:]
			}
			return "", nil
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			return arg, args[i+1:]
		}
	}
	return "", nil
}
