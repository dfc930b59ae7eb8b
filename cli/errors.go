package cli

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHelpRequested is returned by ParseOptions when --help was given.
// It is a success path: the caller prints help and exits 0.
var ErrHelpRequested = errors.New("help requested")

// UsageError reports that no tool name was supplied.
type UsageError struct {
	Usage string
	Tools []string
}

func (e *UsageError) Error() string {
	return "no tool specified"
}

// UnknownToolError reports a tool name that is not registered.
type UnknownToolError struct {
	Name  string
	Tools []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unrecognised tool: %q", e.Name)
}

// InvalidOptionError reports an option the strict parse could not accept.
type InvalidOptionError struct {
	Tool string
	Err  error
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option for tool %q: %v", e.Tool, e.Err)
}

func (e *InvalidOptionError) Unwrap() error {
	return e.Err
}

// MutuallyExclusiveModesError reports that save-exe and load-exe were both set.
type MutuallyExclusiveModesError struct {
	SaveExe string
	LoadExe string
}

func (e *MutuallyExclusiveModesError) Error() string {
	return fmt.Sprintf("you can not set both --save-exe (%q) and --load-exe (%q)", e.SaveExe, e.LoadExe)
}

// formatToolList renders tool names one per line, indented.
func formatToolList(names []string) string {
	if len(names) == 0 {
		return "  (no tools registered)"
	}
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  ")
		b.WriteString(name)
	}
	return b.String()
}
