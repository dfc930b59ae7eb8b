// Package registry maps tool names to the factories that create them.
//
// A Registry is populated once at process start, before dispatch begins, and is
// then only read from the single control thread, so it carries no locking.
package registry

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/petal-labs/multitool/core"
)

// DuplicateToolError reports a second registration under an existing name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

// SchemaConflictError reports a tool option that collides with a reserved
// option name or shorthand.
type SchemaConflictError struct {
	Tool   string
	Option string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("tool %q declares option %q which is reserved", e.Tool, e.Option)
}

// Option configures a Registry.
type Option func(*Registry)

// WithReservedOptions sets the declaration of options no tool may redeclare.
// Every registered factory is instantiated once and its options are checked
// against this set.
func WithReservedOptions(declare func(fs *pflag.FlagSet)) Option {
	return func(r *Registry) {
		r.reserved = declare
	}
}

// Registry holds all known tools.
type Registry struct {
	factories map[string]core.Factory
	reserved  func(fs *pflag.FlagSet)
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{factories: make(map[string]core.Factory)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool factory under name. Names are unique across the
// binary; a duplicate is an error, never an overwrite.
func (r *Registry) Register(name string, factory core.Factory) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("registry: tool name is required")
	}
	if factory == nil {
		return fmt.Errorf("registry: tool %q has a nil factory", name)
	}
	if _, exists := r.factories[name]; exists {
		return &DuplicateToolError{Name: name}
	}
	if r.reserved != nil {
		general := newScratchFlagSet("general")
		r.reserved(general)
		tool := factory()
		if tool == nil {
			return fmt.Errorf("registry: tool %q factory returned nil", name)
		}
		own := newScratchFlagSet(name)
		tool.DeclareOptions(own)
		if err := CheckSchema(name, general, own); err != nil {
			return err
		}
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// registration code that runs before main.
func (r *Registry) MustRegister(name string, factory core.Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err.Error())
	}
}

// Lookup returns the factory for name and whether it exists.
func (r *Registry) Lookup(name string) (core.Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Names returns every registered tool name in lexicographic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.factories)
}

// CheckSchema reports the first option in own whose name or shorthand is
// already declared in general.
func CheckSchema(toolName string, general, own *pflag.FlagSet) error {
	var conflict error
	own.VisitAll(func(f *pflag.Flag) {
		if conflict != nil {
			return
		}
		if general.Lookup(f.Name) != nil {
			conflict = &SchemaConflictError{Tool: toolName, Option: f.Name}
			return
		}
		if f.Shorthand != "" && general.ShorthandLookup(f.Shorthand) != nil {
			conflict = &SchemaConflictError{Tool: toolName, Option: "-" + f.Shorthand}
		}
	})
	return conflict
}

func newScratchFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}
