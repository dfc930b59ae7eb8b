package core

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options is the result of a strict parse: every general option and every
// option declared by the selected tool, with its typed value.
//
// Getters panic when the option was never declared or has a different type.
// Asking for an option nobody declared is a programming error, not user input.
type Options struct {
	fs *pflag.FlagSet
}

// NewOptions wraps a parsed flag set.
func NewOptions(fs *pflag.FlagSet) *Options {
	return &Options{fs: fs}
}

// Has reports whether name was declared.
func (o *Options) Has(name string) bool {
	return o.fs.Lookup(name) != nil
}

// Changed reports whether name was set explicitly (command line or defaults file).
func (o *Options) Changed(name string) bool {
	return o.fs.Changed(name)
}

// Names returns the declared option names in lexicographic order.
func (o *Options) Names() []string {
	var names []string
	o.fs.VisitAll(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})
	return names
}

// Bool returns the value of a boolean option.
func (o *Options) Bool(name string) bool {
	v, err := o.fs.GetBool(name)
	must(name, err)
	return v
}

// Int returns the value of an int option.
func (o *Options) Int(name string) int {
	v, err := o.fs.GetInt(name)
	must(name, err)
	return v
}

// Uint returns the value of a uint option.
func (o *Options) Uint(name string) uint {
	v, err := o.fs.GetUint(name)
	must(name, err)
	return v
}

// String returns the value of a string option.
func (o *Options) String(name string) string {
	v, err := o.fs.GetString(name)
	must(name, err)
	return v
}

// Float64 returns the value of a float64 option.
func (o *Options) Float64(name string) float64 {
	v, err := o.fs.GetFloat64(name)
	must(name, err)
	return v
}

// Duration returns the value of a duration option.
func (o *Options) Duration(name string) time.Duration {
	v, err := o.fs.GetDuration(name)
	must(name, err)
	return v
}

func must(name string, err error) {
	if err != nil {
		panic(fmt.Sprintf("core: option %q: %v", name, err))
	}
}
