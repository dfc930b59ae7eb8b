// Package core provides the foundational types and interfaces shared by the
// multitool dispatcher, its tools and the execution runtime.
//
// This package contains:
//   - Interfaces: Tool, Builder
//   - Runtime values: RuntimeConfig, Target, Image, Device
//   - Parsed command-line options: Options
package core

import (
	"context"

	"github.com/spf13/pflag"
)

// Factory creates a fresh tool instance on every call. Factories are
// registered once at process start.
type Factory func() Tool

// Tool is a self-contained unit of work selectable by name from the command line.
type Tool interface {
	// DeclareOptions adds the tool's own options to fs.
	DeclareOptions(fs *pflag.FlagSet)

	// Configure hands the strictly parsed options and the resolved runtime
	// configuration to the tool before any work is built.
	Configure(opts *Options, cfg RuntimeConfig) error

	// Builder returns the executable work for the configured tool.
	Builder() Builder
}

// Builder is the unit of executable work handed to the execution backend.
// Build produces a compiled image for the target; Execute runs a previously
// built (or loaded) image on attached devices.
type Builder interface {
	Build(ctx context.Context, target Target) (Image, error)
	Execute(ctx context.Context, image Image, device *Device) error
}

// RuntimeConfig holds the resolved, validated execution parameters.
//
// Persist and Restore are never both true. CompileOnly implies DeferAttach.
type RuntimeConfig struct {
	DeviceCount  uint   `json:"device_count"`
	ImagePath    string `json:"image_path,omitempty"`
	UseSimulator bool   `json:"use_simulator"`
	Persist      bool   `json:"persist"`
	Restore      bool   `json:"restore"`
	CompileOnly  bool   `json:"compile_only"`
	DeferAttach  bool   `json:"defer_attach"`
}

// Target returns the compilation target described by the config.
func (c RuntimeConfig) Target() Target {
	return Target{DeviceCount: c.DeviceCount, Simulated: c.UseSimulator}
}

// Target describes the devices an image is compiled for.
type Target struct {
	DeviceCount uint `json:"device_count"`
	Simulated   bool `json:"simulated"`
}

// Image is a compiled executable. Payload is opaque to everything except the
// tool that produced it.
type Image struct {
	Tool    string `json:"tool"`
	Target  Target `json:"target"`
	Payload []byte `json:"payload,omitempty"`
}

// Device is a set of attached execution devices.
type Device struct {
	IDs       []int
	Simulated bool
}

// Count returns the number of attached devices.
func (d *Device) Count() int {
	if d == nil {
		return 0
	}
	return len(d.IDs)
}
