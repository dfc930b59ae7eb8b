// Package tools holds the built-in tools shipped with the multitool binary.
package tools

import (
	"github.com/petal-labs/multitool/core"
	"github.com/petal-labs/multitool/registry"
	"github.com/petal-labs/multitool/tools/fft"
	"github.com/petal-labs/multitool/tools/transpose"
)

// RegisterBuiltins registers every built-in tool with reg.
func RegisterBuiltins(reg *registry.Registry) error {
	builtins := []struct {
		name    string
		factory core.Factory
	}{
		{fft.Name, fft.New},
		{transpose.Name, transpose.New},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.factory); err != nil {
			return err
		}
	}
	return nil
}
