package cli

import (
	"github.com/petal-labs/multitool/core"
)

// ResolveConfig derives the runtime configuration from strictly parsed
// options. It is pure: the same options always give the same result.
//
// save-exe and load-exe are mutually exclusive. compile-only always forces
// deferred attach, whatever --defer-attach says.
func ResolveConfig(opts *core.Options) (core.RuntimeConfig, error) {
	saveExe := opts.String(OptSaveExe)
	loadExe := opts.String(OptLoadExe)

	exeName := saveExe
	if exeName == "" {
		exeName = loadExe
	}
	if saveExe != "" && loadExe != "" {
		return core.RuntimeConfig{}, &MutuallyExclusiveModesError{SaveExe: saveExe, LoadExe: loadExe}
	}

	compileOnly := opts.Bool(OptCompileOnly)
	return core.RuntimeConfig{
		DeviceCount:  opts.Uint(OptIPUs),
		ImagePath:    exeName,
		UseSimulator: opts.Bool(OptModel),
		Persist:      saveExe != "",
		Restore:      loadExe != "",
		CompileOnly:  compileOnly,
		DeferAttach:  compileOnly || opts.Bool(OptDeferAttach),
	}, nil
}
