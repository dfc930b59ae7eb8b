package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/pflag"

	"github.com/petal-labs/multitool/core"
	"github.com/petal-labs/multitool/registry"
)

// stubTool records what the dispatcher hands it.
type stubTool struct {
	declare      func(fs *pflag.FlagSet)
	configureErr error

	configured bool
	opts       *core.Options
	cfg        core.RuntimeConfig
}

func (s *stubTool) DeclareOptions(fs *pflag.FlagSet) {
	if s.declare != nil {
		s.declare(fs)
	}
}

func (s *stubTool) Configure(opts *core.Options, cfg core.RuntimeConfig) error {
	s.configured = true
	s.opts = opts
	s.cfg = cfg
	return s.configureErr
}

func (s *stubTool) Builder() core.Builder { return stubBuilder{} }

type stubBuilder struct{}

func (stubBuilder) Build(context.Context, core.Target) (core.Image, error) {
	return core.Image{}, nil
}

func (stubBuilder) Execute(context.Context, core.Image, *core.Device) error { return nil }

// recordingBackend captures the configuration it is asked to run.
type recordingBackend struct {
	status int
	calls  int
	tool   string
	cfg    core.RuntimeConfig
}

func (b *recordingBackend) Run(_ context.Context, toolName string, _ core.Builder, cfg core.RuntimeConfig) int {
	b.calls++
	b.tool = toolName
	b.cfg = cfg
	return b.status
}

func widthOption(fs *pflag.FlagSet) {
	fs.Int("width", 10, "Width of the thing.")
}

// newTestRegistry registers stub tools named "fft" (no options) and "box"
// (declares --width). The returned map tracks the last instance created per
// tool.
func newTestRegistry(t *testing.T) (*registry.Registry, map[string]*stubTool) {
	t.Helper()
	last := make(map[string]*stubTool)
	reg := registry.New(registry.WithReservedOptions(DeclareReserved))
	reg.MustRegister("fft", func() core.Tool {
		s := &stubTool{}
		last["fft"] = s
		return s
	})
	reg.MustRegister("box", func() core.Tool {
		s := &stubTool{declare: widthOption}
		last["box"] = s
		return s
	})
	return reg, last
}

func newTestDispatcher(reg *registry.Registry, backend Backend) (*Dispatcher, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &Dispatcher{
		Registry: reg,
		Backend:  backend,
		Program:  "multitool",
		Stdout:   &stdout,
		Stderr:   &stderr,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &stdout, &stderr
}

func assertErrorAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %T (%v)", target, err, err)
	}
	return target
}
