package fft

import (
	"context"
	"encoding/json"
	"math"
	"math/cmplx"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/petal-labs/multitool/core"
)

func configure(t *testing.T, args ...string) (*Tool, error) {
	t.Helper()
	tool := New().(*Tool)
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	tool.DeclareOptions(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return tool, tool.Configure(core.NewOptions(fs), core.RuntimeConfig{DeviceCount: 1, UseSimulator: true})
}

func TestConfigure_Defaults(t *testing.T) {
	tool, err := configure(t)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if tool.size != defaultSize || tool.tolerance != defaultTolerance {
		t.Errorf("size/tolerance = %d/%v", tool.size, tool.tolerance)
	}
}

func TestConfigure_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"power of two", []string{"--size=64"}, ""},
		{"not power of two", []string{"--size=12"}, "power of two"},
		{"one point", []string{"--size=1"}, "power of two"},
		{"zero", []string{"--size=0"}, "power of two"},
		{"largest size", []string{"--size=65536"}, ""},
		{"above maximum", []string{"--size=131072"}, "at most 65536"},
		{"huge", []string{"--size=1099511627776"}, "at most 65536"},
		{"zero tolerance", []string{"--tolerance=0"}, "positive"},
		{"negative tolerance", []string{"--tolerance=-1"}, "positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := configure(t, tt.args...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTransformMatchesDFT(t *testing.T) {
	for _, n := range []int{2, 4, 8, 64, 256} {
		signal := TestSignal(n)
		got := Transform(signal)
		want := DFT(signal)
		for i := range want {
			if diff := cmplx.Abs(got[i] - want[i]); diff > 1e-9 {
				t.Errorf("n=%d point %d: diff %g", n, i, diff)
			}
		}
	}
}

func TestTransformImpulse(t *testing.T) {
	x := make([]complex128, 8)
	x[0] = 1
	for i, v := range Transform(x) {
		if cmplx.Abs(v-1) > 1e-12 {
			t.Errorf("bin %d = %v, want 1", i, v)
		}
	}
}

func TestTransformSingleTone(t *testing.T) {
	const n = 16
	x := make([]complex128, n)
	for i := range x {
		x[i] = cmplx.Exp(complex(0, 2*math.Pi*3*float64(i)/n))
	}
	out := Transform(x)
	for i, v := range out {
		want := 0.0
		if i == 3 {
			want = n
		}
		if math.Abs(cmplx.Abs(v)-want) > 1e-9 {
			t.Errorf("bin %d magnitude = %g, want %g", i, cmplx.Abs(v), want)
		}
	}
}

func TestBuildAndExecute(t *testing.T) {
	tool, err := configure(t, "--size=32")
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	b := tool.Builder()
	img, err := b.Build(context.Background(), core.Target{DeviceCount: 1, Simulated: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var plan Plan
	if err := json.Unmarshal(img.Payload, &plan); err != nil {
		t.Fatalf("decoding plan: %v", err)
	}
	if plan.Size != 32 || plan.Stages != 5 {
		t.Errorf("plan = %+v, want size 32 with 5 stages", plan)
	}

	if err := b.Execute(context.Background(), img, &core.Device{IDs: []int{0}, Simulated: true}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecute_Errors(t *testing.T) {
	b := &builder{size: 8, tolerance: defaultTolerance}
	img, err := b.Build(context.Background(), core.Target{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	device := &core.Device{IDs: []int{0}}

	if err := b.Execute(context.Background(), img, nil); err == nil {
		t.Error("expected error without a device")
	}
	if err := b.Execute(context.Background(), core.Image{Payload: []byte("not json")}, device); err == nil {
		t.Error("expected error for a corrupt plan")
	}
	bad, _ := json.Marshal(Plan{Size: 6, Tolerance: 1})
	if err := b.Execute(context.Background(), core.Image{Payload: bad}, device); err == nil {
		t.Error("expected error for a non power of two plan")
	}
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&builder{size: 8}).Build(ctx, core.Target{}); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestVerify(t *testing.T) {
	signal := TestSignal(16)
	got := Transform(signal)

	for _, workers := range []int{0, 1, 3, 16, 64} {
		if err := verify(context.Background(), signal, got, 1e-9, workers); err != nil {
			t.Errorf("workers=%d: %v", workers, err)
		}
	}

	corrupt := append([]complex128(nil), got...)
	corrupt[11] += 0.5
	err := verify(context.Background(), signal, corrupt, 1e-9, 4)
	if err == nil || !strings.Contains(err.Error(), "point 11") {
		t.Errorf("expected mismatch at point 11, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := verify(ctx, signal, got, 1e-9, 2); err == nil {
		t.Error("expected error from canceled context")
	}
}
