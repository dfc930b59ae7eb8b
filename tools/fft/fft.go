// Package fft implements the "fft" tool: it builds a radix-2 transform plan
// and checks the transform of a test signal against a direct DFT.
package fft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/petal-labs/multitool/core"
)

// Name is the registry name of the tool.
const Name = "fft"

const (
	optSize      = "size"
	optTolerance = "tolerance"

	defaultSize      = 8
	defaultTolerance = 1e-9

	// maxSize bounds the O(n²) reference DFT run by the check.
	maxSize = 1 << 16
)

// Tool is the fft tool.
type Tool struct {
	size      uint
	tolerance float64
}

// New creates an unconfigured fft tool.
func New() core.Tool {
	return &Tool{}
}

func (t *Tool) DeclareOptions(fs *pflag.FlagSet) {
	fs.Uint(optSize, defaultSize, "Number of points in the transform. Must be a power of two, at most 65536.")
	fs.Float64(optTolerance, defaultTolerance, "Maximum absolute error (per point) accepted against the direct DFT.")
}

func (t *Tool) Configure(opts *core.Options, _ core.RuntimeConfig) error {
	size := opts.Uint(optSize)
	if size < 2 || bits.OnesCount(size) != 1 {
		return fmt.Errorf("fft: --%s must be a power of two of at least 2, got %d", optSize, size)
	}
	if size > maxSize {
		return fmt.Errorf("fft: --%s must be at most %d, got %d", optSize, maxSize, size)
	}
	tolerance := opts.Float64(optTolerance)
	if tolerance <= 0 || math.IsNaN(tolerance) {
		return fmt.Errorf("fft: --%s must be positive, got %v", optTolerance, tolerance)
	}
	t.size = size
	t.tolerance = tolerance
	return nil
}

func (t *Tool) Builder() core.Builder {
	return &builder{size: t.size, tolerance: t.tolerance}
}

// Plan is the image payload of the fft tool.
type Plan struct {
	Size      uint    `json:"size"`
	Stages    int     `json:"stages"`
	Tolerance float64 `json:"tolerance"`
}

type builder struct {
	size      uint
	tolerance float64
}

func (b *builder) Build(ctx context.Context, _ core.Target) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return core.Image{}, err
	}
	plan := Plan{
		Size:      b.size,
		Stages:    bits.TrailingZeros(b.size),
		Tolerance: b.tolerance,
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return core.Image{}, fmt.Errorf("fft: encoding plan: %w", err)
	}
	return core.Image{Payload: payload}, nil
}

func (b *builder) Execute(ctx context.Context, img core.Image, device *core.Device) error {
	if device == nil {
		return errors.New("fft: no device attached")
	}
	var plan Plan
	if err := json.Unmarshal(img.Payload, &plan); err != nil {
		return fmt.Errorf("fft: decoding plan: %w", err)
	}
	if plan.Size < 2 || bits.OnesCount(plan.Size) != 1 {
		return fmt.Errorf("fft: invalid plan size %d", plan.Size)
	}

	signal := TestSignal(int(plan.Size))
	got := Transform(signal)
	return verify(ctx, signal, got, plan.Tolerance, device.Count())
}

// verify checks got against a direct DFT of signal. The bins are split
// evenly across workers, one per attached device.
func verify(ctx context.Context, signal, got []complex128, tolerance float64, workers int) error {
	n := len(signal)
	workers = max(1, min(workers, n))
	chunk := (n + workers - 1) / workers

	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		group.Go(func() error {
			for k := start; k < end; k++ {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				if diff := cmplx.Abs(got[k] - bin(signal, k)); diff > tolerance {
					return fmt.Errorf("fft: point %d differs from the direct DFT by %g", k, diff)
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// TestSignal returns n samples of a sum of two tones with a DC offset.
func TestSignal(n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		x := 2 * math.Pi * float64(i) / float64(n)
		out[i] = complex(0.5+math.Sin(x)+0.25*math.Cos(3*x), 0.1*math.Sin(2*x))
	}
	return out
}

// Transform computes the discrete Fourier transform of x with an iterative
// radix-2 Cooley-Tukey FFT. len(x) must be a power of two.
func Transform(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	if n == 0 {
		return out
	}
	shift := 64 - bits.TrailingZeros(uint(n))
	for i := range x {
		out[bits.Reverse64(uint64(i))>>shift] = x[i]
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		half := size / 2
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				even := out[start+k]
				odd := out[start+k+half] * w
				out[start+k] = even + odd
				out[start+k+half] = even - odd
				w *= step
			}
		}
	}
	return out
}

// DFT computes the discrete Fourier transform of x directly.
func DFT(x []complex128) []complex128 {
	out := make([]complex128, len(x))
	for k := range out {
		out[k] = bin(x, k)
	}
	return out
}

func bin(x []complex128, k int) complex128 {
	n := len(x)
	var sum complex128
	for t, v := range x {
		angle := -2 * math.Pi * float64(k*t) / float64(n)
		sum += v * cmplx.Exp(complex(0, angle))
	}
	return sum
}
