// Package transpose implements the "transpose" tool: it converts a row-major
// matrix to column-major layout in blocks and verifies the result.
package transpose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/petal-labs/multitool/core"
)

// Name is the registry name of the tool.
const Name = "transpose"

const (
	optRows  = "rows"
	optCols  = "cols"
	optBlock = "block"

	defaultRows  = 4
	defaultCols  = 8
	defaultBlock = 2
)

// Tool is the transpose tool.
type Tool struct {
	rows, cols, block uint
}

// New creates an unconfigured transpose tool.
func New() core.Tool {
	return &Tool{}
}

func (t *Tool) DeclareOptions(fs *pflag.FlagSet) {
	fs.Uint(optRows, defaultRows, "Number of matrix rows.")
	fs.Uint(optCols, defaultCols, "Number of matrix columns.")
	fs.Uint(optBlock, defaultBlock, "Edge length of the square blocks each device transposes.")
}

func (t *Tool) Configure(opts *core.Options, _ core.RuntimeConfig) error {
	rows, cols, block := opts.Uint(optRows), opts.Uint(optCols), opts.Uint(optBlock)
	for _, o := range []struct {
		name  string
		value uint
	}{{optRows, rows}, {optCols, cols}, {optBlock, block}} {
		if o.value == 0 {
			return fmt.Errorf("transpose: --%s must be at least 1", o.name)
		}
	}
	t.rows, t.cols, t.block = rows, cols, block
	return nil
}

func (t *Tool) Builder() core.Builder {
	return &builder{layout: Layout{Rows: t.rows, Cols: t.cols, Block: t.block}}
}

// Layout is the image payload of the transpose tool.
type Layout struct {
	Rows  uint `json:"rows"`
	Cols  uint `json:"cols"`
	Block uint `json:"block"`
}

type builder struct {
	layout Layout
}

func (b *builder) Build(ctx context.Context, _ core.Target) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return core.Image{}, err
	}
	payload, err := json.Marshal(b.layout)
	if err != nil {
		return core.Image{}, fmt.Errorf("transpose: encoding layout: %w", err)
	}
	return core.Image{Payload: payload}, nil
}

func (b *builder) Execute(ctx context.Context, img core.Image, device *core.Device) error {
	if device == nil {
		return errors.New("transpose: no device attached")
	}
	var l Layout
	if err := json.Unmarshal(img.Payload, &l); err != nil {
		return fmt.Errorf("transpose: decoding layout: %w", err)
	}
	if l.Rows == 0 || l.Cols == 0 || l.Block == 0 {
		return fmt.Errorf("transpose: invalid layout %dx%d block %d", l.Rows, l.Cols, l.Block)
	}

	rows, cols := int(l.Rows), int(l.Cols)
	in := make([]float32, rows*cols)
	for i := range in {
		in[i] = float32(i)
	}
	out := Blocked(in, rows, cols, int(l.Block))
	if err := ctx.Err(); err != nil {
		return err
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if got, want := out[c*rows+r], in[r*cols+c]; got != want {
				return fmt.Errorf("transpose: element (%d,%d) = %v, want %v", r, c, got, want)
			}
		}
	}
	return nil
}

// Blocked returns the column-major copy of the row-major rows x cols matrix
// in, visiting it in square blocks of edge block.
func Blocked(in []float32, rows, cols, block int) []float32 {
	out := make([]float32, len(in))
	for r0 := 0; r0 < rows; r0 += block {
		for c0 := 0; c0 < cols; c0 += block {
			for r := r0; r < min(r0+block, rows); r++ {
				for c := c0; c < min(c0+block, cols); c++ {
					out[c*rows+r] = in[r*cols+c]
				}
			}
		}
	}
	return out
}
