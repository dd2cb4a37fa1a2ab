// Package dispatch walks the typed content blocks of an analyst response and
// drives the matching side effects: surfacing text, executing generated SQL,
// rendering results and producing charts.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/snowbridge-labs/analyst-gateway/internal/analyst"
	"github.com/snowbridge-labs/analyst-gateway/internal/render"
	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

// Output receives the artifacts produced while interpreting a response.
// Errors from these operations are dispatch failures, never swallowed.
type Output interface {
	Text(ctx context.Context, text string) error
	Statement(ctx context.Context, statement string) error
	Table(ctx context.Context, result *warehouse.ResultSet) error
	Image(ctx context.Context, name string, png []byte) error
}

// BlockError is a failure while processing a single content block.
type BlockError struct {
	Index     int
	BlockType string
	Err       error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %d (%s): %v", e.Index, e.BlockType, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// Dispatcher processes envelope blocks strictly in order. A failing block is
// recorded and dispatch continues with the next block; the caller receives
// the aggregate of all block failures.
type Dispatcher struct {
	Engine warehouse.Engine
	Output Output
	Chart  render.ChartRoles
	Logger *slog.Logger
}

// Dispatch walks env's blocks in order, one at a time, so that side effects
// are attributable to each block before the next begins.
func (d *Dispatcher) Dispatch(ctx context.Context, env *analyst.Envelope) error {
	var failures []error
	for i, block := range env.Blocks {
		if err := d.dispatchBlock(ctx, i, block); err != nil {
			blockErr := &BlockError{Index: i, BlockType: block.BlockType(), Err: err}
			failures = append(failures, blockErr)
			if d.Logger != nil {
				d.Logger.Warn("block dispatch failed",
					slog.Int("block", i),
					slog.String("type", block.BlockType()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return errors.Join(failures...)
}

func (d *Dispatcher) dispatchBlock(ctx context.Context, i int, block analyst.Block) error {
	switch b := block.(type) {
	case analyst.TextBlock:
		return d.Output.Text(ctx, b.Text)
	case analyst.SQLBlock:
		return d.runStatement(ctx, b.Statement)
	default:
		// Unknown block types are a no-op for forward compatibility.
		return nil
	}
}

func (d *Dispatcher) runStatement(ctx context.Context, statement string) error {
	// The raw statement is always shown, even if execution fails below.
	if err := d.Output.Statement(ctx, statement); err != nil {
		return fmt.Errorf("show statement: %w", err)
	}

	result, err := d.Engine.Query(ctx, statement)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	if err := d.Output.Table(ctx, result); err != nil {
		return fmt.Errorf("render result: %w", err)
	}

	// A chart only makes sense with a measure and a dimension.
	if len(result.Columns) > 1 {
		png, err := render.PieChart(result, d.Chart)
		if err != nil {
			return fmt.Errorf("build chart: %w", err)
		}
		if err := d.Output.Image(ctx, "chart.png", png); err != nil {
			return fmt.Errorf("upload chart: %w", err)
		}
	}

	return nil
}
