package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"

	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

// Console is a dispatch output that writes answers to a writer. Image
// artifacts are saved under ImageDir when set, otherwise noted inline.
type Console struct {
	w        io.Writer
	imageDir string
}

// NewConsole creates a console output. imageDir may be empty.
func NewConsole(w io.Writer, imageDir string) *Console {
	return &Console{w: w, imageDir: imageDir}
}

// Text writes explanatory content verbatim.
func (c *Console) Text(_ context.Context, text string) error {
	_, err := fmt.Fprintln(c.w, text)
	return err
}

// Statement writes a generated statement before it runs.
func (c *Console) Statement(_ context.Context, statement string) error {
	_, err := fmt.Fprintf(c.w, "\n%s\n\n", statement)
	return err
}

// Table renders the result set as an aligned text table.
func (c *Console) Table(_ context.Context, rs *warehouse.ResultSet) error {
	table := tablewriter.NewWriter(c.w)
	table.SetHeader(rs.Columns)
	for _, row := range rs.Rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

// Image saves the artifact to ImageDir, or notes it when no directory is
// configured.
func (c *Console) Image(_ context.Context, name string, png []byte) error {
	if c.imageDir == "" {
		_, err := fmt.Fprintf(c.w, "(chart %s: %d bytes, no image directory configured)\n", name, len(png))
		return err
	}
	path := filepath.Join(c.imageDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	_, err := fmt.Fprintf(c.w, "chart saved to %s\n", path)
	return err
}
