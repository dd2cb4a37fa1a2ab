// Package render turns tabular warehouse results into user-facing artifacts:
// proportional charts and formatted tables.
package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

// ChartRoles maps chart roles to result-set column names. The measure column
// sizes each slice, the dimension column labels it.
type ChartRoles struct {
	Measure   string
	Dimension string
}

// PieChart renders a proportional chart of the result set as a PNG. Column
// matching is case-insensitive. It fails when either role column is missing
// or the measure column holds no positive numeric values.
func PieChart(rs *warehouse.ResultSet, roles ChartRoles) ([]byte, error) {
	mi, ok := rs.Column(roles.Measure)
	if !ok {
		return nil, fmt.Errorf("measure column %q not present in result (have %v)", roles.Measure, rs.Columns)
	}
	di, ok := rs.Column(roles.Dimension)
	if !ok {
		return nil, fmt.Errorf("dimension column %q not present in result (have %v)", roles.Dimension, rs.Columns)
	}

	values := make([]chart.Value, 0, len(rs.Rows))
	for i, row := range rs.Rows {
		v, err := strconv.ParseFloat(row[mi], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: measure value %q is not numeric", i, row[mi])
		}
		if v <= 0 {
			continue
		}
		values = append(values, chart.Value{Value: v, Label: row[di]})
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no positive %q values to chart", roles.Measure)
	}

	pie := chart.PieChart{
		Width:  600,
		Height: 600,
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}
