package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/utkarsh5026/papply/apply"
)

// newTable returns a table that prints headers exactly as given.
func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithHeaderAutoFormat(tw.Off))
}

func renderOutput(w io.Writer, out *apply.Output) error {
	table := newTable(w)

	switch out.Shape() {
	case apply.Flat:
		table.Header("Index", "Value")
		for i, v := range out.Flat() {
			_ = table.Append(strconv.Itoa(i), formatValue(v))
		}
	case apply.RowBound:
		_, cols := out.Dims()
		header := []any{"Index"}
		for c := range cols {
			header = append(header, fmt.Sprintf("V%d", c+1))
		}
		table.Header(header...)
		for i, row := range out.Grid() {
			cells := []any{strconv.Itoa(i)}
			for _, v := range row {
				cells = append(cells, formatValue(v))
			}
			_ = table.Append(cells...)
		}
	default:
		table.Header("Index", "Value", "Error")
		errs := out.Errors()
		for i, v := range out.Items() {
			msg := ""
			if errs[i] != nil {
				msg = errs[i].Error()
			}
			_ = table.Append(strconv.Itoa(i), formatValue(v), msg)
		}
	}
	return table.Render()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(x, 'g', 6, 64)
	default:
		return fmt.Sprint(x)
	}
}
