package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// Tabler is implemented by results with their own table layout.
type Tabler interface {
	Table() *Table
}

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	NoHeaders bool
}

// Format formats data as a table. *Table and Tabler values render
// directly; other values are listed as FIELD/VALUE pairs of their JSON
// form.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	var t *Table
	switch v := data.(type) {
	case *Table:
		t = v
	case Tabler:
		t = v.Table()
	default:
		var err error
		if t, err = fieldTable(data); err != nil {
			return err
		}
	}
	return t.RenderWithOptions(w, f.NoHeaders)
}

// fieldTable lists the top-level fields of data's JSON object form.
// Non-objects render as a single VALUE cell.
func fieldTable(data any) (*Table, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		return &Table{Headers: []string{"VALUE"}, Rows: [][]string{{cell(value)}}}, nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	for _, k := range keys {
		t.AddRow(k, cell(fields[k]))
	}
	return t, nil
}

// cell renders one decoded JSON value for display.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.2f", x)
	case []any:
		if len(x) == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", len(x))
	case map[string]any:
		if len(x) == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", len(x))
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table with options.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !noHeaders && len(t.Headers) > 0 {
		writeRow(tw, t.Headers)
	}
	for _, row := range t.Rows {
		writeRow(tw, row)
	}

	return tw.Flush()
}

func writeRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			io.WriteString(w, "\t")
		}
		io.WriteString(w, c)
	}
	io.WriteString(w, "\n")
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}
