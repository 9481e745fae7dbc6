package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// Tabular is implemented by results with a table rendering.
type Tabular interface {
	Table(wide bool) *Table
}

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format renders a Table or a Tabular value. Anything else falls back to
// indented JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	switch v := data.(type) {
	case *Table:
		return v.RenderWithOptions(w, f.NoHeaders)
	case Tabular:
		return v.Table(f.Wide).RenderWithOptions(w, f.NoHeaders)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Resources is a list of resources as returned by QUERY.
type Resources []*domain.Resource

// Table lists one resource per row. Wide mode adds the description, the
// origin node and the size.
func (rs Resources) Table(wide bool) *Table {
	t := &Table{Headers: []string{"NAME", "URI", "CHANNEL", "OWNER", "TAGS"}}
	if wide {
		t.Headers = append(t.Headers, "DESCRIPTION", "EZSERVER", "SIZE")
	}
	for _, r := range rs {
		row := []string{cell(r.Name), r.URI, cell(r.Channel), cell(r.Owner), cell(strings.Join(r.Tags, ","))}
		if wide {
			origin := ""
			if r.Origin != nil {
				origin = *r.Origin
			}
			size := ""
			if r.Size > 0 {
				size = FormatBytes(r.Size)
			}
			row = append(row, cell(r.Description), cell(origin), cell(size))
		}
		t.AddRow(row...)
	}
	return t
}

// Fields is an ordered list of name/value pairs rendered as a two-column
// table.
type Fields [][2]string

// Table renders one field per row.
func (fs Fields) Table(bool) *Table {
	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	for _, f := range fs {
		t.AddRow(f[0], cell(f[1]))
	}
	return t
}

// MarshalJSON encodes the fields as an object in order.
func (fs Fields) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(f[0]))
		b.WriteByte(':')
		v, err := json.Marshal(f[1])
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table, optionally without the header row.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// SetHeaders sets the table headers.
func (t *Table) SetHeaders(headers ...string) {
	t.Headers = headers
}
