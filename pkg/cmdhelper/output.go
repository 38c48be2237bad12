package cmdhelper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cast"
)

// Fprintf is a wrapper around fmt.Fprintf to suppress the error check.
func Fprintf(w io.Writer, format string, args ...any) {
	if format[len(format)-1] != '\n' {
		format += "\n"
	}
	_, _ = fmt.Fprintf(w, format, args...)
}

// PrettifyJSON is a helper function to prettify data to json bytes with indents.
func PrettifyJSON(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return prettifyJSONBytes(v)
	case string:
		return prettifyJSONBytes([]byte(v))
	default:
		return json.MarshalIndent(data, "", "  ")
	}
}

func prettifyJSONBytes(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to prettify: %w", err)
	}
	return buf.Bytes(), nil
}

// NewTableWriter returns a *TableWriter printing rows aligned in columns,
// with an optional header row.
func NewTableWriter(w io.Writer, headers ...string) *TableWriter {
	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', 0)
	if len(headers) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}
	return &TableWriter{w: tw}
}

// TableWriter prints rows aligned in columns. Cells are coerced to strings,
// so ids, numbers and times can be passed as they are.
type TableWriter struct {
	w *tabwriter.Writer
}

// AddRow appends one row of cells.
func (t *TableWriter) AddRow(cells ...any) {
	values := make([]string, 0, len(cells))
	for _, cell := range cells {
		values = append(values, cast.ToString(cell))
	}
	_, _ = fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

// Flush writes the aligned rows to the underlying writer.
func (t *TableWriter) Flush() error {
	return t.w.Flush()
}
