// Package flatfile reads and writes the comma-separated record format used as
// the intermediate representation between extraction and insertion.
//
// The first line holds the column names. Every following line is one record.
// Non-empty text fields are wrapped in double quotes with internal quotes
// doubled; other fields use their default textual form.
package flatfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"cqlmigrate/schema"
)

// Options tune how nulls and non-text fields are written and read back.
type Options struct {
	// NullMarker is written, unquoted, for null values. The default empty
	// marker makes a null indistinguishable from an empty text value.
	NullMarker string

	// QuoteAll quotes every non-null field, not only non-empty text, so that
	// opaque values containing commas survive the round trip.
	QuoteAll bool
}

// Writer serializes rows into the flat format.
type Writer struct {
	w    *bufio.Writer
	opts Options
	rows int64
}

func NewWriter(w io.Writer, opts Options) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<16), opts: opts}
}

// WriteHeader writes the comma-joined column names.
func (w *Writer) WriteHeader(names []string) error {
	fields := make([]string, len(names))
	for i, name := range names {
		if strings.ContainsAny(name, ",\"\n") {
			name = quote(name)
		}
		fields[i] = name
	}
	return w.writeLine(fields)
}

// Write serializes one row.
func (w *Writer) Write(row schema.Row) error {
	fields := make([]string, len(row))
	for i, v := range row {
		fields[i] = EncodeField(v, w.opts)
	}
	if err := w.writeLine(fields); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of rows written, excluding the header.
func (w *Writer) Rows() int64 {
	return w.rows
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) writeLine(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.w.WriteByte(','); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
		if _, err := w.w.WriteString(f); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// EncodeField renders one value as a flat-file field.
func EncodeField(v schema.Value, opts Options) string {
	if v.IsNull() {
		return opts.NullMarker
	}
	text := v.String()
	switch {
	case v.Type() == schema.TypeText && text != "":
		return quote(text)
	case opts.QuoteAll:
		return quote(text)
	case opts.NullMarker != "" && text == opts.NullMarker:
		return quote(text)
	}
	return text
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
