package flatfile

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"cqlmigrate/schema"
)

// ParseError reports a field that cannot be converted to its column type,
// or a record whose shape does not match the target table.
type ParseError struct {
	Line   int
	Column string
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("line %d: column %s: cannot parse %q: %v", e.Line, e.Column, e.Text, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// Deserializer converts records into values typed by a target table.
type Deserializer struct {
	table schema.Table
	opts  Options
}

func NewDeserializer(table schema.Table, opts Options) *Deserializer {
	return &Deserializer{table: table, opts: opts}
}

// Values maps the record's fields positionally onto the table's columns.
func (d *Deserializer) Values(rec Record) ([]schema.Value, error) {
	if len(rec) != len(d.table.Columns) {
		return nil, &ParseError{Err: fmt.Errorf("expected %d fields, got %d", len(d.table.Columns), len(rec))}
	}

	values := make([]schema.Value, len(rec))
	for i, col := range d.table.Columns {
		v, err := d.value(col, rec[i])
		if err != nil {
			return nil, &ParseError{Column: col.Name, Text: rec[i].Text, Err: err}
		}
		values[i] = v
	}
	return values, nil
}

// Rows deserializes every remaining record of r. A ParseError carries the
// line the failing record started on and ends the sequence.
func (d *Deserializer) Rows(r *Reader) iter.Seq2[[]schema.Value, error] {
	return func(yield func([]schema.Value, error) bool) {
		for rec, err := range r.Records() {
			if err != nil {
				yield(nil, err)
				return
			}
			values, err := d.Values(rec)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Line = r.Line()
				}
				yield(nil, err)
				return
			}
			if !yield(values, nil) {
				return
			}
		}
	}
}

func (d *Deserializer) value(col schema.Column, f Field) (schema.Value, error) {
	if f.Null {
		// With the default empty marker an empty text field and a null
		// cannot be told apart; text columns keep the empty string.
		if col.Type == schema.TypeText && d.opts.NullMarker == "" {
			return schema.Text(""), nil
		}
		return schema.Null(col.Type), nil
	}

	switch col.Type {
	case schema.TypeInt64:
		n, err := strconv.ParseInt(strings.TrimSpace(f.Text), 10, 64)
		return schema.Int64(n), err
	case schema.TypeInt32:
		n, err := strconv.ParseInt(strings.TrimSpace(f.Text), 10, 32)
		return schema.Int32(int32(n)), err
	case schema.TypeInt16:
		n, err := strconv.ParseInt(strings.TrimSpace(f.Text), 10, 16)
		return schema.Int16(int16(n)), err
	case schema.TypeBool:
		return parseBool(f.Text)
	case schema.TypeTimestamp:
		ms, err := strconv.ParseInt(strings.TrimSpace(f.Text), 10, 64)
		if err != nil {
			return schema.Value{}, err
		}
		return schema.Timestamp(time.UnixMilli(ms)), nil
	case schema.TypeText:
		return schema.Text(f.Text), nil
	case schema.TypeOpaque:
		return schema.Opaque(f.Text, nil), nil
	default:
		return schema.Value{}, fmt.Errorf("unsupported logical type %s", col.Type)
	}
}

func parseBool(text string) (schema.Value, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true":
		return schema.Bool(true), nil
	case "false":
		return schema.Bool(false), nil
	}
	return schema.Value{}, fmt.Errorf("invalid boolean")
}
