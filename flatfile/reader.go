package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Field is one parsed field of a record.
type Field struct {
	Text string
	// Null is set for an unquoted field equal to the null marker.
	Null bool
}

// Record is one parsed line of the flat file.
type Record []Field

// Texts returns the raw text of every field.
func (r Record) Texts() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Text
	}
	return out
}

// Reader parses the flat format. A quoted field may span several lines.
type Reader struct {
	r    *bufio.Reader
	opts Options
	line int // first line of the last record returned
	next int // lines consumed so far
}

func NewReader(r io.Reader, opts Options) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<16), opts: opts}
}

// Line returns the 1-based line number where the last record started.
func (r *Reader) Line() int {
	return r.line
}

// Header reads the column-name line. It must be the first call.
func (r *Reader) Header() ([]string, error) {
	rec, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Line: 1, Err: errors.New("missing header line")}
		}
		return nil, err
	}
	return rec.Texts(), nil
}

// Read returns the next record, or io.EOF after the last one.
func (r *Reader) Read() (Record, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	r.line = r.next

	var (
		rec      Record
		field    strings.Builder
		quoted   bool
		inQuotes bool
	)
	for {
		for i := 0; i < len(line); i++ {
			c := line[i]
			switch {
			case inQuotes:
				if c != '"' {
					field.WriteByte(c)
					continue
				}
				if i+1 < len(line) && line[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
			case c == '"' && !quoted && field.Len() == 0:
				quoted, inQuotes = true, true
			case c == ',':
				rec = append(rec, r.field(field.String(), quoted))
				field.Reset()
				quoted = false
			default:
				field.WriteByte(c)
			}
		}
		if !inQuotes {
			break
		}

		line, err = r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ParseError{Line: r.line, Err: errors.New("unterminated quoted field")}
			}
			return nil, err
		}
		field.WriteByte('\n')
	}
	rec = append(rec, r.field(field.String(), quoted))
	return rec, nil
}

// Records yields every remaining record. Iteration stops after the first
// error.
func (r *Reader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) field(text string, quoted bool) Field {
	return Field{Text: text, Null: !quoted && text == r.opts.NullMarker}
}

func (r *Reader) readLine() (string, error) {
	s, err := r.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read line %d: %w", r.next+1, err)
		}
		if s == "" {
			return "", io.EOF
		}
	}
	r.next++
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}
